package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var archiveTracer = otel.Tracer("leadqual.internal.archive")

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Option customizes a Store.
type Option func(*Store)

// WithoutScrubbing keeps message text verbatim.
func WithoutScrubbing() Option {
	return func(s *Store) { s.scrub = false }
}

// WithLeadHashKey keys the lead hash written to each record.
func WithLeadHashKey(key string) Option {
	return func(s *Store) { s.hashKey = []byte(key) }
}

// WithClock overrides the archive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store archives closed-conversation transcripts to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	scrub    bool
	hashKey  []byte
	now      func() time.Time
}

var _ conversation.TranscriptArchiver = (*Store)(nil)

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		scrub:    true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveTranscript writes the transcript as JSON and appends it to the
// business's monthly manifest.
func (s *Store) ArchiveTranscript(ctx context.Context, transcript conversation.Transcript) error {
	if !s.Enabled() {
		return nil
	}
	conv := transcript.Conversation
	if conv.ID == "" || conv.BusinessID == "" {
		return fmt.Errorf("archive: conversation id and business id required")
	}

	ctx, span := archiveTracer.Start(ctx, "archive.transcript")
	defer span.End()
	span.SetAttributes(
		attribute.String("leadqual.conversation_id", conv.ID),
		attribute.Int("leadqual.message_count", len(transcript.Messages)),
	)

	record := s.buildRecord(transcript)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := transcriptKey(conv.BusinessID, conv.ID, record.ArchivedAt)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived transcript",
		"conversation_id", conv.ID,
		"business_id", conv.BusinessID,
		"s3_key", key,
		"message_count", record.MessageCount,
	)

	entry := ManifestEntry{
		ConversationID: conv.ID,
		S3Key:          key,
		ArchivedAt:     record.ArchivedAt.Format(time.RFC3339),
		MessageCount:   record.MessageCount,
		Channel:        record.Channel,
	}
	if err := s.AppendManifest(ctx, conv.BusinessID, entry); err != nil {
		// the transcript itself is already stored
		s.logger.Warn("failed to append manifest", "error", err, "conversation_id", conv.ID)
	}
	return nil
}

func (s *Store) buildRecord(transcript conversation.Transcript) TranscriptRecord {
	conv := transcript.Conversation
	now := s.now().UTC()

	msgs := make([]Message, 0, len(transcript.Messages))
	leadCount := 0
	for _, m := range transcript.Messages {
		msgs = append(msgs, Message{
			Role:      roleOf(m),
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC(),
		})
		if m.IsFromLead {
			leadCount++
		}
	}
	if s.scrub {
		redactMessages(msgs)
	}

	end := now
	if conv.ClosedAt != nil {
		end = *conv.ClosedAt
	}
	duration := 0
	if !conv.CreatedAt.IsZero() && end.After(conv.CreatedAt) {
		duration = int(end.Sub(conv.CreatedAt).Seconds())
	}

	record := TranscriptRecord{
		Version:         recordVersion,
		ConversationID:  conv.ID,
		BusinessID:      conv.BusinessID,
		Channel:         string(conv.Channel),
		OpenedAt:        conv.CreatedAt.UTC(),
		ClosedAt:        conv.ClosedAt,
		ArchivedAt:      now,
		DurationSeconds: duration,
		MessageCount:    len(msgs),
		LeadMessages:    leadCount,
		Messages:        msgs,
	}
	if conv.LeadID != "" {
		record.LeadHash = LeadHash(conv.LeadID, s.hashKey)
	}
	return record
}

func roleOf(m conversation.Message) string {
	if m.IsFromLead {
		return "lead"
	}
	if m.GeneratedByAI() {
		return "assistant"
	}
	return "operator"
}

func transcriptKey(businessID, conversationID string, at time.Time) string {
	return fmt.Sprintf("transcripts/v1/%s/%d/%02d/%02d/%s.json",
		businessID, at.Year(), at.Month(), at.Day(), conversationID)
}

func manifestKey(businessID string, at time.Time) string {
	return fmt.Sprintf("transcripts/v1/%s/manifests/%d-%02d.jsonl", businessID, at.Year(), at.Month())
}

// AppendManifest appends a JSONL line to the business's monthly manifest.
// S3 has no append, so this is a read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, businessID string, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	key := manifestKey(businessID, s.now().UTC())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", key)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
