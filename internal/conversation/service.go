package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

var tracer = otel.Tracer("leadqual.internal.conversation")

// Sender delivers an outbound message on a lead's channel.
type Sender interface {
	Send(ctx context.Context, destination, text string, channel leads.Channel) error
}

// BusinessDirectory is the subset of business.Repository the pipeline reads.
type BusinessDirectory interface {
	GetBusiness(ctx context.Context, id string) (*business.Business, error)
	GetAssistantConfig(ctx context.Context, businessID string) (*business.AssistantConfig, error)
}

// TaskRunner runs best-effort work off the request path.
type TaskRunner interface {
	Submit(name string, task func(ctx context.Context)) error
}

// QualificationExtractor turns lead messages into qualification fields.
type QualificationExtractor interface {
	Extract(fields []string, leadMessages []string) map[string]string
}

// TranscriptArchiver stores the transcript of a closed conversation.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, transcript Transcript) error
}

type inlineRunner struct{}

func (inlineRunner) Submit(_ string, task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLocker sets the per-lead lock. Defaults to an in-process LocalLocker.
func WithLocker(l Locker) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithTaskRunner sets where extraction runs. Defaults to inline.
func WithTaskRunner(r TaskRunner) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.tasks = r
		}
	}
}

func WithExtractor(e QualificationExtractor) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

func WithArchiver(a TranscriptArchiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

func WithMetrics(m *metrics.PipelineMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithHistoryWindow caps the prior messages given to the generator.
func WithHistoryWindow(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 && n <= MaxHistoryMessages {
			s.historyWindow = n
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service runs the inbound conversation pipeline: resolve the lead, find or
// open its conversation, record the message, generate and send a reply, then
// extract qualification data in the background.
type Service struct {
	leads      leads.Repository
	businesses BusinessDirectory
	store      Store
	generator  ResponseGenerator
	sender     Sender
	logger     *logging.Logger

	locker        Locker
	tasks         TaskRunner
	extractor     QualificationExtractor
	archiver      TranscriptArchiver
	metrics       *metrics.PipelineMetrics
	historyWindow int
	now           func() time.Time
}

func NewService(leadsRepo leads.Repository, businesses BusinessDirectory, store Store, generator ResponseGenerator, sender Sender, logger *logging.Logger, opts ...ServiceOption) *Service {
	if leadsRepo == nil {
		panic("conversation: leads repository required")
	}
	if businesses == nil {
		panic("conversation: business directory required")
	}
	if store == nil {
		panic("conversation: store required")
	}
	if generator == nil {
		panic("conversation: generator required")
	}
	if sender == nil {
		panic("conversation: sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		leads:         leadsRepo,
		businesses:    businesses,
		store:         store,
		generator:     generator,
		sender:        sender,
		logger:        logger,
		locker:        NewLocalLocker(),
		tasks:         inlineRunner{},
		extractor:     NewExtractorRegistry(),
		historyWindow: MaxHistoryMessages,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleInbound processes one lead message end to end. When the reply was
// recorded but could not be delivered, both the result and an
// ErrDispatchFailure are returned.
func (s *Service) HandleInbound(ctx context.Context, msg InboundMessage) (*InboundResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.handle_inbound")
	defer span.End()

	text := strings.TrimSpace(msg.Text)
	phone := leads.NormalizePhone(msg.Phone)
	if phone == "" || text == "" {
		s.metrics.ObserveInbound("invalid")
		return nil, apperr.Validation("inbound message requires phone and text", nil)
	}

	lead, err := s.resolveLead(ctx, phone)
	if err != nil {
		s.metrics.ObserveInbound("unknown_lead")
		return nil, err
	}
	span.SetAttributes(attribute.String("lead_id", lead.ID), attribute.String("business_id", lead.BusinessID))
	logger := s.logger.With("lead_id", lead.ID, "business_id", lead.BusinessID)

	// Replies always go out on the lead's channel; the webhook's channel is
	// only recorded on the inbound message.
	channel := lead.Channel
	receivedOn := msg.Channel
	if receivedOn == "" {
		receivedOn = channel
	}

	conv, created, inbound, err := s.recordInbound(ctx, lead, receivedOn, text, msg.ProviderMessageID)
	if err != nil {
		s.metrics.ObserveInbound("storage_error")
		return nil, err
	}
	result := &InboundResult{
		LeadID:           lead.ID,
		BusinessID:       lead.BusinessID,
		ConversationID:   conv.ID,
		InboundMessageID: inbound.ID,
		NewConversation:  created,
	}
	if created {
		logger.Info("conversation started", "conversation_id", conv.ID, "channel", channel)
	}

	if err := s.leads.TouchContact(ctx, lead.ID, inbound.CreatedAt); err != nil {
		logger.Warn("failed to record lead contact time", "error", err)
	}

	profile, assistant, err := s.loadConfiguration(ctx, lead.BusinessID)
	if err != nil {
		s.metrics.ObserveInbound("config_missing")
		return nil, err
	}

	history, err := s.historyBefore(ctx, conv.ID, inbound.ID)
	if err != nil {
		s.metrics.ObserveInbound("storage_error")
		return nil, err
	}

	reply, err := s.generator.Generate(ctx, BuildContext(*profile, *assistant, history, text))
	if err != nil {
		s.metrics.ObserveInbound("generation_failed")
		logger.Error("response generation failed", "conversation_id", conv.ID, "error", err)
		return nil, fmt.Errorf("conversation: generate reply: %w", err)
	}

	outbound := &Message{
		ConversationID: conv.ID,
		Content:        reply,
		IsFromLead:     false,
		Metadata: map[string]any{
			metaGeneratedByAI: true,
			metaChannel:       string(channel),
		},
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(ctx, outbound); err != nil {
		s.metrics.ObserveInbound("storage_error")
		return nil, fmt.Errorf("conversation: persist reply: %w", err)
	}
	result.ReplyMessageID = outbound.ID
	result.Reply = reply

	sendErr := s.sender.Send(ctx, lead.Phone, reply, channel)
	s.scheduleExtraction(lead.ID, conv.ID, assistant.QualificationFields)

	if sendErr != nil {
		s.metrics.ObserveInbound("dispatch_failed")
		logger.Error("reply dispatch failed", "conversation_id", conv.ID, "message_id", outbound.ID, "error", sendErr)
		return result, dispatchError(sendErr)
	}

	s.metrics.ObserveInbound("replied")
	logger.Info("reply sent", "conversation_id", conv.ID, "message_id", outbound.ID, "channel", channel)
	return result, nil
}

func (s *Service) resolveLead(ctx context.Context, phone string) (*leads.Lead, error) {
	matches, err := s.leads.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("conversation: find lead: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("conversation: no lead for %s: %w", phone, leads.ErrLeadNotFound)
	}
	if len(matches) > 1 {
		s.logger.Warn("multiple leads share phone; using most recently active", "lead_id", matches[0].ID, "matches", len(matches))
	}
	return matches[0], nil
}

// recordInbound resolves or opens the lead's conversation and stores the
// inbound message, all under the lead's lock.
func (s *Service) recordInbound(ctx context.Context, lead *leads.Lead, receivedOn leads.Channel, text, providerID string) (*Conversation, bool, *Message, error) {
	unlock, err := s.locker.Lock(ctx, leadLockKey(lead.ID))
	if err != nil {
		return nil, false, nil, fmt.Errorf("conversation: lock lead: %w", err)
	}
	defer unlock()

	conv, created, err := s.activeOrCreate(ctx, lead, lead.Channel)
	if err != nil {
		return nil, false, nil, err
	}

	meta := map[string]any{metaChannel: string(receivedOn)}
	if providerID != "" {
		meta[metaProviderMessageID] = providerID
	}
	inbound := &Message{
		ConversationID: conv.ID,
		Content:        text,
		IsFromLead:     true,
		Metadata:       meta,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, inbound); err != nil {
		return nil, false, nil, fmt.Errorf("conversation: persist inbound: %w", err)
	}
	return conv, created, inbound, nil
}

func (s *Service) activeOrCreate(ctx context.Context, lead *leads.Lead, channel leads.Channel) (*Conversation, bool, error) {
	conv, err := s.store.ActiveForLead(ctx, lead.ID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, false, fmt.Errorf("conversation: load active: %w", err)
	}

	conv = &Conversation{
		LeadID:     lead.ID,
		BusinessID: lead.BusinessID,
		Channel:    channel,
		CreatedAt:  s.now(),
	}
	err = s.store.Create(ctx, conv)
	if errors.Is(err, errActiveExists) {
		// Another process won the race without sharing our lock.
		existing, getErr := s.store.ActiveForLead(ctx, lead.ID)
		if getErr != nil {
			return nil, false, fmt.Errorf("conversation: reload active: %w", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("conversation: create: %w", err)
	}
	return conv, true, nil
}

func (s *Service) loadConfiguration(ctx context.Context, businessID string) (*business.Business, *business.AssistantConfig, error) {
	profile, err := s.businesses.GetBusiness(ctx, businessID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil, fmt.Errorf("conversation: business %s: %w", businessID, ErrConfigurationMissing)
		}
		return nil, nil, fmt.Errorf("conversation: load business: %w", err)
	}
	assistant, err := s.businesses.GetAssistantConfig(ctx, businessID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil, fmt.Errorf("conversation: assistant for %s: %w", businessID, ErrConfigurationMissing)
		}
		return nil, nil, fmt.Errorf("conversation: load assistant: %w", err)
	}
	return profile, assistant, nil
}

// historyBefore returns up to historyWindow messages preceding excludeID.
func (s *Service) historyBefore(ctx context.Context, conversationID, excludeID string) ([]Message, error) {
	recent, err := s.store.RecentMessages(ctx, conversationID, s.historyWindow+1)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	history := make([]Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != excludeID {
			history = append(history, m)
		}
	}
	if len(history) > s.historyWindow {
		history = history[len(history)-s.historyWindow:]
	}
	return history, nil
}

func (s *Service) scheduleExtraction(leadID, conversationID string, fields []string) {
	if len(fields) == 0 {
		return
	}
	fields = append([]string(nil), fields...)
	err := s.tasks.Submit("qualification-extraction", func(ctx context.Context) {
		s.extractQualification(ctx, leadID, conversationID, fields)
	})
	if err != nil {
		s.metrics.ObserveExtraction("rejected")
		s.logger.Warn("qualification extraction not scheduled", "lead_id", leadID, "error", err)
	}
}

func (s *Service) extractQualification(ctx context.Context, leadID, conversationID string, fields []string) {
	ctx, span := tracer.Start(ctx, "conversation.extract_qualification")
	defer span.End()

	texts, err := s.store.LeadMessages(ctx, conversationID)
	if err != nil {
		s.metrics.ObserveExtraction("error")
		s.logger.Error("failed to load lead messages for extraction", "conversation_id", conversationID, "error", err)
		return
	}
	data := s.extractor.Extract(fields, texts)
	if len(data) == 0 {
		s.metrics.ObserveExtraction("empty")
		return
	}
	if err := s.leads.MergeQualification(ctx, leadID, data); err != nil {
		s.metrics.ObserveExtraction("error")
		s.logger.Error("failed to merge qualification", "lead_id", leadID, "error", err)
		return
	}
	s.metrics.ObserveExtraction("merged")
	s.logger.Info("qualification updated", "lead_id", leadID, "fields", len(data))
}

// Get returns a conversation owned by businessID.
func (s *Service) Get(ctx context.Context, businessID, conversationID string) (*Conversation, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.BusinessID != businessID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// CloseConversation closes the conversation and archives its transcript when
// an archiver is configured. Archival failures are logged only.
func (s *Service) CloseConversation(ctx context.Context, businessID, conversationID string) (*Conversation, error) {
	ctx, span := tracer.Start(ctx, "conversation.close")
	defer span.End()

	conv, err := s.Get(ctx, businessID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == StatusClosed {
		return conv, nil
	}
	if err := s.store.Close(ctx, conv.ID, s.now()); err != nil {
		return nil, fmt.Errorf("conversation: close: %w", err)
	}
	conv, err = s.store.Get(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation closed", "conversation_id", conv.ID, "lead_id", conv.LeadID)

	if s.archiver != nil {
		if err := s.archive(ctx, conv); err != nil {
			s.logger.Warn("transcript archive failed", "conversation_id", conv.ID, "error", err)
		}
	}
	return conv, nil
}

const archivePageSize = 200

func (s *Service) archive(ctx context.Context, conv *Conversation) error {
	var all []Message
	for offset := 0; ; offset += archivePageSize {
		page, err := s.store.ListMessages(ctx, conv.ID, offset, archivePageSize)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	return s.archiver.ArchiveTranscript(ctx, Transcript{Conversation: *conv, Messages: all})
}

// History returns a page of a conversation's messages in order.
func (s *Service) History(ctx context.Context, businessID, conversationID string, offset, limit int) ([]Message, error) {
	if _, err := s.Get(ctx, businessID, conversationID); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := s.store.ListMessages(ctx, conversationID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func dispatchError(err error) *apperr.Error {
	classified := apperr.Upstream("reply dispatch failed", err)
	classified.Err = fmt.Errorf("%w: %w", ErrDispatchFailure, err)
	return classified
}
