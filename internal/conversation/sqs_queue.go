package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS service limits for a single ReceiveMessage call.
const (
	sqsMaxBatch = 10
	sqsMaxWait  = 20 * time.Second
)

const (
	attrJobID   = "job_id"
	attrChannel = "channel"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue carries inbound jobs over an SQS standard queue. The job ID and
// channel travel as message attributes so they show up in the console and
// in dead-letter redrives without decoding the body.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
}

func NewSQSQueue(client sqsAPI, queueURL string) *SQSQueue {
	if client == nil {
		panic("conversation: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("conversation: SQS queueURL cannot be empty")
	}
	return &SQSQueue{client: client, queueURL: queueURL}
}

func (q *SQSQueue) Send(ctx context.Context, job queueJob) error {
	attrs := map[string]sqstypes.MessageAttributeValue{}
	if job.ID != "" {
		attrs[attrJobID] = stringAttr(job.ID)
	}
	if job.Channel != "" {
		attrs[attrChannel] = stringAttr(job.Channel)
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(job.Body),
	}
	if len(attrs) > 0 {
		in.MessageAttributes = attrs
	}
	if _, err := q.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("conversation: sqs send job %s: %w", job.ID, err)
	}
	return nil
}

// Receive long-polls for up to limit jobs. Arguments outside the SQS limits
// are clamped rather than rejected.
func (q *SQSQueue) Receive(ctx context.Context, limit int, wait time.Duration) ([]queueMessage, error) {
	limit = min(max(limit, 1), sqsMaxBatch)
	wait = min(max(wait, 0), sqsMaxWait)

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(q.queueURL),
		MaxNumberOfMessages:         int32(limit),
		WaitTimeSeconds:             int32(wait / time.Second),
		MessageAttributeNames:       []string{attrJobID},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: sqs receive: %w", err)
	}

	msgs := make([]queueMessage, len(out.Messages))
	for i, m := range out.Messages {
		msgs[i] = queueMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		}
		if v, ok := m.MessageAttributes[attrJobID]; ok {
			msgs[i].JobID = aws.ToString(v.StringValue)
		}
		if n, err := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
			msgs[i].Deliveries = n
		}
	}
	return msgs, nil
}

func (q *SQSQueue) Delete(ctx context.Context, msg queueMessage) error {
	if msg.ReceiptHandle == "" {
		return nil
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	}); err != nil {
		return fmt.Errorf("conversation: sqs delete %s: %w", msg.ID, err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
