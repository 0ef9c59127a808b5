package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/leadqual-platform/internal/config"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

const memoryQueueBuffer = 1024

type jobStore interface {
	conversation.JobRecorder
	conversation.JobUpdater
}

// Pipeline is the asynchronous half of inbound handling: the webhook
// publishes, the worker consumes.
type Pipeline struct {
	Publisher *conversation.Publisher
	Worker    *conversation.Worker
	Jobs      conversation.JobRecorder
	InProcess bool
}

// BuildPipeline wires the queue and job store. USE_MEMORY_QUEUE (or a missing
// queue URL outside production) keeps everything in process; otherwise jobs
// travel over SQS with state in DynamoDB.
func BuildPipeline(cfg *appconfig.Config, awsCfg aws.Config, processor conversation.InboundProcessor, m *metrics.PipelineMetrics, logger *logging.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logging.Default()
	}
	workerOpts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithJobTimeout(cfg.GenerationTimeout + cfg.CalendarTimeout),
		conversation.WithWorkerMetrics(m),
	}

	useMemory := cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationQueueURL) == ""
	if useMemory {
		if cfg.Env == "production" && !cfg.UseMemoryQueue {
			return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required in production")
		}
		logger.Info("using in-process conversation queue")
		queue := conversation.NewMemoryQueue(memoryQueueBuffer)
		jobs := conversation.NewInMemoryJobStore()
		return &Pipeline{
			Publisher: conversation.NewPublisher(queue, jobs, logger),
			Worker:    conversation.NewWorker(processor, queue, jobs, logger, workerOpts...),
			Jobs:      jobs,
			InProcess: true,
		}, nil
	}

	if strings.TrimSpace(cfg.ConversationJobsTable) == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_JOBS_TABLE is required with an SQS queue")
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
	var jobs jobStore = conversation.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.ConversationJobsTable, logger)
	logger.Info("using sqs conversation queue", "queue_url", cfg.ConversationQueueURL)
	return &Pipeline{
		Publisher: conversation.NewPublisher(queue, jobs, logger),
		Worker:    conversation.NewWorker(processor, queue, jobs, logger, workerOpts...),
		Jobs:      jobs,
	}, nil
}
