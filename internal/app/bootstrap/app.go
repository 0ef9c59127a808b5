package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadqual-platform/internal/api/router"
	"github.com/wolfman30/leadqual-platform/internal/archive"
	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/calendar"
	appconfig "github.com/wolfman30/leadqual-platform/internal/config"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/leadqual-platform/internal/http/middleware"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/meetings"
	"github.com/wolfman30/leadqual-platform/internal/messaging"
	"github.com/wolfman30/leadqual-platform/internal/notify"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/internal/worker/background"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

const leadLockTTL = 30 * time.Second

// App is the fully wired process: HTTP surface, inbound pipeline and the
// shared background pool.
type App struct {
	Router       http.Handler
	Pipeline     *Pipeline
	Conversation *conversation.Service
	Meetings     *meetings.Service
	Background   *background.Pool

	logger   *logging.Logger
	pgPool   *pgxpool.Pool
	sqlDB    *sql.DB
	redis    *redis.Client
	llmClose func() error
}

// New wires every component from configuration. Postgres and Redis are
// optional outside production; without them the process runs on in-memory
// stores.
func New(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{logger: logger, llmClose: func() error { return nil }}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	messagingMetrics := metrics.NewMessagingMetrics(registry)
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	pgPool, sqlDB, err := ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if pgPool == nil && cfg.Env == "production" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required in production")
	}
	app.pgPool, app.sqlDB = pgPool, sqlDB
	app.redis = BuildRedisClient(ctx, cfg, logger, true)
	repos := BuildRepositories(pgPool, sqlDB, app.redis, logger)

	app.Background = background.New("background", cfg.BackgroundWorkers, cfg.BackgroundQueueSize, logger,
		background.WithMetrics(pipelineMetrics))

	llm, model, llmClose, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.llmClose = llmClose
	generator := BuildGenerator(cfg, llm, model, pipelineMetrics)

	sender, err := BuildSender(cfg, messagingMetrics, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	convOpts := []conversation.ServiceOption{
		conversation.WithTaskRunner(app.Background),
		conversation.WithMetrics(pipelineMetrics),
		conversation.WithHistoryWindow(cfg.HistoryWindow),
	}
	if app.redis != nil {
		convOpts = append(convOpts, conversation.WithLocker(conversation.NewRedisLocker(app.redis, leadLockTTL)))
	}
	if bucket := strings.TrimSpace(cfg.TranscriptArchiveBucket); bucket != "" {
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		convOpts = append(convOpts, conversation.WithArchiver(archive.NewStore(s3Client, bucket, logger, archive.WithLeadHashKey(cfg.TranscriptHashKey))))
		logger.Info("transcript archival enabled", "bucket", bucket)
	}
	app.Conversation = conversation.NewService(repos.Leads, repos.Businesses, repos.Conversations, generator, sender, logger, convOpts...)

	app.Pipeline, err = BuildPipeline(cfg, awsCfg, app.Conversation, pipelineMetrics, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	meetingOpts := []meetings.Option{
		meetings.WithTaskRunner(app.Background),
		meetings.WithMetrics(pipelineMetrics),
		meetings.WithDefaultDuration(cfg.DefaultMeetingMinutes),
		meetings.WithNotifier(notify.NewMeetingNotifier(BuildEmailSender(cfg, awsCfg, logger), logger)),
	}
	if app.redis != nil {
		meetingOpts = append(meetingOpts, meetings.WithReserver(meetings.NewRedisReserver(app.redis, cfg.SlotReservationTTL)))
	}
	var calendarHandler *calendar.Handler
	if strings.TrimSpace(cfg.GoogleClientID) != "" {
		provider := calendar.NewGoogleProvider(calendar.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Timeout:      cfg.CalendarTimeout,
		}, logger)
		meetingOpts = append(meetingOpts, meetings.WithCalendar(provider, repos.Credentials))
		calendarHandler = calendar.NewHandler(provider, repos.Credentials, logger)
	} else {
		logger.Warn("google calendar not configured; meetings are booked locally only")
	}
	app.Meetings = meetings.NewService(repos.Leads, repos.Businesses, repos.Meetings, logger, meetingOpts...)

	var dedup messaging.DedupStore = messaging.NewMemoryDedupStore(cfg.WebhookDedupTTL)
	if app.redis != nil {
		dedup = messaging.NewRedisDedupStore(app.redis, cfg.WebhookDedupTTL)
	}
	webhookToken := cfg.TwilioWebhookSecret
	if webhookToken == "" {
		webhookToken = cfg.TwilioAuthToken
	}
	messagingHandler := messaging.NewHandler(webhookToken, app.Pipeline.Publisher, logger,
		messaging.WithDedupStore(dedup),
		messaging.WithPublicURL(cfg.PublicBaseURL),
		messaging.WithMetrics(messagingMetrics),
	)

	app.Router = router.New(&router.Config{
		Logger:              logger,
		LeadsHandler:        leads.NewHandler(repos.Leads, logger),
		MessagingHandler:    messagingHandler,
		ConversationHandler: conversation.NewHandler(app.Conversation, app.Pipeline.Jobs, logger),
		MeetingsHandler:     meetings.NewHandler(app.Meetings, logger),
		BusinessHandler:     business.NewHandler(repos.Businesses, logger),
		CalendarHandler:     calendarHandler,
		APIKeys:             repos.Businesses,
		JWTSecret:           cfg.JWTSecret,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		IntakeLimiter:       httpmiddleware.NewRateLimiter(cfg.IntakeRateLimit, cfg.IntakeRateBurst),
	})
	return app, nil
}

// Close drains background work and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Background != nil {
		if err := a.Background.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("background pool: %w", err))
		}
	}
	if a.llmClose != nil {
		if err := a.llmClose(); err != nil {
			errs = append(errs, fmt.Errorf("llm client: %w", err))
		}
	}
	a.closeStorage()
	return errors.Join(errs...)
}

func (a *App) closeStorage() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", "error", err)
		}
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
}
