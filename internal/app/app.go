package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/capture"
	"github.com/lukasbauer/livescribe/internal/eventlog"
	"github.com/lukasbauer/livescribe/internal/httpapi"
	"github.com/lukasbauer/livescribe/internal/jobs"
	"github.com/lukasbauer/livescribe/internal/llm"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/mic"
	"github.com/lukasbauer/livescribe/internal/notifications"
	"github.com/lukasbauer/livescribe/internal/stt"
)

type App struct {
	cfg        Config
	logger     *logrus.Logger
	db         *pgxpool.Pool
	eventLog   *eventlog.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client // Shared HTTP client for the generation API
	ctrl       *capture.Controller
	ops        *httpapi.OpRegistry
	retention  *jobs.EventRetentionJob
}

func New(cfg Config, logger *logrus.Logger) (*App, error) {
	if cfg.LiveAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY or LIVE_API_KEY is required")
	}
	if cfg.SummaryAPIKey() == "" {
		return nil, errors.New("an API key for LLM_PROVIDER=" + cfg.LLMProvider + " is required")
	}

	// The event log is optional; without a database lifecycle events are
	// skipped.
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		db = pool
	}
	el := eventlog.New(db)
	m := metrics.New()

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2, // one generation host
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	summarizer := llm.NewSummarizer(newGenerator(cfg, httpClient), cfg.SummaryTimeout, logger)
	dialer := stt.NewLiveDialer(stt.LiveConfig{
		URL:          cfg.LiveURL,
		APIKey:       cfg.LiveAPIKey,
		Model:        cfg.LiveModel,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
	opener := mic.NewOpener(cfg.FramesPerBlock, logger)

	ctrl := capture.NewController(capture.Config{
		Session: stt.SessionConfig{
			Modality:      stt.ModalityText,
			Transcription: true,
			MaxSpeakers:   cfg.MaxSpeakers,
		},
		OpenTimeout: cfg.OpenTimeout,
		Metrics:     m,
		EventLog:    el,
		Logger:      logger,
	}, opener, dialer, summarizer)
	ctrl.Subscribe(errorReporter(sentry.CurrentHub()))
	ctrl.Subscribe(usageRecorder(ctrl.Status, cfg.LLMProvider, m, el, logger))
	ctrl.Subscribe(alertNotifier(ctrl.Status, notifications.NewDiscord(cfg.DiscordWebhookURL, logger)))

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		eventLog:   el,
		metrics:    m,
		httpClient: httpClient,
		ctrl:       ctrl,
		ops:        httpapi.NewOpRegistry(),
	}, nil
}

func newGenerator(cfg Config, hc *http.Client) llm.Generator {
	if cfg.LLMProvider == "openai" {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.SummaryTemperature,
			HTTPClient:  hc,
		})
	}
	return llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.SummaryTemperature,
		HTTPClient:  hc,
	})
}

// Controller returns the capture controller shared by every surface.
func (a *App) Controller() *capture.Controller {
	return a.ctrl
}

// Ops returns the drain gate for control requests.
func (a *App) Ops() *httpapi.OpRegistry {
	return a.ops
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret: a.cfg.JWTSecret,
		JWTExpiry: a.cfg.JWTExpiry,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.ctrl, a.metrics.Handler(), a.ops)
}

// StartJobs launches background maintenance. It is a no-op without a
// database or with retention disabled.
func (a *App) StartJobs() {
	if a.db == nil || a.cfg.EventRetention <= 0 || a.retention != nil {
		return
	}
	a.retention = jobs.NewEventRetentionJob(a.eventLog, a.logger, a.cfg.EventRetention, 0)
	a.retention.Start()
}

// Close releases any active session without summarizing, then the database.
func (a *App) Close() error {
	if a.retention != nil {
		a.retention.Stop()
		a.retention = nil
	}
	err := a.ctrl.Close()
	if a.db != nil {
		a.db.Close()
	}
	return err
}
