package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/capture"
	"github.com/lukasbauer/livescribe/internal/costs"
	"github.com/lukasbauer/livescribe/internal/eventlog"
	"github.com/lukasbauer/livescribe/internal/llm"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/notifications"
)

// NewLogger builds the process logger from cfg. An empty LogFile means
// stderr.
func NewLogger(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	logger.SetOutput(out)
	return logger, nil
}

// reportable reports whether ev is a session failure not caused by the local
// environment.
func reportable(ev capture.Event) bool {
	if ev.Kind != capture.EventError || ev.Err == nil {
		return false
	}
	switch ev.Err.Kind {
	case capture.PermissionDenied, capture.DeviceNotFound, capture.EmptyInput:
		return false
	}
	return true
}

// errorReporter forwards reportable session failures to Sentry.
func errorReporter(hub *sentry.Hub) capture.Observer {
	return func(ev capture.Event) {
		if !reportable(ev) {
			return
		}
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("error_kind", ev.Err.Kind.String())
			hub.CaptureException(ev.Err)
		})
	}
}

// usageRecorder estimates the spend of each summarized session and records
// it in metrics, the event log and the process log.
func usageRecorder(status func() capture.Status, provider string, m *metrics.Metrics, el *eventlog.Logger, logger *logrus.Logger) capture.Observer {
	return func(ev capture.Event) {
		if ev.Kind != capture.EventSummary {
			return
		}
		st := status()
		c := costs.CalculateSessionCosts(costs.SessionUsage{
			RecordedSeconds: int(st.Elapsed.Seconds()),
			PromptChars:     len(llm.BuildSummaryPrompt(st.Transcript)),
			SummaryChars:    len(ev.Summary),
			Provider:        provider,
		})

		m.EstimatedCostCents.WithLabelValues("live").Add(c.LiveCostCents)
		m.EstimatedCostCents.WithLabelValues("summary").Add(c.SummaryCostCents)
		el.LogAsync(st.SessionID, eventlog.EventUsageEstimated, map[string]any{
			"recorded_seconds":   int(st.Elapsed.Seconds()),
			"live_cost_cents":    c.LiveCostCents,
			"summary_cost_cents": c.SummaryCostCents,
			"total_cost_cents":   c.TotalCostCents,
		})
		logger.WithFields(logrus.Fields{
			"session_id":       st.SessionID,
			"total_cost_cents": c.TotalCostCents,
		}).Info("usage: session estimated")
	}
}

// alertNotifier posts reportable session failures to the operator webhook.
func alertNotifier(status func() capture.Status, d *notifications.Discord) capture.Observer {
	return func(ev capture.Event) {
		if !d.Enabled() || !reportable(ev) {
			return
		}
		d.NotifySessionFailed(context.Background(), status().SessionID, ev.Err.Kind.String(), ev.Err.Kind.Message())
	}
}
