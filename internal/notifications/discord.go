package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Discord is a simple Discord webhook notifier for operator alerts. It never
// sends transcript or summary text.
type Discord struct {
	webhookURL string
	logger     *logrus.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *logrus.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		log := d.logger.WithField("component", "discord")

		body, err := json.Marshal(msg)
		if err != nil {
			log.WithError(err).Warn("discord: failed to marshal message")
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			log.WithError(err).Warn("discord: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			log.WithError(err).Warn("discord: failed to send webhook")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			log.WithField("status", resp.StatusCode).Warn("discord: webhook rejected message")
		}
	}()
}

// NotifySessionFailed alerts that a recording session ended in an error.
func (d *Discord) NotifySessionFailed(ctx context.Context, sessionID, kind, message string) {
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Session failed",
			Description: message,
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Session", Value: fmt.Sprintf("`%s`", sessionID), Inline: true},
				{Name: "Kind", Value: kind, Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}
