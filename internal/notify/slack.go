package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// slackWebhookURLPrefix is the required prefix for Slack webhook URLs.
const slackWebhookURLPrefix = "https://hooks.slack.com/"

func validateSlackWebhookURL(url string) error {
	if !strings.HasPrefix(url, slackWebhookURLPrefix) {
		return fmt.Errorf("invalid Slack webhook URL: must start with %s", slackWebhookURLPrefix)
	}
	return nil
}

// SlackOutput posts announcements to a Slack channel via webhook.
type SlackOutput struct {
	channel    string
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// NewSlackOutput creates a Slack output using the SLACK_WEBHOOK_URL
// environment variable.
func NewSlackOutput(channel string) (*SlackOutput, error) {
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")
	if webhookURL == "" {
		return nil, fmt.Errorf("SLACK_WEBHOOK_URL environment variable not set")
	}
	return NewSlackOutputWithURL(channel, webhookURL)
}

// NewSlackOutputWithURL creates a Slack output with an explicit webhook URL,
// which must start with https://hooks.slack.com/.
func NewSlackOutputWithURL(channel, webhookURL string) (*SlackOutput, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if err := validateSlackWebhookURL(webhookURL); err != nil {
		return nil, err
	}
	return newSlackOutput(channel, webhookURL)
}

func newSlackOutput(channel, webhookURL string) (*SlackOutput, error) {
	if channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}
	return &SlackOutput{
		channel:    channel,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name returns "slack".
func (s *SlackOutput) Name() string { return "slack" }

// Send posts the event message to the channel.
func (s *SlackOutput) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(slackPayload{Channel: s.channel, Text: ev.Message()})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &HTTPError{Output: "slack", StatusCode: resp.StatusCode}
	}
	return nil
}

// Close is a no-op for Slack output.
func (s *SlackOutput) Close() error { return nil }
