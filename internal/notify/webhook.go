package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// SignatureHeader carries the HMAC of the request body as "sha256=<hex>".
const SignatureHeader = "X-Blockpress-Signature"

// WebhookOutput posts the event as JSON to an HTTP endpoint.
type WebhookOutput struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookOutput creates a webhook output. A non-empty secret signs every
// request body.
func NewWebhookOutput(endpoint, secret string) (*WebhookOutput, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webhook url must be an absolute http(s) URL, got %q", endpoint)
	}
	return &WebhookOutput{
		url:    endpoint,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// NewWebhookOutputFromEnv reads the signing secret from the named
// environment variable.
func NewWebhookOutputFromEnv(endpoint, secretEnv string) (*WebhookOutput, error) {
	var secret string
	if secretEnv != "" {
		secret = os.Getenv(secretEnv)
		if secret == "" {
			return nil, fmt.Errorf("%s environment variable not set", secretEnv)
		}
	}
	return NewWebhookOutput(endpoint, secret)
}

// Name returns "webhook".
func (w *WebhookOutput) Name() string { return "webhook" }

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(body []byte, secret, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(body, secret)))
}

// Send posts the event.
func (w *WebhookOutput) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(struct {
		Type string `json:"event"`
		Event
	}{Type: "document.published", Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &HTTPError{Output: "webhook", StatusCode: resp.StatusCode}
	}
	return nil
}

// Close is a no-op for webhook output.
func (w *WebhookOutput) Close() error { return nil }
