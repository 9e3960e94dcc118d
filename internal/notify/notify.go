// Package notify announces published versions to external destinations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event describes one published version.
type Event struct {
	DocumentID string    `json:"documentId"`
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Version    int       `json:"version"`
	URL        string    `json:"url"`
	At         time.Time `json:"publishedAt"`
}

// Message is the plain text form of the event.
func (e Event) Message() string {
	return fmt.Sprintf("Published %q version %d: %s", e.Title, e.Version, e.URL)
}

// Output is a notification destination.
type Output interface {
	Name() string
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Config configures one output.
type Config struct {
	Type string `yaml:"type"` // slack, email or webhook

	Channel string `yaml:"channel,omitempty"` // slack, e.g. "#docs"

	To      string `yaml:"to,omitempty"`      // email recipient
	Subject string `yaml:"subject,omitempty"` // email subject (default: "Published on blockpress")

	URL       string `yaml:"url,omitempty"`        // webhook endpoint
	SecretEnv string `yaml:"secret_env,omitempty"` // webhook: env var holding the signing secret
}

// NewFromConfig creates an output from configuration.
func NewFromConfig(cfg Config) (Output, error) {
	switch cfg.Type {
	case "slack":
		return NewSlackOutput(cfg.Channel)
	case "email":
		return NewEmailOutput(cfg.To, cfg.Subject)
	case "webhook":
		return NewWebhookOutputFromEnv(cfg.URL, cfg.SecretEnv)
	default:
		return nil, fmt.Errorf("unsupported notification type: %q", cfg.Type)
	}
}

// Notifier fans events out to its outputs in the background.
type Notifier struct {
	outputs []Output
	timeout time.Duration
	retry   RetryConfig
	wg      sync.WaitGroup
}

// New creates a notifier. Each delivery is bounded by timeout.
func New(timeout time.Duration, outputs ...Output) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{outputs: outputs, timeout: timeout, retry: DefaultRetryConfig()}
}

// WithRetry replaces the redelivery policy. A zero MaxRetries disables
// retries.
func (n *Notifier) WithRetry(cfg RetryConfig) *Notifier {
	n.retry = cfg
	return n
}

// deliver sends ev to out, retrying transient failures.
func (n *Notifier) deliver(ctx context.Context, out Output, ev Event) error {
	return withRetry(ctx, out.Name(), n.retry, func(ctx context.Context) error {
		return out.Send(ctx, ev)
	})
}

// Len returns the number of outputs.
func (n *Notifier) Len() int {
	return len(n.outputs)
}

// Notify delivers ev to every output without blocking the caller. Failures
// are logged.
func (n *Notifier) Notify(ev Event) {
	for _, out := range n.outputs {
		n.wg.Add(1)
		go func(out Output) {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			if err := n.deliver(ctx, out, ev); err != nil {
				log.Printf("[Notify] %s: failed to announce %s v%d: %v", out.Name(), ev.Slug, ev.Version, err)
			}
		}(out)
	}
}

// SendAll delivers ev to every output and waits for the results.
func (n *Notifier) SendAll(ctx context.Context, ev Event) error {
	var errs []error
	for _, out := range n.outputs {
		if err := n.deliver(ctx, out, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close waits for pending deliveries and closes all outputs.
func (n *Notifier) Close() error {
	n.wg.Wait()
	var errs []error
	for _, out := range n.outputs {
		if err := out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.Name(), err))
		}
	}
	return errors.Join(errs...)
}
