package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
)

const userAgent = "frameset-webhook/1.0"

type Option func(*Notifier)

// WithSecret signs every delivery. Without it deliveries are unsigned.
func WithSecret(secret string) Option {
	return func(n *Notifier) {
		n.secret = secret
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		n.client = c
	}
}

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(n *Notifier) {
		n.attempts = attempts
		n.backoff = backoff
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(n *Notifier) {
		n.breaker = cb
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// Notifier delivers job events to a fixed set of endpoints. Deliveries run in
// the background; Close waits for the ones in flight.
type Notifier struct {
	urls     []string
	secret   string
	client   *http.Client
	breaker  *CircuitBreaker
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

var _ job.Notifier = (*Notifier)(nil)

func NewNotifier(urls []string, timeout time.Duration, opts ...Option) *Notifier {
	n := &Notifier{
		urls: urls,
		client: &http.Client{
			Timeout:   timeout,
			Transport: tracing.HTTPTransport(nil),
		},
		breaker:  NewCircuitBreaker(5, 10*time.Minute),
		attempts: 3,
		backoff:  2 * time.Second,
		logger:   logger.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.attempts < 1 {
		n.attempts = 1
	}
	return n
}

func (n *Notifier) JobFinished(ctx context.Context, snap job.Snapshot) {
	event, err := NewJobEvent(snap, n.now())
	if err != nil {
		n.logger.Error("failed to build job event", "job_id", snap.ID, "error", err)
		return
	}
	payload, err := event.Marshal()
	if err != nil {
		n.logger.Error("failed to marshal job event", "job_id", snap.ID, "error", err)
		return
	}

	for _, url := range n.urls {
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			n.deliver(ctx, url, event, payload)
		}(url)
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("endpoint responded %d", e.code)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return true
	}
	return se.code >= 500 || se.code == http.StatusTooManyRequests || se.code == http.StatusRequestTimeout
}

func (n *Notifier) deliver(ctx context.Context, url string, event *Event, payload []byte) {
	log := n.logger.With("url", url, "event", event.Type, "delivery_id", event.ID)

	if !n.breaker.Allow(url) {
		log.Warn("webhook circuit open, skipping delivery")
		metrics.RecordWebhookDelivery(event.Type, "skipped")
		return
	}

	var err error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err = n.post(ctx, url, event, payload); err == nil {
			n.breaker.RecordSuccess(url)
			metrics.RecordWebhookDelivery(event.Type, "delivered")
			log.Debug("webhook delivered", "attempt", attempt)
			return
		}
		if !retryable(err) || attempt == n.attempts {
			break
		}

		select {
		case <-time.After(n.backoff * time.Duration(attempt)):
			continue
		case <-ctx.Done():
			err = ctx.Err()
		}
		break
	}

	n.breaker.RecordFailure(url)
	metrics.RecordWebhookDelivery(event.Type, "failed")
	log.Warn("webhook delivery failed", "error", err, "circuit", n.breaker.State(url))
}

func (n *Notifier) post(ctx context.Context, url string, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderDelivery, event.ID)
	if n.secret != "" {
		req.Header.Set(HeaderSignature, SignatureHeader(payload, n.secret, n.now()))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// Close waits for in-flight deliveries or until ctx is done.
func (n *Notifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
