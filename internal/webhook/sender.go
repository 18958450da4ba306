// Package webhook forwards queue events to operator-configured HTTP
// endpoints. It is a second notification sink next to the WebSocket hub.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/granobox/spool/internal/config"
	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/notify"
)

const (
	SignatureHeader = "X-Spool-Signature"
	EventHeader     = "X-Spool-Event"
)

type Payload struct {
	Event     notify.EventType `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	ItemID    int64            `json:"itemId,omitempty"`
}

type task struct {
	target  config.WebhookTarget
	payload []byte
	event   notify.EventType
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

// Sender delivers events asynchronously through a small worker pool.
// Broadcast never blocks; when the buffer is full the event is dropped.
type Sender struct {
	targets    []config.WebhookTarget
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	workers    int
	logger     *zap.Logger
	now        func() time.Time

	queue  chan *task
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewSender(cfg config.WebhooksConfig, logger *zap.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		targets:    cfg.Targets,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		workers:    cfg.Workers,
		logger:     logging.OrNop(logger).With(zap.String("component", "webhook")),
		now:        time.Now,
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sender) Broadcast(evt notify.Event) {
	var body []byte
	for _, target := range s.targets {
		if !target.Wants(string(evt.Type)) {
			continue
		}
		if body == nil {
			var err error
			body, err = json.Marshal(Payload{Event: evt.Type, Timestamp: s.now().UTC(), ItemID: evt.ItemID})
			if err != nil {
				s.logger.Error("failed to encode webhook payload", zap.Error(err))
				return
			}
		}

		select {
		case s.queue <- &task{target: target, payload: body, event: evt.Type}:
		default:
			s.logger.Warn("webhook queue full, dropping event",
				zap.String("url", target.URL),
				zap.String("event", string(evt.Type)))
		}
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.logger.Warn("webhook delivery failed",
					zap.Int("worker", id),
					zap.String("url", t.target.URL),
					zap.String("event", string(t.event)),
					zap.Error(err))
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for attempt := 1; attempt <= s.retryCount; attempt++ {
		err := s.send(t)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
			return err
		}

		if attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested: %w", lastErr)
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) send(t *task) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.target.URL, bytes.NewReader(t.payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(t.event))
	if t.target.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(t.payload, t.target.Secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload, as sent in SignatureHeader.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
