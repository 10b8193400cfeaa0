package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/metrics"
	"github.com/ossamaweb/auto-vid/internal/model"
)

const defaultUserAgent = "Auto-Vid/1.0"

// Notifier sends job notifications. Delivery problems never reach the
// caller; Notify only reports whether the webhook accepted the payload.
type Notifier interface {
	Notify(ctx context.Context, wh *jobspec.Webhook, payload model.WebhookPayload) bool
}

// NotificationService posts webhook payloads with bounded retries.
type NotificationService struct {
	http      *http.Client
	attempts  int
	wait      backoff
	userAgent string
	log       zerolog.Logger
}

func NewNotificationService(cfg config.WebhookConfig, log zerolog.Logger) *NotificationService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &NotificationService{
		http:      &http.Client{Timeout: timeout},
		attempts:  attempts,
		wait:      exponential(base),
		userAgent: ua,
		log:       log.With().Str("component", "webhook").Logger(),
	}
}

func (s *NotificationService) Notify(ctx context.Context, wh *jobspec.Webhook, payload model.WebhookPayload) bool {
	if wh == nil || wh.URL == "" {
		return false
	}
	log := s.log.With().Str("job_id", payload.JobID).Str("url", wh.URL).Logger()

	if len(wh.Metadata) > 0 {
		meta, err := json.Marshal(wh.Metadata)
		if err == nil {
			payload.Metadata = meta
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode webhook payload")
		return false
	}
	method := wh.Method
	if method == "" {
		method = http.MethodPost
	}

	err = retry(ctx, s.attempts, s.wait, func(attempt int) error {
		err := s.send(ctx, method, wh, body)
		if err != nil {
			metrics.WebhookAttempt(apperr.KindOf(err).String())
			log.Warn().Err(err).Int("attempt", attempt).Msg("webhook attempt failed")
			return err
		}
		metrics.WebhookAttempt("success")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("status", string(payload.Status)).Msg("webhook not delivered")
		return false
	}
	log.Info().Str("status", string(payload.Status)).Msg("webhook delivered")
	return true
}

func (s *NotificationService) send(ctx context.Context, method string, wh *jobspec.Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, wh.URL, bytes.NewReader(body))
	if err != nil {
		return apperr.Validation("webhook", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range wh.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		// Anything below HTTP is worth another attempt.
		return apperr.Transient("webhook", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 400 {
		return nil
	}
	return apperr.E(apperr.ClassifyHTTPStatus(resp.StatusCode), "webhook", fmt.Errorf("%s %s: status %d", method, wh.URL, resp.StatusCode))
}
