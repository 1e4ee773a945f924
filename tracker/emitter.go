package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/utils"
)

const (
	ClickEventType    = "clicked"
	PageViewEventType = "page_view"

	// DefaultTimeout bounds a single tracking request.
	DefaultTimeout = 5 * time.Second
)

// EmitterConfig is everything an Emitter needs; nothing is read from ambient state.
type EmitterConfig struct {
	// Endpoint is the absolute URL of the ingestion endpoint.
	Endpoint string
	// SessionID groups this visitor's events. Empty means a synthetic
	// "session_<unix-ms>" id fixed at construction.
	SessionID  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Resolver   Resolver
	// FailureThreshold is the number of consecutive failed deliveries that
	// opens the circuit. Zero means 5.
	FailureThreshold uint32
	// CooldownPeriod is how long the circuit stays open. Zero means 30s.
	CooldownPeriod time.Duration
	Clock          func() time.Time
}

// PageContext describes the page an interaction happened on.
type PageContext struct {
	Path      string
	UserAgent string
}

type payload struct {
	EventType   string         `json:"event_type"`
	ElementID   string         `json:"element_id,omitempty"`
	ElementText string         `json:"element_text,omitempty"`
	PagePath    string         `json:"page_path"`
	UserAgent   string         `json:"user_agent,omitempty"`
	SessionID   string         `json:"session_id"`
	Timestamp   string         `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Emitter sends tracking requests at most once each, in the background.
// Delivery failures are logged and counted, never reported to the caller.
type Emitter struct {
	endpoint  string
	sessionID string
	client    *http.Client
	timeout   time.Duration
	resolver  Resolver
	clock     func() time.Time
	breaker   *gobreaker.CircuitBreaker[struct{}]
	wg        sync.WaitGroup
}

func NewEmitter(cfg EmitterConfig) (*Emitter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("tracker: endpoint is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.SessionID == "" {
		cfg.SessionID = utils.SyntheticSessionID(cfg.Clock())
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "tracking-endpoint",
		MaxRequests: 1,
		Timeout:     cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("tracking circuit state change")
		},
	})

	return &Emitter{
		endpoint:  cfg.Endpoint,
		sessionID: cfg.SessionID,
		client:    cfg.HTTPClient,
		timeout:   cfg.Timeout,
		resolver:  cfg.Resolver,
		clock:     cfg.Clock,
		breaker:   breaker,
	}, nil
}

func (e *Emitter) SessionID() string {
	return e.sessionID
}

// Track resolves a label for target and, when one is found, sends a click
// event. It reports whether a request was dispatched. A target without a
// label is not an error; nothing is sent.
func (e *Emitter) Track(ctx context.Context, target Node, page PageContext) bool {
	label, ok := e.resolver.Resolve(target)
	if !ok {
		return false
	}

	e.dispatch(ctx, payload{
		EventType:   ClickEventType,
		ElementID:   utils.ElementID(label),
		ElementText: label,
		PagePath:    page.Path,
		UserAgent:   page.UserAgent,
		SessionID:   e.sessionID,
		Timestamp:   e.clock().UTC().Format(time.RFC3339Nano),
		Metadata: map[string]any{
			"title":            label,
			"interaction_type": "click",
		},
	})
	return true
}

// TrackPageView sends a page_view event for page.
func (e *Emitter) TrackPageView(ctx context.Context, page PageContext) {
	e.dispatch(ctx, payload{
		EventType: PageViewEventType,
		PagePath:  page.Path,
		UserAgent: page.UserAgent,
		SessionID: e.sessionID,
		Timestamp: e.clock().UTC().Format(time.RFC3339Nano),
	})
}

// Close waits for in-flight requests to finish.
func (e *Emitter) Close() {
	e.wg.Wait()
}

func (e *Emitter) dispatch(ctx context.Context, p payload) {
	body, err := json.Marshal(p)
	if err != nil {
		metrics.EmitterDeliveries.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Msg("failed to encode tracking payload")
		return
	}

	// The host may cancel ctx as soon as Track returns; only its values are kept.
	sendCtx := context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		_, err := e.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, e.send(sendCtx, body)
		})
		switch {
		case err == nil:
			metrics.EmitterDeliveries.WithLabelValues("sent").Inc()
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.EmitterDeliveries.WithLabelValues("dropped").Inc()
			logging.Debug().Str("event_type", p.EventType).Msg("tracking circuit open, event dropped")
		default:
			metrics.EmitterDeliveries.WithLabelValues("failed").Inc()
			logging.Warn().Err(err).Str("event_type", p.EventType).Msg("failed to send tracking event")
		}
	}()
}

func (e *Emitter) send(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build tracking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracking request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tracking endpoint returned %d", resp.StatusCode)
	}
	return nil
}
