// Package dashboard is the operator side of the analytics pipeline. A Client
// holds the operator token and the last fetched event set with its summary,
// and keeps that summary in step with deletes without fetching again.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pulsetrail/api/aggregate"
	"pulsetrail/api/logging"
	"pulsetrail/api/models"
)

type State int

const (
	StateUnauthenticated State = iota
	StateLoading
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DeletePrompt = "Are you sure you want to delete this event?"
	ClearPrompt  = "Are you sure you want to clear ALL analytics data? This action cannot be undone."
)

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// AlwaysConfirm approves every prompt.
var AlwaysConfirm = ConfirmFunc(func(string) bool { return true })

type Config struct {
	// BaseURL is the API root, for example "http://localhost:8080".
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds every request. Zero means 15s.
	Timeout time.Duration
	// Tokens persists the operator token. Nil keeps it in memory only.
	Tokens TokenStore
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	tokens  TokenStore

	mu    sync.Mutex
	state State
	token string
	data  *models.DataResponse
	err   error
	// gen identifies the latest load so that a slow, superseded fetch
	// cannot overwrite newer state.
	gen uint64
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("dashboard: base URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Tokens == nil {
		cfg.Tokens = &MemoryTokenStore{}
	}
	return &Client{
		baseURL: base,
		http:    cfg.HTTPClient,
		timeout: cfg.Timeout,
		tokens:  cfg.Tokens,
		state:   StateUnauthenticated,
	}, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the error behind the current state, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Snapshot returns a deep copy of the cached data. The second result is false
// when nothing has been loaded.
func (c *Client) Snapshot() (models.DataResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return models.DataResponse{}, false
	}
	return cloneResponse(*c.data), true
}

// Resume logs in with a previously saved token. Without one the client stays
// unauthenticated and no request is made.
func (c *Client) Resume(ctx context.Context) error {
	token, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	return c.Login(ctx, token)
}

// Login fetches the data with token. On success the token is saved; a 401
// clears any saved token.
func (c *Client) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	return c.load(ctx, token)
}

// Refresh fetches the data again with the held token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		return ErrNotAuthenticated
	}
	return c.load(ctx, token)
}

func (c *Client) load(ctx context.Context, token string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = StateLoading
	c.token = token
	c.err = nil
	c.mu.Unlock()

	var resp models.DataResponse
	err := c.do(ctx, "query", http.MethodGet, "/api/analytics/data", token, nil, &resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return err
	}

	if err != nil {
		c.failLocked(err)
		return err
	}

	normalize(&resp)
	c.data = &resp
	c.state = StateAuthenticated
	c.err = nil
	if saveErr := c.tokens.Save(token); saveErr != nil {
		logging.Warn().Err(saveErr).Msg("failed to persist operator token")
	}
	return nil
}

// DeleteEvent deletes one event after confirmation. Only once the server
// confirms the delete is the event taken out of the cached data, and the
// removal is applied to whatever the cache holds at that moment. It reports
// whether the delete was sent; a declined confirmation returns false, nil.
func (c *Client) DeleteEvent(ctx context.Context, id string, confirm Confirmer) (bool, error) {
	if confirm != nil && !confirm.Confirm(DeletePrompt) {
		return false, nil
	}

	token, err := c.authenticatedToken()
	if err != nil {
		return false, err
	}

	body := models.DeleteRequest{ID: id}
	if err := c.do(ctx, "delete", http.MethodDelete, "/api/analytics/delete", token, body, nil); err != nil {
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		return true, err
	}

	c.mu.Lock()
	if c.data != nil {
		next, _ := aggregate.Remove(*c.data, id)
		c.data = &next
	}
	c.mu.Unlock()
	return true, nil
}

// ClearAll purges every event after confirmation and then fetches again.
func (c *Client) ClearAll(ctx context.Context, confirm Confirmer) (bool, error) {
	if confirm != nil && !confirm.Confirm(ClearPrompt) {
		return false, nil
	}

	token, err := c.authenticatedToken()
	if err != nil {
		return false, err
	}

	if err := c.do(ctx, "clear", http.MethodDelete, "/api/analytics/clear", token, nil, nil); err != nil {
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		return true, err
	}
	return true, c.Refresh(ctx)
}

// Reset drops the token, the cached data and any error, returning the client
// to the unauthenticated state so the operator can authenticate again.
func (c *Client) Reset() error {
	c.mu.Lock()
	c.gen++
	c.state = StateUnauthenticated
	c.token = ""
	c.data = nil
	c.err = nil
	c.mu.Unlock()

	return c.tokens.Clear()
}

func (c *Client) authenticatedToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.state == StateUnauthenticated {
		return "", ErrNotAuthenticated
	}
	return c.token, nil
}

// failLocked moves to the state matching err. The cached data is kept.
func (c *Client) failLocked(err error) {
	c.err = err
	if errors.Is(err, ErrUnauthorized) {
		c.state = StateUnauthenticated
		c.token = ""
		if clearErr := c.tokens.Clear(); clearErr != nil {
			logging.Warn().Err(clearErr).Msg("failed to clear operator token")
		}
		return
	}
	c.state = StateError
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(payload)}
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}
	return nil
}

func errorMessage(payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		return body.Error
	}
	return ""
}

// normalize replaces missing maps and slices so the reducer never sees nil.
func normalize(r *models.DataResponse) {
	if r.Events == nil {
		r.Events = []models.Event{}
	}
	s := &r.Summary
	for _, m := range []*map[string]int{&s.EventTypes, &s.TopPages, &s.TopElements, &s.DailyStats} {
		if *m == nil {
			*m = map[string]int{}
		}
	}
	if s.RecentActivity == nil {
		s.RecentActivity = []models.Event{}
	}
}

func cloneResponse(r models.DataResponse) models.DataResponse {
	out := models.DataResponse{
		Events:      cloneEvents(r.Events),
		TotalEvents: r.TotalEvents,
		Summary: models.Summary{
			TotalEvents:    r.Summary.TotalEvents,
			UniqueSessions: r.Summary.UniqueSessions,
			EventTypes:     cloneMap(r.Summary.EventTypes),
			TopPages:       cloneMap(r.Summary.TopPages),
			TopElements:    cloneMap(r.Summary.TopElements),
			RecentActivity: cloneEvents(r.Summary.RecentActivity),
			DailyStats:     cloneMap(r.Summary.DailyStats),
		},
	}
	return out
}

func cloneEvents(events []models.Event) []models.Event {
	out := make([]models.Event, len(events))
	copy(out, events)
	for i := range out {
		if out[i].Metadata != nil {
			m := make(map[string]any, len(out[i].Metadata))
			for k, v := range out[i].Metadata {
				m[k] = v
			}
			out[i].Metadata = m
		}
	}
	return out
}

func cloneMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
