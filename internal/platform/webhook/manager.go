// Package webhook manages outbound webhook subscriptions for referral events:
// endpoint registration, HMAC-SHA256 payload signing, delivery with retry,
// delivery logging, and an Echo handler for API exposure.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/labstack/echo/v4"

	"github.com/referral/referral/pkg/pagination"
)

// Endpoint represents a registered webhook destination.
type Endpoint struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryAttempt records a single delivery attempt for a webhook event.
type DeliveryAttempt struct {
	ID           string        `json:"id"`
	WebhookID    string        `json:"webhook_id"`
	EventType    string        `json:"event_type"`
	EventID      string        `json:"event_id"`
	Payload      []byte        `json:"payload"`
	Signature    string        `json:"signature"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body"`
	Duration     time.Duration `json:"duration_ns"`
	Status       string        `json:"status"` // "success", "failed", "pending"
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Event is a referral event delivered to webhook endpoints. Type follows the
// "referral.<action>" convention, e.g. "referral.created",
// "referral.status_changed".
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ReferralID string          `json:"referral_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// DeliveryResult summarises the outcome of delivering an event to one endpoint.
type DeliveryResult struct {
	EndpointID string `json:"endpoint_id"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// Store defines the persistence interface for endpoints and delivery attempts.
type Store interface {
	CreateEndpoint(ctx context.Context, endpoint *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]*Endpoint, int, error)
	UpdateEndpoint(ctx context.Context, endpoint *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, attempt *DeliveryAttempt) error
	ListDeliveries(ctx context.Context, webhookID string, limit, offset int) ([]*DeliveryAttempt, int, error)
	GetDelivery(ctx context.Context, id string) (*DeliveryAttempt, error)
}

// InMemoryStore is a thread-safe, in-memory implementation of Store.
type InMemoryStore struct {
	mu            sync.RWMutex
	endpoints     map[string]*Endpoint
	deliveries    map[string]*DeliveryAttempt
	endpointOrder []string
	deliveryOrder []string
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		endpoints:  make(map[string]*Endpoint),
		deliveries: make(map[string]*DeliveryAttempt),
	}
}

func (s *InMemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.ID] = ep
	s.endpointOrder = append(s.endpointOrder, ep.ID)
	return nil
}

func (s *InMemoryStore) GetEndpoint(_ context.Context, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("endpoint %s not found", id)
	}
	return ep, nil
}

func (s *InMemoryStore) ListEndpoints(_ context.Context, limit, offset int) ([]*Endpoint, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Endpoint
	for _, id := range s.endpointOrder {
		if ep := s.endpoints[id]; ep != nil {
			all = append(all, ep)
		}
	}
	total := len(all)
	if offset >= total {
		return []*Endpoint{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *InMemoryStore) UpdateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; !ok {
		return fmt.Errorf("endpoint %s not found", ep.ID)
	}
	s.endpoints[ep.ID] = ep
	return nil
}

func (s *InMemoryStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return fmt.Errorf("endpoint %s not found", id)
	}
	delete(s.endpoints, id)
	for i, eid := range s.endpointOrder {
		if eid == id {
			s.endpointOrder = append(s.endpointOrder[:i], s.endpointOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) RecordDelivery(_ context.Context, attempt *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[attempt.ID] = attempt
	s.deliveryOrder = append(s.deliveryOrder, attempt.ID)
	return nil
}

func (s *InMemoryStore) ListDeliveries(_ context.Context, webhookID string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*DeliveryAttempt
	for _, id := range s.deliveryOrder {
		d := s.deliveries[id]
		if d == nil {
			continue
		}
		if d.WebhookID == webhookID {
			filtered = append(filtered, d)
		}
	}
	total := len(filtered)
	if offset >= total {
		return []*DeliveryAttempt{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (s *InMemoryStore) GetDelivery(_ context.Context, id string) (*DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s not found", id)
	}
	return d, nil
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given
// secret, returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the
// HMAC-SHA256 of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

// Manager orchestrates endpoint registration and event delivery. Transport
// retries with backoff are handled by the retryablehttp client.
type Manager struct {
	store      Store
	httpClient *http.Client
}

// NewManager creates a Manager with a retrying HTTP client.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	m := &Manager{
		store:      store,
		httpClient: rc.StandardClient(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// generateSecret produces a cryptographically random 32-byte hex string.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validateURL checks that the URL is non-empty and uses http or https.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// RegisterEndpoint validates and persists a new webhook endpoint. If secret is
// empty, a cryptographically random one is generated.
func (m *Manager) RegisterEndpoint(ctx context.Context, rawURL, secret string, events []string) (*Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		secret = s
	}

	ep := &Endpoint{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Secret:    secret,
		Events:    events,
		Status:    "active",
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// PauseEndpoint sets the endpoint status to "paused".
func (m *Manager) PauseEndpoint(ctx context.Context, id string) error {
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}
	ep.Status = "paused"
	return m.store.UpdateEndpoint(ctx, ep)
}

// ResumeEndpoint sets the endpoint status to "active".
func (m *Manager) ResumeEndpoint(ctx context.Context, id string) error {
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}
	ep.Status = "active"
	return m.store.UpdateEndpoint(ctx, ep)
}

// eventMatches returns true if the event type matches a subscription pattern.
// Patterns can be exact ("referral.created") or wildcard ("referral.*",
// "*.status_changed").
func eventMatches(pattern, eventType string) bool {
	if pattern == eventType {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".action"
		return strings.HasSuffix(eventType, suffix)
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := pattern[:len(pattern)-1] // "referral."
		return strings.HasPrefix(eventType, prefix)
	}
	return false
}

// endpointMatchesEvent returns true if the endpoint subscribes to the event type.
func endpointMatchesEvent(ep *Endpoint, eventType string) bool {
	for _, pat := range ep.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// Deliver sends the event to all matching, active endpoints. An error is
// returned when at least one matching endpoint could not be reached, so
// callers driving an outbox can retry the event.
func (m *Manager) Deliver(ctx context.Context, event Event) ([]DeliveryResult, error) {
	endpoints, _, err := m.store.ListEndpoints(ctx, 1000, 0)
	if err != nil {
		return nil, err
	}

	var results []DeliveryResult
	failures := 0
	for _, ep := range endpoints {
		if ep.Status != "active" {
			continue
		}
		if !endpointMatchesEvent(ep, event.Type) {
			continue
		}
		attempt := m.DeliverToEndpoint(ctx, ep, event)
		success := attempt.Status == "success"
		if !success {
			failures++
		}
		results = append(results, DeliveryResult{
			EndpointID: ep.ID,
			Success:    success,
			StatusCode: attempt.StatusCode,
			Error:      attempt.Error,
		})
	}
	if failures > 0 {
		return results, fmt.Errorf("delivery failed for %d of %d matching endpoints", failures, len(results))
	}
	return results, nil
}

// DeliverToEndpoint signs the payload and POSTs it to the endpoint, recording
// the result.
func (m *Manager) DeliverToEndpoint(ctx context.Context, ep *Endpoint, event Event) *DeliveryAttempt {
	payload, _ := json.Marshal(event)
	sig := SignPayload(payload, ep.Secret)
	now := time.Now()

	attempt := &DeliveryAttempt{
		ID:        uuid.New().String(),
		WebhookID: ep.ID,
		EventType: event.Type,
		EventID:   event.ID,
		Payload:   payload,
		Signature: sig,
		Status:    "pending",
		CreatedAt: now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		attempt.Status = "failed"
		attempt.Error = err.Error()
		m.store.RecordDelivery(ctx, attempt)
		return attempt
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+sig)
	req.Header.Set("X-Webhook-ID", ep.ID)
	req.Header.Set("X-Webhook-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	attempt.Duration = time.Since(start)

	if err != nil {
		attempt.Status = "failed"
		attempt.Error = err.Error()
		attempt.StatusCode = 0
		m.store.RecordDelivery(ctx, attempt)
		return attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode

	// Read at most 1KB of response body.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	attempt.ResponseBody = string(bodyBytes)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Status = "success"
	} else {
		attempt.Status = "failed"
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}

	m.store.RecordDelivery(ctx, attempt)
	return attempt
}

// TestEndpoint sends a synthetic test event to verify endpoint connectivity.
func (m *Manager) TestEndpoint(ctx context.Context, endpointID string) (*DeliveryAttempt, error) {
	ep, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, fmt.Errorf("endpoint not found: %w", err)
	}

	testEvent := Event{
		ID:        uuid.New().String(),
		Type:      "webhook.test",
		Payload:   json.RawMessage(`{"test":true}`),
		Timestamp: time.Now(),
	}

	return m.DeliverToEndpoint(ctx, ep, testEvent), nil
}

// GetDeliveryLogs returns paginated delivery attempts for a webhook endpoint.
func (m *Manager) GetDeliveryLogs(ctx context.Context, webhookID string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	return m.store.ListDeliveries(ctx, webhookID, limit, offset)
}

// Handler exposes webhook management via Echo HTTP routes.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new Handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes binds all webhook management routes to the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.RegisterEndpoint)
	g.GET("", h.ListEndpoints)
	g.GET("/:id", h.GetEndpoint)
	g.PUT("/:id", h.UpdateEndpoint)
	g.DELETE("/:id", h.DeleteEndpoint)
	g.POST("/:id/test", h.TestEndpointHandler)
	g.GET("/:id/deliveries", h.GetDeliveryLogs)
	g.POST("/:id/pause", h.PauseEndpointHandler)
	g.POST("/:id/resume", h.ResumeEndpointHandler)
}

// registerRequest is the JSON body for endpoint registration.
type registerRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

// RegisterEndpoint handles POST /webhooks.
func (h *Handler) RegisterEndpoint(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ep, err := h.manager.RegisterEndpoint(c.Request().Context(), req.URL, req.Secret, req.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ep)
}

// ListEndpoints handles GET /webhooks.
func (h *Handler) ListEndpoints(c echo.Context) error {
	pg := pagination.FromContext(c)
	eps, total, err := h.manager.store.ListEndpoints(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(eps, total, pg.Limit, pg.Offset))
}

// GetEndpoint handles GET /webhooks/:id.
func (h *Handler) GetEndpoint(c echo.Context) error {
	ep, err := h.manager.store.GetEndpoint(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	return c.JSON(http.StatusOK, ep)
}

// updateRequest is the JSON body for endpoint updates.
type updateRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Status string   `json:"status"`
}

// UpdateEndpoint handles PUT /webhooks/:id.
func (h *Handler) UpdateEndpoint(c echo.Context) error {
	ep, err := h.manager.store.GetEndpoint(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.URL != "" {
		if err := validateURL(req.URL); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		ep.URL = req.URL
	}
	if len(req.Events) > 0 {
		ep.Events = req.Events
	}
	if req.Status != "" {
		ep.Status = req.Status
	}
	if err := h.manager.store.UpdateEndpoint(c.Request().Context(), ep); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ep)
}

// DeleteEndpoint handles DELETE /webhooks/:id.
func (h *Handler) DeleteEndpoint(c echo.Context) error {
	if err := h.manager.store.DeleteEndpoint(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// TestEndpointHandler handles POST /webhooks/:id/test.
func (h *Handler) TestEndpointHandler(c echo.Context) error {
	attempt, err := h.manager.TestEndpoint(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, attempt)
}

// GetDeliveryLogs handles GET /webhooks/:id/deliveries.
func (h *Handler) GetDeliveryLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	logs, total, err := h.manager.GetDeliveryLogs(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(logs, total, pg.Limit, pg.Offset))
}

// PauseEndpointHandler handles POST /webhooks/:id/pause.
func (h *Handler) PauseEndpointHandler(c echo.Context) error {
	if err := h.manager.PauseEndpoint(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeEndpointHandler handles POST /webhooks/:id/resume.
func (h *Handler) ResumeEndpointHandler(c echo.Context) error {
	if err := h.manager.ResumeEndpoint(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "active"})
}
