package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/models"
)

// HTTPClient implements DataSource by calling the repflow REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the session lives on the server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. The
// API key is sent on mutating calls.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, data)
	}

	return data, nil
}

func (c *HTTPClient) snapshot(ctx context.Context, method, path string, body any) (*engine.Snapshot, error) {
	data, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("httpclient: decode snapshot: %w", err)
	}
	return &snap, nil
}

func (c *HTTPClient) ActiveSession(ctx context.Context) (*engine.Snapshot, error) {
	return c.snapshot(ctx, http.MethodGet, "/api/v1/session", nil)
}

func (c *HTTPClient) StartSession(ctx context.Context, routineID uuid.UUID) (*engine.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, "/api/v1/session/start",
		map[string]string{"routine_id": routineID.String()})
}

func (c *HTTPClient) LogSet(ctx context.Context, exercise, set, reps int, weightKg float64, restSec int) (*engine.Snapshot, error) {
	path := fmt.Sprintf("/api/v1/session/exercises/%d/sets/%d/complete", exercise, set)
	return c.snapshot(ctx, http.MethodPost, path, map[string]any{
		"reps":      reps,
		"weight_kg": weightKg,
		"rest_sec":  restSec,
	})
}

func (c *HTTPClient) SkipRest(ctx context.Context) (*engine.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, "/api/v1/session/rest/skip", map[string]any{})
}

func (c *HTTPClient) FinishSession(ctx context.Context) (*engine.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, "/api/v1/session/finish", map[string]any{})
}

func (c *HTTPClient) ListRoutines(ctx context.Context) ([]models.Routine, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/routines", nil, nil)
	if err != nil {
		return nil, err
	}
	var routines []models.Routine
	if err := json.Unmarshal(data, &routines); err != nil {
		return nil, fmt.Errorf("httpclient: decode routines: %w", err)
	}
	return routines, nil
}

func (c *HTTPClient) ExerciseHistory(ctx context.Context, exerciseID, routineID uuid.UUID) ([]models.Set, error) {
	params := url.Values{}
	if routineID != uuid.Nil {
		params.Set("routine", routineID.String())
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v1/history/"+exerciseID.String(), params, nil)
	if err != nil {
		return nil, err
	}
	var sets []models.Set
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("httpclient: decode history: %w", err)
	}
	return sets, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v1/sessions", params, nil)
	if err != nil {
		return nil, err
	}
	var sessions []models.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("httpclient: decode sessions: %w", err)
	}
	return sessions, nil
}
