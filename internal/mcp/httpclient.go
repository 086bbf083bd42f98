package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
	"github.com/claude/flexion/internal/storage"
)

// HTTPClient implements DataSource by calling the Flexion REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// bucketToAgg maps MCP bucket values to REST API agg parameter values.
func bucketToAgg(bucket string) string {
	switch bucket {
	case "1 day":
		return "daily"
	case "1 week":
		return "weekly"
	case "1 month":
		return "monthly"
	default:
		return "weekly"
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) QuerySessions(ctx context.Context, userID int, start, end time.Time) ([]models.SessionRow, error) {
	params := timeParams(start, end)
	params.Set("user_id", strconv.Itoa(userID))

	body, err := c.get(ctx, "/api/v1/sessions", params)
	if err != nil {
		return nil, err
	}

	var sessions []models.SessionRow
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("httpclient: decode sessions: %w", err)
	}
	return sessions, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	body, err := c.get(ctx, "/api/v1/sessions/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var sess models.SessionRow
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return &sess, nil
}

// LatestSession has no dedicated endpoint; the sessions list comes back
// newest first, so the head of a wide range query is the latest.
func (c *HTTPClient) LatestSession(ctx context.Context, userID int) (*models.SessionRow, error) {
	end := time.Now()
	sessions, err := c.QuerySessions(ctx, userID, end.AddDate(-1, 0, 0), end)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (c *HTTPClient) QuerySessionReps(ctx context.Context, sessionID uuid.UUID) ([]models.RepRow, error) {
	body, err := c.get(ctx, "/api/v1/sessions/"+sessionID.String()+"/reps", nil)
	if err != nil {
		return nil, err
	}

	var reps []models.RepRow
	if err := json.Unmarshal(body, &reps); err != nil {
		return nil, fmt.Errorf("httpclient: decode reps: %w", err)
	}
	return reps, nil
}

func (c *HTTPClient) QueryTargetEvents(ctx context.Context, sessionID uuid.UUID) ([]models.TargetEventRow, error) {
	body, err := c.get(ctx, "/api/v1/sessions/"+sessionID.String()+"/targets", nil)
	if err != nil {
		return nil, err
	}

	var events []models.TargetEventRow
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("httpclient: decode target events: %w", err)
	}
	return events, nil
}

func (c *HTTPClient) GetProgressSummary(ctx context.Context, userID int, exercise string, start, end time.Time, bucket string) ([]storage.ProgressPeriod, error) {
	params := timeParams(start, end)
	params.Set("exercise", exercise)
	params.Set("agg", bucketToAgg(bucket))

	body, err := c.get(ctx, fmt.Sprintf("/api/v1/users/%d/progress", userID), params)
	if err != nil {
		return nil, err
	}

	var periods []storage.ProgressPeriod
	if err := json.Unmarshal(body, &periods); err != nil {
		return nil, fmt.Errorf("httpclient: decode progress summary: %w", err)
	}
	return periods, nil
}

func (c *HTTPClient) GetRepQuality(ctx context.Context, userID int, exercise string, start, end time.Time) (*storage.RepQualityResult, error) {
	params := timeParams(start, end)
	if exercise != "" {
		params.Set("exercise", exercise)
	}

	body, err := c.get(ctx, fmt.Sprintf("/api/v1/users/%d/quality", userID), params)
	if err != nil {
		return nil, err
	}

	var result storage.RepQualityResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("httpclient: decode rep quality: %w", err)
	}
	return &result, nil
}

func (c *HTTPClient) ListExercises(ctx context.Context) ([]models.ExerciseRow, error) {
	body, err := c.get(ctx, "/api/v1/exercises", nil)
	if err != nil {
		return nil, err
	}

	var exercises []models.ExerciseRow
	if err := json.Unmarshal(body, &exercises); err != nil {
		return nil, fmt.Errorf("httpclient: decode exercises: %w", err)
	}
	return exercises, nil
}

func (c *HTTPClient) GetUserStats(ctx context.Context, userID int) (*storage.UserStats, error) {
	params := url.Values{}
	params.Set("user_id", strconv.Itoa(userID))

	body, err := c.get(ctx, "/api/v1/stats", params)
	if err != nil {
		return nil, err
	}

	var stats storage.UserStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("httpclient: decode user stats: %w", err)
	}
	return &stats, nil
}
