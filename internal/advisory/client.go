// Package advisory implements HTTP clients for the two optional advisory
// services: the form-quality scorer and the difficulty policy. Both speak
// plain JSON over POST. Callers treat every error as a no-op, so the
// clients validate responses strictly rather than passing garbage through.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/claude/flexion/internal/engine"
	"github.com/claude/flexion/internal/models"
)

const defaultTimeout = 5 * time.Second

// QualityClient calls the form-quality service.
type QualityClient struct {
	baseURL string
	hc      *http.Client
}

// NewQualityClient builds a client for the quality service at baseURL.
func NewQualityClient(baseURL string, timeout time.Duration) *QualityClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &QualityClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

// ScoreRep submits one rep's frame sequence for scoring.
func (c *QualityClient) ScoreRep(ctx context.Context, req models.QualityRequest) (*models.QualityResponse, error) {
	var out models.QualityResponse
	if err := postJSON(ctx, c.hc, c.baseURL+"/predict_form", req, &out); err != nil {
		return nil, err
	}
	if out.QualityScore < 0 || out.QualityScore > 1 {
		return nil, fmt.Errorf("quality score %v out of range", out.QualityScore)
	}
	return &out, nil
}

// PolicyClient calls the difficulty policy service.
type PolicyClient struct {
	baseURL string
	hc      *http.Client
}

// NewPolicyClient builds a client for the policy service at baseURL.
func NewPolicyClient(baseURL string, timeout time.Duration) *PolicyClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PolicyClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

// NextAction submits the session state vector and returns the chosen action.
func (c *PolicyClient) NextAction(ctx context.Context, req models.PolicyRequest) (*models.PolicyResponse, error) {
	if len(req.State) != models.PolicyStateSize {
		return nil, fmt.Errorf("state vector has %d elements, want %d", len(req.State), models.PolicyStateSize)
	}
	var out models.PolicyResponse
	if err := postJSON(ctx, c.hc, c.baseURL+"/predict", req, &out); err != nil {
		return nil, err
	}
	if out.Action < models.ActionEase || out.Action > models.ActionEncourage {
		return nil, fmt.Errorf("action %d out of range", out.Action)
	}
	return &out, nil
}

// postJSON posts in as a JSON body and decodes the 200 response into out.
func postJSON(ctx context.Context, hc *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status from %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

var (
	_ engine.QualityAdvisor = (*QualityClient)(nil)
	_ engine.PolicyAdvisor  = (*PolicyClient)(nil)
)
