package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider generates coaching insights from a performance snapshot.
type Provider interface {
	Generate(ctx context.Context, agentID int64, snapshot Snapshot) (*Insight, error)
}

// HTTPProvider talks to an external text-generation service.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider constructs a new provider client.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote insight service is available.
func (p *HTTPProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", p.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("insight provider returned status %d", resp.StatusCode)
	}
	return nil
}

type generateRequest struct {
	AgentID  int64    `json:"agentId"`
	Snapshot Snapshot `json:"snapshot"`
}

type generateResponse struct {
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
}

// Generate asks the remote service for a coaching summary.
func (p *HTTPProvider) Generate(ctx context.Context, agentID int64, snapshot Snapshot) (*Insight, error) {
	payload, err := json.Marshal(generateRequest{AgentID: agentID, Snapshot: snapshot})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/coaching-insights", p.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("insight generation failed with status %d: %s", resp.StatusCode, body)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &Insight{
		AgentID:         agentID,
		Summary:         out.Summary,
		Strengths:       out.Strengths,
		Risks:           out.Risks,
		Recommendations: out.Recommendations,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

var _ Provider = (*HTTPProvider)(nil)
