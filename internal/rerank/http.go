package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPOracle calls a zero-shot classification endpoint in the Hugging Face
// inference format:
//
//	POST {"inputs": text, "parameters": {"candidate_labels": [...]}}
//	200  {"labels": [...], "scores": [...]}
type HTTPOracle struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPOracle creates an oracle posting to url. apiKey, when set, is sent
// as a bearer token.
func NewHTTPOracle(url, apiKey string, timeout time.Duration) (*HTTPOracle, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("oracle URL not set")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPOracle{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type classifyRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		CandidateLabels []string `json:"candidate_labels"`
	} `json:"parameters"`
}

type classifyResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

func (o *HTTPOracle) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	var reqBody classifyRequest
	reqBody.Inputs = text
	reqBody.Parameters.CandidateLabels = labels

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrOracle, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrOracle, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API error %d: %s", ErrOracle, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result classifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrOracle, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrOracle, result.Error)
	}
	if len(result.Labels) != len(result.Scores) {
		return nil, fmt.Errorf("%w: %d labels but %d scores", ErrOracle, len(result.Labels), len(result.Scores))
	}

	// The endpoint sorts labels by score, so map them back by name.
	out := make(map[string]float64, len(result.Labels))
	for i, l := range result.Labels {
		out[l] = result.Scores[i]
	}
	return out, nil
}
