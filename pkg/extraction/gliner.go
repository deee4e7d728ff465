package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGLiNERModel = "gliner-community/gliner_medium-v2.5"

// GLiNERClient implements Extractor against a GLiNER-style NER inference
// server speaking JSON over HTTP.
type GLiNERClient struct {
	BaseURL    string
	Model      string
	Threshold  float64
	HTTPClient *http.Client
}

// NewGLiNERClient creates a new NER client for the given server URL.
// An empty baseURL yields a client that reports ErrExtractionUnavailable,
// which the ingestion pipeline degrades to "zero entities extracted".
func NewGLiNERClient(baseURL string) *GLiNERClient {
	return &GLiNERClient{
		BaseURL:    baseURL,
		Model:      defaultGLiNERModel,
		Threshold:  DefaultConfidenceThreshold,
		HTTPClient: http.DefaultClient,
	}
}

type glinerRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Model     string   `json:"model,omitempty"`
	Threshold float64  `json:"threshold"`
}

type glinerResponse struct {
	Entities []ExtractedEntity `json:"entities"`
	Error    string            `json:"error,omitempty"`
}

// Extract sends text to the NER server and returns spans at or above the
// configured confidence threshold.
func (c *GLiNERClient) Extract(ctx context.Context, text string, entityTypes []string) ([]ExtractedEntity, error) {
	if strings.TrimSpace(text) == "" {
		return []ExtractedEntity{}, nil
	}

	if c.BaseURL == "" {
		return nil, ErrExtractionUnavailable
	}

	if entityTypes == nil {
		entityTypes = DefaultEntityTypes
	}

	threshold := c.Threshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}

	reqBody := glinerRequest{
		Text:      text,
		Labels:    entityTypes,
		Model:     c.Model,
		Threshold: threshold,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiResp glinerResponse
		if err := json.Unmarshal(bodyBytes, &apiResp); err == nil && apiResp.Error != "" {
			return nil, fmt.Errorf("NER server error (%d): %s", resp.StatusCode, apiResp.Error)
		}
		return nil, fmt.Errorf("NER server error (%d): %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp glinerResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Server-side thresholds vary; enforce ours regardless.
	entities := make([]ExtractedEntity, 0, len(apiResp.Entities))
	for _, ent := range apiResp.Entities {
		if ent.Confidence >= threshold {
			entities = append(entities, ent)
		}
	}

	return entities, nil
}
