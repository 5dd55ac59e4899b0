package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
)

// HTTPEncoder calls a self-hosted embedding service.
// Request:  POST <base>/embed {"texts": [...], "model": "..."}
// Response: {"vectors": [[...], ...]}
type HTTPEncoder struct {
	baseURL string
	model   string
	client  *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Error   string      `json:"error,omitempty"`
}

// NewHTTPEncoder creates a new HTTP encoder
func NewHTTPEncoder(baseURL, model string, timeout time.Duration, httpCfg model.HTTPConfig) *HTTPEncoder {
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	return &HTTPEncoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  util.NewHTTPClient(httpCfg, timeout),
	}
}

// Model returns the embedding model name
func (e *HTTPEncoder) Model() string {
	if e.model == "" {
		return "http:" + e.baseURL
	}
	return e.model
}

// Encode posts texts to the embedding service
func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", out.Error)
	}

	if err := checkCount(out.Vectors, len(texts)); err != nil {
		return nil, err
	}
	return out.Vectors, nil
}
