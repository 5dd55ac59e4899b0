package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
)

// HTTPEngine queries a remote question-answering service.
// Request:  POST <base>/query {"question": "...", "temperature": 0.8, "top_k": 5}
// Response: {"response": "...", "source_nodes": [{"text": "...", "score": 0.8, "id": "...", "title": "..."}]}
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
	topK       int
}

type queryRequest struct {
	Question    string   `json:"question"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

// NewHTTPEngine creates a new HTTP retrieval engine
func NewHTTPEngine(baseURL string, timeout time.Duration, maxBytes int64, topK int, httpCfg model.HTTPConfig) *HTTPEngine {
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}

	client := util.NewHTTPClient(httpCfg, timeout)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}

	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		maxBytes:   maxBytes,
		topK:       topK,
	}
}

// Retrieve asks the engine one question
func (e *HTTPEngine) Retrieve(ctx context.Context, question string, params llm.Params) (*model.Answer, error) {
	body, err := json.Marshal(queryRequest{
		Question:    question,
		Temperature: params.Temperature,
		TopK:        e.topK,
	})
	if err != nil {
		return nil, wrap("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, wrap("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, wrap("query: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return nil, wrap("read body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := gjson.GetBytes(data, "detail").String()
		if detail == "" {
			detail = strings.TrimSpace(string(data))
		}
		return nil, wrap("unexpected status %d: %s", resp.StatusCode, detail)
	}

	return parseAnswer(data)
}

// parseAnswer accepts "response" or "answer" for the text and
// "source_nodes" or "sources" for the chunks.
func parseAnswer(data []byte) (*model.Answer, error) {
	if !gjson.ValidBytes(data) {
		return nil, wrap("malformed response body")
	}

	root := gjson.ParseBytes(data)

	text := strings.TrimSpace(root.Get("response").String())
	if text == "" {
		text = strings.TrimSpace(root.Get("answer").String())
	}
	if text == "" {
		return nil, wrap("empty answer text")
	}

	nodes := root.Get("source_nodes")
	if !nodes.Exists() {
		nodes = root.Get("sources")
	}

	answer := &model.Answer{
		Text:         text,
		SourceChunks: []model.SourceChunk{},
	}

	nodes.ForEach(func(_, node gjson.Result) bool {
		chunkText := node.Get("text")
		if !chunkText.Exists() {
			chunkText = node.Get("node.text")
		}
		answer.SourceChunks = append(answer.SourceChunks, model.SourceChunk{
			Text:           chunkText.String(),
			RelevanceScore: node.Get("score").Float(),
			ProvenanceID:   firstString(node, "id", "node.id_", "metadata.pmid"),
			Title:          firstString(node, "title", "metadata.title"),
		})
		return true
	})

	return answer, nil
}

func firstString(node gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := node.Get(p); v.Exists() {
			return v.String()
		}
	}
	return ""
}
