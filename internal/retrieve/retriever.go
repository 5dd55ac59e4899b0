// Package retrieve talks to the document question-answering engine that
// produces the answer under assessment together with its source chunks.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

// ErrRetrieval wraps every engine failure. The aggregator treats it as fatal.
var ErrRetrieval = errors.New("retrieval failed")

// Retriever answers a question from a document collection
type Retriever interface {
	Retrieve(ctx context.Context, question string, params llm.Params) (*model.Answer, error)
}

// New builds the retrieval engine selected by configuration.
// The weaviate engine needs a provider to turn retrieved chunks into an answer.
func New(cfg model.RetrievalConfig, httpCfg model.HTTPConfig, provider llm.Provider, defaultTemp float64, logger *slog.Logger) (Retriever, error) {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	switch strings.ToLower(cfg.Engine) {
	case "http", "":
		return NewHTTPEngine(cfg.URL, timeout, cfg.MaxBodyBytes, cfg.TopK, httpCfg), nil
	case "weaviate":
		if provider == nil {
			return nil, fmt.Errorf("weaviate engine requires an LLM provider")
		}
		return NewWeaviateEngine(WeaviateOptions{
			URL:         cfg.URL,
			Class:       cfg.Class,
			TextField:   cfg.TextField,
			TitleField:  cfg.TitleField,
			IDField:     cfg.IDField,
			TopK:        cfg.TopK,
			Provider:    provider,
			DefaultTemp: defaultTemp,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown retrieval engine: %s (supported: http, weaviate)", cfg.Engine)
	}
}

func wrap(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRetrieval, fmt.Sprintf(format, args...))
}
