// Package literature searches public biomedical literature for abstracts
// used to cross-check answers.
package literature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
	"github.com/ppiankov/veracity/internal/worker"
)

// Paper is one search hit
type Paper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     int    `json:"year,omitempty"`
}

// Searcher finds papers for a keyword query
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Paper, error)
}

// Sentinels matched by errors.Is against a *SearchError
var (
	ErrNetwork     = errors.New("literature search network failure")
	ErrRateLimited = errors.New("literature search rate limited")
	ErrParse       = errors.New("literature search response unparseable")
	ErrStatus      = errors.New("literature search unexpected status")
)

// SearchError carries the failure category for a search
type SearchError struct {
	Reason     model.EvidenceErrorReason
	StatusCode int
	Err        error
}

func (e *SearchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// Is maps the reason onto the package sentinels
func (e *SearchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Reason == model.ReasonNetwork
	case ErrRateLimited:
		return e.Reason == model.ReasonRateLimit
	case ErrParse:
		return e.Reason == model.ReasonParse
	case ErrStatus:
		return e.Reason == model.ReasonStatus
	}
	return false
}

// ReasonOf extracts the failure category from err, defaulting to network
func ReasonOf(err error) model.EvidenceErrorReason {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Reason
	}
	return model.ReasonNetwork
}

// New builds the configured searcher, wrapped in a cache when c is non-nil.
// A disabled configuration returns nil.
func New(cfg model.ExternalConfig, httpCfg model.HTTPConfig, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) (Searcher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := util.NewHTTPClient(httpCfg, timeout)
	opts := Options{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: client,
		Limiter:    worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	}
	if cfg.RespectRobots {
		opts.Robots = util.NewRobotsChecker(client, cfg.UserAgent, logger)
	}

	var s Searcher
	switch strings.ToLower(cfg.Provider) {
	case "semantic_scholar", "":
		s = NewSemanticScholar(opts)
	case "pubmed":
		s = NewPubMed(opts)
	default:
		return nil, fmt.Errorf("unknown literature provider: %s (supported: semantic_scholar, pubmed)", cfg.Provider)
	}

	return NewCachedSearcher(s, c, cacheTTL), nil
}
