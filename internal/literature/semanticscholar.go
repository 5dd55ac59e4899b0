package literature

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/veracity/internal/model"
)

const semanticScholarBaseURL = "https://api.semanticscholar.org"

// SemanticScholar searches the Semantic Scholar Graph API
type SemanticScholar struct {
	baseURL string
	fetch   *fetcher
}

// NewSemanticScholar creates a Semantic Scholar client
func NewSemanticScholar(opts Options) *SemanticScholar {
	base := opts.BaseURL
	if base == "" {
		base = semanticScholarBaseURL
	}
	return &SemanticScholar{
		baseURL: strings.TrimRight(base, "/"),
		fetch:   newFetcher(opts, "x-api-key"),
	}
}

// Name returns the service name
func (s *SemanticScholar) Name() string {
	return "semantic_scholar"
}

// Search returns papers that carry an abstract, in service rank order
func (s *SemanticScholar) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "title,abstract,year")

	body, err := s.fetch.get(ctx, s.baseURL+"/graph/v1/paper/search?"+params.Encode())
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &SearchError{Reason: model.ReasonParse, Err: fmt.Errorf("invalid JSON from Semantic Scholar")}
	}

	root := gjson.ParseBytes(body)
	data := root.Get("data")
	if !data.Exists() {
		// A query with zero hits omits "data" but still reports a total
		if root.Get("total").Exists() {
			return []Paper{}, nil
		}
		return nil, &SearchError{Reason: model.ReasonParse, Err: fmt.Errorf("response has no data field")}
	}

	papers := []Paper{}
	data.ForEach(func(_, p gjson.Result) bool {
		abstract := strings.TrimSpace(p.Get("abstract").String())
		if abstract == "" {
			return true
		}
		papers = append(papers, Paper{
			ID:       p.Get("paperId").String(),
			Title:    p.Get("title").String(),
			Abstract: abstract,
			Year:     int(p.Get("year").Int()),
		})
		return true
	})

	return papers, nil
}
