package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

// WeaviateOptions configures a WeaviateEngine
type WeaviateOptions struct {
	URL        string
	Class      string
	TextField  string
	TitleField string
	IDField    string
	TopK       int

	// Provider writes the answer from the retrieved chunks
	Provider    llm.Provider
	DefaultTemp float64

	Logger *slog.Logger
}

// WeaviateEngine retrieves chunks by nearText search and has an LLM answer
// from them, mirroring what a hosted query engine does.
type WeaviateEngine struct {
	client *weaviate.Client
	opts   WeaviateOptions
}

// NewWeaviateEngine creates a Weaviate-backed retrieval engine
func NewWeaviateEngine(opts WeaviateOptions) (*WeaviateEngine, error) {
	if opts.URL == "" {
		opts.URL = "http://localhost:8080"
	}
	if opts.Class == "" {
		opts.Class = "MedicalChunk"
	}
	if opts.TextField == "" {
		opts.TextField = "text"
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	parsed, err := url.Parse(opts.URL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q", opts.URL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateEngine{client: client, opts: opts}, nil
}

// Retrieve searches for chunks near the question and asks the LLM to answer from them
func (e *WeaviateEngine) Retrieve(ctx context.Context, question string, params llm.Params) (*model.Answer, error) {
	chunks, err := e.search(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, wrap("no chunks found for question")
	}

	temp := e.opts.DefaultTemp
	if params.Temperature != nil {
		temp = *params.Temperature
	}

	resp, err := e.opts.Provider.Complete(ctx, llm.Request{
		System:      answerSystemPrompt,
		Prompt:      answerPrompt(question, chunks),
		Temperature: temp,
	})
	if err != nil {
		return nil, wrap("generate answer: %v", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, wrap("generate answer: %v", llm.ErrNoResponse)
	}

	return &model.Answer{Text: text, SourceChunks: chunks}, nil
}

func (e *WeaviateEngine) search(ctx context.Context, question string) ([]model.SourceChunk, error) {
	fields := []graphql.Field{{Name: e.opts.TextField}}
	if e.opts.TitleField != "" {
		fields = append(fields, graphql.Field{Name: e.opts.TitleField})
	}
	if e.opts.IDField != "" {
		fields = append(fields, graphql.Field{Name: e.opts.IDField})
	}
	fields = append(fields, graphql.Field{Name: "_additional { certainty distance }"})

	nearText := e.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{question})

	result, err := e.client.GraphQL().Get().
		WithClassName(e.opts.Class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(e.opts.TopK).
		Do(ctx)
	if err != nil {
		return nil, wrap("semantic search: %v", err)
	}

	if len(result.Errors) > 0 {
		return nil, wrap("search error: %s", result.Errors[0].Message)
	}

	chunks := e.parseChunks(result)
	e.opts.Logger.Debug("weaviate search", "class", e.opts.Class, "chunks", len(chunks))

	return chunks, nil
}

func (e *WeaviateEngine) parseChunks(result *models.GraphQLResponse) []model.SourceChunk {
	chunks := []model.SourceChunk{}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return chunks
	}
	objects, ok := data[e.opts.Class].([]interface{})
	if !ok {
		return chunks
	}

	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		text, _ := m[e.opts.TextField].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}

		chunk := model.SourceChunk{Text: text}
		if e.opts.TitleField != "" {
			chunk.Title, _ = m[e.opts.TitleField].(string)
		}
		if id, ok := m[e.opts.IDField]; ok && id != nil {
			chunk.ProvenanceID = fmt.Sprint(id)
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if c, ok := add["certainty"].(float64); ok {
				chunk.RelevanceScore = c
			}
		}
		chunks = append(chunks, chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].RelevanceScore > chunks[j].RelevanceScore
	})

	return chunks
}

var answerSystemPrompt = heredoc.Doc(`
	You answer medical questions strictly from the context passages you are given.
	If the passages do not contain the answer, say that the information is not available.
	Do not add facts that are not in the passages.
`)

func answerPrompt(question string, chunks []model.SourceChunk) string {
	var b strings.Builder
	b.WriteString("Context passages:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(c.Text))
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}
