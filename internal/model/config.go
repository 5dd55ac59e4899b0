package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete Veracity configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	External    ExternalConfig    `yaml:"external" mapstructure:"external"`
	Safety      SafetyConfig      `yaml:"safety" mapstructure:"safety"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
}

// LLMConfig selects the language model used for decomposition, synthesis and keyword extraction
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai anthropic claude gemini ollama"`
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"` // Default for deterministic calls
}

// EmbeddingConfig selects the sentence encoder
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai gemini http hashing"`
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	Dimensions int    `yaml:"dimensions,omitempty" mapstructure:"dimensions" validate:"gte=0"`
}

// RetrievalConfig points at the document retrieval engine
type RetrievalConfig struct {
	Engine       string `yaml:"engine" mapstructure:"engine" validate:"omitempty,oneof=http weaviate"`
	URL          string `yaml:"url" mapstructure:"url"`
	Class        string `yaml:"class,omitempty" mapstructure:"class"`
	TextField    string `yaml:"text_field,omitempty" mapstructure:"text_field"`
	TitleField   string `yaml:"title_field,omitempty" mapstructure:"title_field"`
	IDField      string `yaml:"id_field,omitempty" mapstructure:"id_field"`
	TopK         int    `yaml:"top_k" mapstructure:"top_k" validate:"gte=1"`
	Timeout      int    `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gte=0"`
}

// ExternalConfig configures the external literature search used for fact-checking
type ExternalConfig struct {
	Enabled            bool    `yaml:"enabled" mapstructure:"enabled"`
	Provider           string  `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=semantic_scholar pubmed"`
	BaseURL            string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey             string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	MaxResults         int     `yaml:"max_results" mapstructure:"max_results" validate:"gte=1,lte=100"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst              int     `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	RespectRobots      bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout            int     `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	MinSentenceLength  int     `yaml:"min_sentence_length" mapstructure:"min_sentence_length" validate:"gte=0"`
	MaxKeywords        int     `yaml:"max_keywords" mapstructure:"max_keywords" validate:"gte=1"`
	KeywordTemperature float64 `yaml:"keyword_temperature" mapstructure:"keyword_temperature" validate:"gte=0,lte=2"`
}

// SafetyConfig holds the pipeline parameters and every decision threshold
type SafetyConfig struct {
	ConsistencyTries         int           `yaml:"consistency_tries" mapstructure:"consistency_tries" validate:"gte=0"`
	EntropySamples           int           `yaml:"entropy_samples" mapstructure:"entropy_samples" validate:"gte=0"`
	EntropyTemperature       float64       `yaml:"entropy_temperature" mapstructure:"entropy_temperature" validate:"gte=0,lte=2"`
	DecomposeTemperature     float64       `yaml:"decompose_temperature" mapstructure:"decompose_temperature" validate:"gte=0,lte=2"`
	MinEntropySentenceLength int           `yaml:"min_entropy_sentence_length" mapstructure:"min_entropy_sentence_length" validate:"gte=0"`
	Clustering               string        `yaml:"clustering" mapstructure:"clustering" validate:"oneof=greedy connected"`
	CallSpacing              time.Duration `yaml:"call_spacing" mapstructure:"call_spacing" validate:"gte=0"`
	Thresholds               Thresholds    `yaml:"thresholds" mapstructure:"thresholds"`
}

// Thresholds consolidates every numeric cut-off used by the scorers and the aggregator
type Thresholds struct {
	Attribution       float64 `yaml:"attribution" mapstructure:"attribution" validate:"gte=0,lte=1"`
	Consistency       float64 `yaml:"consistency" mapstructure:"consistency" validate:"gte=0,lte=1"`

	// Display bands around the pass thresholds
	AttributionExcellent float64 `yaml:"attribution_excellent" mapstructure:"attribution_excellent" validate:"gte=0,lte=1,gtefield=Attribution"`
	AttributionFair      float64 `yaml:"attribution_fair" mapstructure:"attribution_fair" validate:"gte=0,lte=1,ltefield=Attribution"`
	ConsistencyHigh      float64 `yaml:"consistency_high" mapstructure:"consistency_high" validate:"gte=0,lte=1,gtefield=Consistency"`

	External          float64 `yaml:"external" mapstructure:"external" validate:"gte=0,lte=1"`
	WeakSentence      float64 `yaml:"weak_sentence" mapstructure:"weak_sentence" validate:"gte=0,lte=1"`
	ClusterSimilarity float64 `yaml:"cluster_similarity" mapstructure:"cluster_similarity" validate:"gte=0,lte=1"`
	EntropyHigh       float64 `yaml:"entropy_high" mapstructure:"entropy_high" validate:"gte=0"`
	EntropyMedium     float64 `yaml:"entropy_medium" mapstructure:"entropy_medium" validate:"gte=0,ltefield=EntropyHigh"`
	HighUncertainty   float64 `yaml:"high_uncertainty" mapstructure:"high_uncertainty" validate:"gte=0"`
	ConfidenceHigh    float64 `yaml:"confidence_high" mapstructure:"confidence_high" validate:"gte=0,lte=1"`
	ConfidenceMedium  float64 `yaml:"confidence_medium" mapstructure:"confidence_medium" validate:"gte=0,lte=1,ltefield=ConfidenceHigh"`
	InternalWeight    float64 `yaml:"internal_weight" mapstructure:"internal_weight" validate:"gte=0,lte=1"`
	ExternalWeight    float64 `yaml:"external_weight" mapstructure:"external_weight" validate:"gte=0,lte=1"`
	SupportHigh       float64 `yaml:"support_high" mapstructure:"support_high" validate:"gte=0,lte=1"`
	SupportMedium     float64 `yaml:"support_medium" mapstructure:"support_medium" validate:"gte=0,lte=1,ltefield=SupportHigh"`
	SupportLow        float64 `yaml:"support_low" mapstructure:"support_low" validate:"gte=0,lte=1,ltefield=SupportMedium"`
}

// CacheConfig configures embedding and literature caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig bounds batch parallelism across assessments
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON       bool   `yaml:"json" mapstructure:"json"`
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days" validate:"gte=0"`
}

// HTTPConfig holds proxy settings shared by all outbound clients
type HTTPConfig struct {
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultThresholds returns the standard cut-offs
func DefaultThresholds() Thresholds {
	return Thresholds{
		Attribution:       0.6,
		Consistency:       0.6,
		External:          0.6,
		WeakSentence:      0.5,
		ClusterSimilarity: 0.7,
		EntropyHigh:       2.0,
		EntropyMedium:     1.0,
		HighUncertainty:   1.5,
		ConfidenceHigh:    0.75,
		ConfidenceMedium:  0.5,
		InternalWeight:    0.7,
		ExternalWeight:    0.3,
		SupportHigh:       0.7,
		SupportMedium:     0.5,
		SupportLow:        0.3,

		AttributionExcellent: 0.7,
		AttributionFair:      0.4,
		ConsistencyHigh:      0.8,
	}
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60,
			MaxTokens:   1000,
			Temperature: 0.1,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Timeout:  30,
		},
		Retrieval: RetrievalConfig{
			Engine:       "http",
			URL:          "http://localhost:8000",
			Class:        "MedicalChunk",
			TextField:    "text",
			TitleField:   "title",
			IDField:      "docId",
			TopK:         5,
			Timeout:      120,
			MaxBodyBytes: 4_000_000,
		},
		External: ExternalConfig{
			Enabled:            true,
			Provider:           "semantic_scholar",
			MaxResults:         10,
			RequestsPerSecond:  1,
			Burst:              1,
			RespectRobots:      false,
			UserAgent:          "Veracity/0.1 (+https://github.com/ppiankov/veracity)",
			Timeout:            30,
			MaxRetries:         3,
			MinSentenceLength:  10,
			MaxKeywords:        6,
			KeywordTemperature: 0.1,
		},
		Safety: SafetyConfig{
			ConsistencyTries:         3,
			EntropySamples:           3,
			EntropyTemperature:       0.8,
			DecomposeTemperature:     0.1,
			MinEntropySentenceLength: 10,
			Clustering:               "greedy",
			CallSpacing:              time.Second,
			Thresholds:               DefaultThresholds(),
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "",
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 2,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field ordering of the thresholds
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
