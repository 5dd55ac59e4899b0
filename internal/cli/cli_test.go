package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veracity/internal/model"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is the first-line treatment for pneumonia?", "what-is-the-first-line-treatment-for-pneumonia"},
		{"  ../../etc/passwd  ", "etc-passwd"},
		{"Warfarin + NSAIDs: safe?", "warfarin-nsaids-safe"},
		{"Лечение гриппа", ""},
		{"???", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_Length(t *testing.T) {
	got := sanitizeFilename(strings.Repeat("antibiotic ", 20))
	assert.LessOrEqual(t, len(got), maxSlugLength)
	assert.False(t, strings.HasSuffix(got, "-"))
	assert.True(t, strings.HasPrefix(got, "antibiotic-antibiotic"))
}

func TestReportBaseName(t *testing.T) {
	assert.Equal(t, "001-what-is-sepsis", reportBaseName(0, "What is sepsis?"))
	assert.Equal(t, "012-question", reportBaseName(11, "???"))
	assert.NotEqual(t, reportBaseName(0, "same"), reportBaseName(1, "same"))
}

func TestValidateTries(t *testing.T) {
	assert.Error(t, validateTries(1))
	assert.NoError(t, validateTries(2))
	assert.NoError(t, validateTries(10))
	assert.Error(t, validateTries(11))
}

func TestApplyEnvKeys(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":           "sk-openai",
		"ANTHROPIC_API_KEY":        "sk-ant",
		"GEMINI_API_KEY":           "gem",
		"OLLAMA_BASE_URL":          "http://ollama:11434",
		"SEMANTIC_SCHOLAR_API_KEY": "s2",
		"HTTPS_PROXY":              "http://proxy:3128",
	}
	getenv := func(k string) string { return env[k] }

	t.Run("defaults use openai", func(t *testing.T) {
		cfg := model.DefaultConfig()
		applyEnvKeys(cfg, getenv)
		assert.Equal(t, "sk-openai", cfg.LLM.APIKey)
		assert.Equal(t, "sk-openai", cfg.Embedding.APIKey)
		assert.Equal(t, "s2", cfg.External.APIKey)
		assert.Equal(t, "http://proxy:3128", cfg.HTTP.HTTPSProxy)
		assert.Empty(t, cfg.HTTP.HTTPProxy)
	})

	t.Run("per provider", func(t *testing.T) {
		cfg := model.DefaultConfig()
		cfg.LLM.Provider = "claude"
		cfg.Embedding.Provider = "gemini"
		cfg.External.Provider = "pubmed"
		applyEnvKeys(cfg, getenv)
		assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
		assert.Equal(t, "gem", cfg.Embedding.APIKey)
		assert.Empty(t, cfg.External.APIKey)
	})

	t.Run("ollama base url", func(t *testing.T) {
		cfg := model.DefaultConfig()
		cfg.LLM.Provider = "ollama"
		applyEnvKeys(cfg, getenv)
		assert.Empty(t, cfg.LLM.APIKey)
		assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	})

	t.Run("config file wins", func(t *testing.T) {
		cfg := model.DefaultConfig()
		cfg.LLM.APIKey = "from-file"
		applyEnvKeys(cfg, getenv)
		assert.Equal(t, "from-file", cfg.LLM.APIKey)
	})
}

func TestRedacted(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-0123456789abcdef"
	cfg.Embedding.APIKey = "short"

	out := redacted(cfg)
	require.NotSame(t, cfg, out)
	assert.Equal(t, "sk-0****", out.LLM.APIKey)
	assert.Equal(t, "****", out.Embedding.APIKey)
	assert.Empty(t, out.External.APIKey)
	assert.Equal(t, "sk-0123456789abcdef", cfg.LLM.APIKey, "original untouched")
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"assess", "batch", "attribution", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
