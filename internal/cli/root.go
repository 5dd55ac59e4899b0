package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/veracity/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "veracity",
	Short: "Veracity - safety scoring for retrieval-augmented answers (non-normative)",
	Long: `Veracity scores how safe it is to rely on an answer produced by a
retrieval-augmented question answering system.

It checks whether the answer is grounded in its own retrieved sources,
whether repeated answers agree, how uncertain the model is across
sampled answers, and optionally whether published literature supports it.

It does not determine what is medically true or correct. The verdict is
a signal for a human reviewer, not advice.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Veracity.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("veracity v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.veracity/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in .env, the config file and ENV variables
func initConfig() {
	// A missing .env is normal
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".veracity"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// VERACITY_SAFETY_CONSISTENCY_TRIES overrides safety.consistency_tries
	viper.SetEnvPrefix("VERACITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges the config file and environment over the defaults
// and validates the result
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvKeys(cfg, os.Getenv)
	if verbose {
		cfg.Output.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvKeys fills API keys and endpoints the config file left empty
// from the conventional provider variables
func applyEnvKeys(cfg *model.Config, getenv func(string) string) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider, getenv)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = providerKey(cfg.Embedding.Provider, getenv)
	}
	if strings.EqualFold(cfg.LLM.Provider, "ollama") && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = getenv("OLLAMA_BASE_URL")
	}
	if cfg.External.APIKey == "" {
		switch strings.ToLower(cfg.External.Provider) {
		case "semantic_scholar", "":
			cfg.External.APIKey = getenv("SEMANTIC_SCHOLAR_API_KEY")
		case "pubmed":
			cfg.External.APIKey = getenv("NCBI_API_KEY")
		}
	}
	if cfg.HTTP.HTTPProxy == "" {
		cfg.HTTP.HTTPProxy = getenv("HTTP_PROXY")
	}
	if cfg.HTTP.HTTPSProxy == "" {
		cfg.HTTP.HTTPSProxy = getenv("HTTPS_PROXY")
	}
	if cfg.HTTP.NoProxy == "" {
		cfg.HTTP.NoProxy = getenv("NO_PROXY")
	}
}

func providerKey(provider string, getenv func(string) string) string {
	switch strings.ToLower(provider) {
	case "openai", "":
		return getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return getenv("ANTHROPIC_API_KEY")
	case "gemini", "google":
		if key := getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return getenv("GOOGLE_API_KEY")
	}
	return ""
}

func logStartup(logger *slog.Logger, cfg *model.Config) {
	logger.Debug("configuration loaded",
		"config_file", viper.ConfigFileUsed(),
		"llm", cfg.LLM.Provider+"/"+cfg.LLM.Model,
		"embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model,
		"retrieval", cfg.Retrieval.Engine,
		"external", cfg.External.Enabled)
}
