package cmd

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/ai-interviewer/internal/checkpoint"
	"github.com/spigell/ai-interviewer/internal/interview"
)

const (
	app = "ai-interviewer"
)

type Config struct {
	Listen         string             `mapstructure:"listen" json:"listen"`
	MetricsListen  string             `mapstructure:"metrics-listen" json:"metrics-listen"`
	CORSOrigins    []string           `mapstructure:"cors-origins" json:"cors-origins"`
	DebugEndpoints bool               `mapstructure:"debug-endpoints" json:"debug-endpoints"`
	Interview      *InterviewConfig   `mapstructure:"interview" json:"interview"`
	Store          *checkpoint.Config `mapstructure:"store" json:"store"`
	AI             *AIConfig          `mapstructure:"ai" json:"ai"`
}

type InterviewConfig struct {
	MaxSteps     int                 `mapstructure:"max-steps" json:"max-steps"`
	MaxStepLimit int                 `mapstructure:"max-step-limit" json:"max-step-limit"`
	PromptsFile  string              `mapstructure:"prompts-file" json:"prompts-file"`
	Fallbacks    interview.Fallbacks `mapstructure:"fallbacks" json:"fallbacks"`
}

type AIConfig struct {
	Provider     string        `mapstructure:"provider" json:"provider"`
	MaxRetries   int           `mapstructure:"max-retries" json:"max-retries"`
	RetryDelay   time.Duration `mapstructure:"retry-delay" json:"retry-delay"`
	MaxLogLength int           `mapstructure:"max-log-length" json:"max-log-length"`
	Gemini       *GeminiConfig `mapstructure:"gemini" json:"gemini"`
	OpenAI       *OpenAIConfig `mapstructure:"openai" json:"openai"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key" json:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file" json:"api-key-file"`
	Model      string `mapstructure:"model" json:"model"`
}

type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api-key" json:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file" json:"api-key-file"`
	Model      string        `mapstructure:"model" json:"model"`
	BaseURL    string        `mapstructure:"base-url" json:"base-url"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "ai-interviewer runs short mock job interviews driven by an LLM",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	setDefaults(viper.GetViper())

	for key, env := range map[string]string{
		"store.redis.url":    "AI_INTERVIEWER_REDIS_URL",
		"store.postgres.url": "AI_INTERVIEWER_POSTGRES_URL",
		"listen":             "AI_INTERVIEWER_LISTEN",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is ai-interviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8000")
	v.SetDefault("metrics-listen", "")
	v.SetDefault("cors-origins", []string{"http://localhost:8501"})
	v.SetDefault("debug-endpoints", true)

	v.SetDefault("interview.max-steps", interview.DefaultStepLimit)
	v.SetDefault("interview.max-step-limit", interview.DefaultMaxStepLimit)
	v.SetDefault("interview.prompts-file", "")

	v.SetDefault("store.kind", checkpoint.KindMemory)
	v.SetDefault("store.redis.prefix", "interview:")
	v.SetDefault("store.postgres.table", "interview_checkpoints")
	v.SetDefault("store.bolt.bucket", "interviews")

	v.SetDefault("ai.provider", providerGemini)
	v.SetDefault("ai.max-retries", 3)
	v.SetDefault("ai.retry-delay", 5*time.Second)
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.timeout", time.Minute)
}

func initConfig() {
	// API keys are usually kept in .env. A missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	// Only serve reads the config file. The other commands work from flags.
	if serveCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Defaults are enough to run without a file unless one was requested explicitly.
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
