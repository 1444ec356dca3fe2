package cmd

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/spigell/ai-interviewer/internal/checkpoint"
)

const (
	providerGemini  = "gemini"
	providerOpenAI  = "openai"
	providerOffline = "offline"
)

var providers = []any{providerGemini, providerOpenAI, providerOffline}

// Validate checks the configuration before anything is started.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.CORSOrigins, validation.Each(is.RequestURL)),
		validation.Field(&c.Interview, validation.Required),
		validation.Field(&c.Store, validation.Required, validation.By(validateStore)),
		validation.Field(&c.AI, validation.Required),
	)
}

func (c *InterviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSteps, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxStepLimit, validation.Min(c.MaxSteps)),
	)
}

func (c *AIConfig) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))

	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.By(func(any) error {
			return validation.Validate(provider, validation.In(providers...))
		})),
		validation.Field(&c.MaxRetries, validation.Min(1)),
		validation.Field(&c.RetryDelay, validation.Min(0)),
		validation.Field(&c.MaxLogLength, validation.Min(0)),
		validation.Field(&c.Gemini, validation.When(provider == providerGemini, validation.Required)),
		validation.Field(&c.OpenAI, validation.When(provider == providerOpenAI, validation.Required)),
	)
}

func validateStore(value any) error {
	cfg, _ := value.(*checkpoint.Config)
	if cfg == nil {
		return nil
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	kinds := make([]any, 0, len(checkpoint.Kinds))
	for _, k := range checkpoint.Kinds {
		kinds = append(kinds, k)
	}

	return validation.Errors{
		"kind": validation.Validate(kind, validation.In(kinds...)),
		"redis.url": validation.Validate(redisURL(cfg),
			validation.When(kind == checkpoint.KindRedis, validation.Required)),
		"postgres.url": validation.Validate(postgresURL(cfg),
			validation.When(kind == checkpoint.KindPostgres, validation.Required)),
		"bolt.path": validation.Validate(boltPath(cfg),
			validation.When(kind == checkpoint.KindBolt, validation.Required)),
	}.Filter()
}

func redisURL(cfg *checkpoint.Config) string {
	if cfg.Redis == nil {
		return ""
	}
	return cfg.Redis.URL
}

func postgresURL(cfg *checkpoint.Config) string {
	if cfg.Postgres == nil {
		return ""
	}
	return cfg.Postgres.URL
}

func boltPath(cfg *checkpoint.Config) string {
	if cfg.Bolt == nil {
		return ""
	}
	return cfg.Bolt.Path
}
