package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/ai-interviewer/internal/ai"
	"github.com/spigell/ai-interviewer/internal/ai/gemini"
	"github.com/spigell/ai-interviewer/internal/ai/openai"
	"github.com/spigell/ai-interviewer/internal/checkpoint"
	"github.com/spigell/ai-interviewer/internal/interview"
	"github.com/spigell/ai-interviewer/internal/logger"
	"github.com/spigell/ai-interviewer/internal/observe"
	"github.com/spigell/ai-interviewer/internal/secrets"
	"github.com/spigell/ai-interviewer/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interview HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default is :8000)")
	serveCmd.Flags().String("provider", "", "text generation provider: gemini, openai or offline")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("ai.provider", serveCmd.Flags().Lookup("provider"))
}

func serve(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the ai-interviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redact(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	metricsHandler, shutdownMetrics, err := observe.InitProvider(app, version)
	if err != nil {
		logger.Fatal("initialising metrics", zap.Error(err))
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("shutting down metrics", zap.Error(err))
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Fatal("creating metric instruments", zap.Error(err))
	}

	store, err := checkpoint.Open(ctx, config.Store, logger)
	if err != nil {
		logger.Fatal("opening checkpoint store", zap.Error(err), zap.String("kind", config.Store.Kind))
	}
	defer store.Close()

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal(
			"creating text generator",
			zap.Error(err),
			zap.String("hint", "set GOOGLE_API_KEY or OPENAI_API_KEY, or use --provider offline"),
		)
	}

	prompts, err := interview.LoadPrompts(config.Interview.PromptsFile)
	if err != nil {
		logger.Fatal("loading prompts", zap.Error(err))
	}

	driver := interview.NewDriver(interview.Options{
		StepLimit:    config.Interview.MaxSteps,
		MaxStepLimit: config.Interview.MaxStepLimit,
		Prompts:      prompts,
		Fallbacks:    config.Interview.Fallbacks,
		MaxLogLength: config.AI.MaxLogLength,
	}, interview.Deps{
		Store:     store,
		Generator: generator,
		Logger:    logger,
		Metrics:   metrics,
	})

	opts := server.Options{
		CORSOrigins:    config.CORSOrigins,
		DebugEndpoints: config.DebugEndpoints,
	}
	if config.MetricsListen == "" {
		opts.MetricsHandler = metricsHandler
	}

	api := server.New(driver, store, opts, logger, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(gctx, config.Listen)
	})
	if config.MetricsListen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, config.MetricsListen, metricsHandler, logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}

	logger.Info("exiting", zap.String("reason", "shutdown signal received"))
}

// serveMetrics exposes /metrics on its own listener.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case providerOffline:
		logger.Warn("text generation is offline", zap.String("hint", "every message is a configured fallback"))
		return ai.Offline{}, nil

	case providerGemini:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"},
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GOOGLE_API_KEY)", err)
		}

		genLogger := logger.With(zap.Int("ai_retry_attempts", cfg.MaxRetries))
		generator, err := gemini.NewGenerator(ctx, gemini.Config{
			APIKey:     apiKey,
			Model:      cfg.Gemini.Model,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, genLogger)
		if err != nil {
			return nil, err
		}
		return generator, nil

	case providerOpenAI:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: cfg.OpenAI.APIKey,
			File:  cfg.OpenAI.APIKeyFile,
			Env:   []string{"OPENAI_API_KEY"},
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY)", err)
		}

		genLogger := logger.With(zap.Int("ai_retry_attempts", cfg.MaxRetries))
		generator, err := openai.NewGenerator(openai.Config{
			APIKey:     apiKey,
			Model:      cfg.OpenAI.Model,
			BaseURL:    cfg.OpenAI.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.OpenAI.Timeout,
		}, genLogger)
		if err != nil {
			return nil, err
		}
		return generator, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// redact returns a copy of cfg that is safe to log.
func redact(cfg *Config) *Config {
	out := *cfg
	if cfg.AI != nil {
		aiCfg := *cfg.AI
		if aiCfg.Gemini != nil && aiCfg.Gemini.APIKey != "" {
			g := *aiCfg.Gemini
			g.APIKey = "***"
			aiCfg.Gemini = &g
		}
		if aiCfg.OpenAI != nil && aiCfg.OpenAI.APIKey != "" {
			o := *aiCfg.OpenAI
			o.APIKey = "***"
			aiCfg.OpenAI = &o
		}
		out.AI = &aiCfg
	}
	if cfg.Store != nil {
		store := *cfg.Store
		if store.Redis != nil && store.Redis.URL != "" {
			r := *store.Redis
			r.URL = redactURL(r.URL)
			store.Redis = &r
		}
		if store.Postgres != nil && store.Postgres.URL != "" {
			p := *store.Postgres
			p.URL = redactURL(p.URL)
			store.Postgres = &p
		}
		out.Store = &store
	}
	return &out
}

func redactURL(raw string) string {
	if at := strings.LastIndex(raw, "@"); at > 0 {
		if scheme := strings.Index(raw, "://"); scheme >= 0 && scheme < at {
			return raw[:scheme+3] + "***" + raw[at:]
		}
	}
	return raw
}
