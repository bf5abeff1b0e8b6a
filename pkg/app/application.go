package app

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/archops/governor/internal/ingest"
	"github.com/archops/governor/internal/metrics"
	"github.com/archops/governor/internal/middleware"
	"github.com/archops/governor/internal/orchestrator"
	"github.com/archops/governor/internal/providers"
	"github.com/archops/governor/internal/ratelimit"
	"github.com/archops/governor/internal/registry"
	"github.com/archops/governor/internal/repository"
	"github.com/archops/governor/internal/tracing"
	"github.com/archops/governor/internal/workers"
	"github.com/archops/governor/pkg/auth"
	"github.com/archops/governor/pkg/config"
	"github.com/archops/governor/pkg/domain"
)

type Application struct {
	Config       *config.Config
	Engine       *gin.Engine
	Registry     *registry.Registry
	Orchestrator orchestrator.Service
	Ingest       *ingest.Service
	Logger       *slog.Logger
	TZ           *time.Location
	Redis        *redis.Client
	Validator    auth.Validator
	RateLimiter  ratelimit.Limiter

	// LLMProvider names the configured text generator; LLMHealth probes it.
	LLMProvider string
	LLMHealth   controllersHealthChecker

	TracingShutdown func(context.Context) error
}

// controllersHealthChecker mirrors controllers.HealthChecker without the
// import cycle app -> controllers -> app.
type controllersHealthChecker interface {
	Health(ctx context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom token validator
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	limiter := ratelimit.NewTokenBucketLimiter(redisClient)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("UTC", 0)
	}

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "governor", "env", cfg.Env)
	slog.SetDefault(logger)

	metrics.RegisterRedisCollector(redisClient, logger)

	tracingShutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  "governor",
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}

	seeds := registry.DefaultSeeds()
	if len(cfg.Agents) > 0 {
		seeds = seeds[:0]
		for _, a := range cfg.Agents {
			seeds = append(seeds, registry.Seed{Kind: domain.AgentKind(a.Kind), Name: a.Name})
		}
	}
	reg, err := registry.New(seeds, time.Now)
	if err != nil {
		return nil, err
	}

	var llm workers.TextGenerator
	var llmHealth controllersHealthChecker
	llmProvider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	switch llmProvider {
	case "ollama":
		client := providers.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaTimeoutSeconds)
		llm, llmHealth = client, client
	case "dify":
		client := providers.NewDifyClient(cfg.DifyBaseURL, cfg.DifyAPIKey, cfg.OllamaTimeoutSeconds)
		llm, llmHealth = client, client
	}

	repo := repository.NewTaskRepository(redisClient, loc, time.Now)
	invoker := workers.NewRuleInvoker(llm, logger)
	orch := orchestrator.NewService(reg, invoker, repo, logger, time.Now, cfg.AgentTimeoutSeconds)

	uploader := providers.NewLocalUploader(cfg.LocalArtifactsDir)
	ingestSvc := ingest.NewService(uploader)

	janitor := repository.NewJanitor(repo, logger, cfg.CleanupIntervalSeconds)
	go janitor.Start(context.Background())

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggerMiddleware(logger), middleware.TracingMiddleware("governor"))

	app := &Application{
		Config:          cfg,
		Engine:          engine,
		Registry:        reg,
		Orchestrator:    orch,
		Ingest:          ingestSvc,
		Logger:          logger,
		TZ:              loc,
		Redis:           redisClient,
		RateLimiter:     limiter,
		LLMProvider:     llmProvider,
		LLMHealth:       llmHealth,
		TracingShutdown: tracingShutdown,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	// Create default validator from config if not provided
	if app.Validator == nil && cfg.Auth.Provider != "" {
		validator, err := auth.NewValidator(auth.ProviderConfig{
			Type:   cfg.Auth.Provider,
			Config: []byte(cfg.Auth.Config),
		})
		if err != nil {
			return nil, err
		}
		app.Validator = validator
	}

	return app, nil
}
