package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/cache"
	"github.com/kapu/venue-match-go/internal/chunker"
	"github.com/kapu/venue-match-go/internal/config"
	"github.com/kapu/venue-match-go/internal/extract"
	"github.com/kapu/venue-match-go/internal/llm"
	"github.com/kapu/venue-match-go/internal/pipeline"
	"github.com/kapu/venue-match-go/internal/places"
	"github.com/kapu/venue-match-go/internal/prompt"
	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/internal/scrape"
	"github.com/kapu/venue-match-go/internal/store"
)

// Needs selects the optional collaborators a command builds.
type Needs struct {
	LLM      bool
	Places   bool
	Scraper  bool
	Postgres bool
}

// Container bundles the services one command invocation uses. Close releases them in
// reverse order of construction.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	LLM      *llm.Manager
	Cache    *cache.CacheService
	Places   *places.Client
	Scraper  *scrape.Scraper
	Postgres *store.PostgresService
	Prompts  *prompt.PromptBuilder

	closers []func()
}

// Build assembles what needs asks for. On failure everything built so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, needs Needs) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger, Prompts: prompt.NewPromptBuilder()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Redis is optional. Without it completions and searches are not cached.
	if cfg.Redis.Enabled && (needs.LLM || needs.Places) {
		cacheSvc, cacheErr := cache.NewCacheService(cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, continuing without cache", zap.Error(cacheErr))
		} else {
			c.Cache = cacheSvc
			c.closers = append(c.closers, func() {
				_ = cacheSvc.Close()
			})
		}
	}

	if needs.LLM {
		managerCfg := llm.ManagerConfig{
			Provider:       cfg.LLM.Provider,
			EnableFallback: cfg.LLM.EnableFallback,
			OpenAIAPIKey:   cfg.OpenAI.APIKey,
			OpenAIModel:    cfg.OpenAI.Model,
			GeminiAPIKey:   cfg.Gemini.APIKey,
			GeminiModel:    cfg.Gemini.Model,
			OllamaHost:     cfg.Ollama.Host,
			OllamaModel:    cfg.Ollama.Model,
			CacheTTL:       cfg.LLM.CacheTTL,
		}
		if c.Cache != nil {
			managerCfg.Cache = c.Cache
		}
		c.LLM, err = llm.NewManager(ctx, managerCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create model manager: %w", err)
		}
	}

	if needs.Places {
		if err := cfg.RequirePlaces(); err != nil {
			return nil, err
		}
		var placesCache places.JSONCache
		if c.Cache != nil {
			placesCache = c.Cache
		}
		c.Places, err = places.NewClient(ctx, cfg.Places.APIKey, placesCache, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create places client: %w", err)
		}
	}

	if needs.Scraper {
		fetcher := scrape.NewHTTPFetcher(logger)
		var renderer scrape.Renderer = fetcher
		if cfg.Browser.Enabled {
			browser, browserErr := scrape.NewBrowser(cfg.Browser.ChromePath, logger)
			if browserErr != nil {
				return nil, browserErr
			}
			renderer = browser
			c.closers = append(c.closers, func() {
				_ = fetcher.Close()
			})
		} else {
			logger.Info("Browser disabled, fetching pages over plain HTTP")
		}
		c.Scraper = scrape.NewScraper(renderer, fetcher, cfg.Browser.TextMode, logger)
		c.closers = append(c.closers, func() {
			_ = c.Scraper.Close()
		})
	}

	if needs.Postgres {
		if err := cfg.RequirePostgres(); err != nil {
			return nil, err
		}
		c.Postgres, err = store.NewPostgresService(store.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres service: %w", err)
		}
		c.closers = append(c.closers, func() {
			_ = c.Postgres.Close()
		})
	}

	return c, nil
}

// Pipeline wires the built collaborators into the stage runner.
func (c *Container) Pipeline() *pipeline.Pipeline {
	deps := pipeline.Deps{
		Extractor: extract.New(c.Logger),
		Chunker:   chunker.New(chunker.WithMaxChunkSize(c.Config.Pipeline.ChunkSize)),
		Prompts:   c.Prompts,
		Policy: retry.Policy{
			MaxAttempts: c.Config.Pipeline.RetryAttempts,
			Delay:       c.Config.Pipeline.RetryDelay,
		},
		Pacer:  retry.NewPacer(c.Config.Pipeline.RequestDelay),
		Logger: c.Logger,
	}
	if c.Places != nil {
		deps.Searcher = c.Places
	}
	if c.Scraper != nil {
		deps.Pages = c.Scraper
	}
	if c.LLM != nil {
		deps.LLM = c.LLM
	}
	return pipeline.New(deps)
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
