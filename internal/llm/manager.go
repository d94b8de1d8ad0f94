package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/internal/util"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// Completer is the single language model operation the pipeline stages depend on.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts ...Option) (string, error)
}

// Cache stores completions keyed by a hash of the conversation.
type Cache interface {
	GetCompletion(ctx context.Context, key string) (string, bool, error)
	SetCompletion(ctx context.Context, key, value string, ttl time.Duration) error
}

type Manager struct {
	primary        Provider
	fallback       Provider
	cache          Cache
	cacheTTL       time.Duration
	circuitBreaker *util.CircuitBreaker
	logger         *zap.Logger
}

type ManagerConfig struct {
	Provider       string // openai | gemini | ollama
	EnableFallback bool
	OpenAIAPIKey   string
	OpenAIModel    string
	GeminiAPIKey   string
	GeminiModel    string
	OllamaHost     string
	OllamaModel    string
	Cache          Cache
	CacheTTL       time.Duration
}

// NewManager builds the configured primary provider and, when enabled, the first other
// provider that has credentials as fallback.
func NewManager(ctx context.Context, cfg ManagerConfig, logger *zap.Logger) (*Manager, error) {
	build := func(name string) (Provider, error) {
		switch name {
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				return nil, nil
			}
			return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger), nil
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				return nil, nil
			}
			return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		case "ollama":
			if cfg.OllamaModel == "" {
				return nil, nil
			}
			return NewOllamaProvider(cfg.OllamaHost, cfg.OllamaModel, logger)
		default:
			return nil, errors.NewConfigError(fmt.Sprintf("unknown LLM provider %q", name))
		}
	}

	primary, err := build(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, errors.NewConfigError(fmt.Sprintf("no credentials for LLM provider %q", cfg.Provider))
	}

	var fallback Provider
	if cfg.EnableFallback {
		for _, name := range []string{"openai", "gemini"} {
			if name == cfg.Provider {
				continue
			}
			p, err := build(name)
			if err != nil {
				return nil, err
			}
			if p != nil {
				fallback = p
				break
			}
		}
		if fallback != nil {
			logger.Info("LLM fallback enabled", zap.String("fallback", fallback.Name()))
		} else {
			logger.Info("LLM fallback disabled (no second provider configured)")
		}
	}

	mm := NewManagerWithProviders(primary, fallback, logger)
	mm.cache = cfg.Cache
	mm.cacheTTL = cfg.CacheTTL
	return mm, nil
}

// NewManagerWithProviders wires explicit providers. fallback may be nil.
func NewManagerWithProviders(primary, fallback Provider, logger *zap.Logger) *Manager {
	return &Manager{
		primary:  primary,
		fallback: fallback,
		cacheTTL: constants.CacheTTL.Completion,
		circuitBreaker: util.NewCircuitBreaker(
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			logger,
		),
		logger: logger,
	}
}

// WithCache attaches a completion cache.
func (mm *Manager) WithCache(cache Cache, ttl time.Duration) *Manager {
	mm.cache = cache
	if ttl > 0 {
		mm.cacheTTL = ttl
	}
	return mm
}

func (mm *Manager) Complete(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	text, _, err := mm.Generate(ctx, messages, opts...)
	return text, err
}

// Generate runs the conversation on the primary provider, then the fallback. Service
// failures feed the circuit breaker; while it is open calls fail fast.
func (mm *Manager) Generate(ctx context.Context, messages []Message, opts ...Option) (string, *GenerateMetadata, error) {
	o := applyOptions(opts)

	var key string
	if mm.cache != nil && !o.noCache {
		key = CacheKey(o.preset, messages)
		if o.refresh {
			mm.logger.Debug("Completion cache refresh", zap.String("key", key))
		} else if cached, ok, err := mm.cache.GetCompletion(ctx, key); err != nil {
			mm.logger.Warn("Completion cache read failed", zap.Error(err))
		} else if ok {
			mm.logger.Debug("Completion cache hit", zap.String("key", key))
			return cached, &GenerateMetadata{CacheHit: true}, nil
		}
	}

	if !mm.circuitBreaker.CanExecute() {
		status := mm.circuitBreaker.Status()
		fields := []zap.Field{
			zap.String("state", status.State.String()),
			zap.Int("failure_count", status.FailureCount),
		}
		if status.NextRetryTime != nil {
			fields = append(fields, zap.Time("next_retry", *status.NextRetryTime))
		}
		mm.logger.Error("LLM unavailable (circuit open)", fields...)
		return "", nil, errors.NewTransientError("llm.complete", "language model circuit is open", nil)
	}

	cfg := GetPresetConfig(o.preset)

	result, primaryErr := mm.primary.Generate(ctx, messages, cfg)
	metadata := &GenerateMetadata{Provider: mm.primary.Name(), Model: result.Model}
	err := primaryErr
	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = fmt.Errorf("%s returned empty response", mm.primary.Name())
	}

	if err != nil && mm.fallback != nil && ctx.Err() == nil {
		mm.logger.Warn("Primary provider failed, trying fallback",
			zap.String("primary", mm.primary.Name()),
			zap.String("fallback", mm.fallback.Name()),
			zap.Error(err),
		)
		fbResult, fbErr := mm.fallback.Generate(ctx, messages, cfg)
		if fbErr == nil && strings.TrimSpace(fbResult.Text) == "" {
			fbErr = fmt.Errorf("%s returned empty response", mm.fallback.Name())
		}
		if fbErr == nil {
			result, err = fbResult, nil
			metadata = &GenerateMetadata{Provider: mm.fallback.Name(), Model: fbResult.Model, UsedFallback: true}
		} else {
			mm.recordFailure(err, fbErr)
			return "", nil, errors.NewTransientError("llm.complete", "all providers failed", fbErr)
		}
	}

	if err != nil {
		mm.recordFailure(err)
		return "", nil, errors.NewTransientError("llm.complete", mm.primary.Name()+" request failed", err)
	}

	mm.circuitBreaker.RecordSuccess()

	if key != "" {
		if err := mm.cache.SetCompletion(ctx, key, result.Text, mm.cacheTTL); err != nil {
			mm.logger.Warn("Completion cache write failed", zap.Error(err))
		}
	}

	return result.Text, metadata, nil
}

func (mm *Manager) recordFailure(errs ...error) {
	serviceFailure := false
	rateLimited := false
	for _, err := range errs {
		serviceFailure = serviceFailure || isServiceFailure(err)
		rateLimited = rateLimited || isRateLimitError(err)
	}
	if !serviceFailure {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if rateLimited {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.RecordFailure(timeout)
}

// Ping reports whether any configured provider answers.
func (mm *Manager) Ping(ctx context.Context) bool {
	if mm.primary.Ping(ctx) {
		return true
	}
	return mm.fallback != nil && mm.fallback.Ping(ctx)
}

func (mm *Manager) CircuitStatus() util.CircuitBreakerStatus {
	return mm.circuitBreaker.Status()
}

func (mm *Manager) ResetCircuit() {
	mm.circuitBreaker.Reset()
}

// CacheKey hashes the preset and conversation into a stable cache key.
func CacheKey(preset ModelPreset, messages []Message) string {
	payload, _ := json.Marshal(struct {
		Preset   ModelPreset `json:"preset"`
		Messages []Message   `json:"messages"`
	}{preset, messages})
	sum := sha256.Sum256(payload)
	return "llm:completion:" + hex.EncodeToString(sum[:])
}

var (
	statusCodePattern  = regexp.MustCompile(`\b(5\d{2})\b`)
	geminiCodePattern  = regexp.MustCompile(`"code":(\d{3})`)
	leadingCodePattern = regexp.MustCompile(`^(\d{3})\s`)
)

func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") || strings.Contains(msg, "connection refused") {
		return true
	}
	if isRateLimitError(err) {
		return true
	}
	if statusCodePattern.MatchString(msg) {
		return true
	}
	for _, re := range []*regexp.Regexp{geminiCodePattern, leadingCodePattern} {
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			if code, err := strconv.Atoi(matches[1]); err == nil {
				return code >= 500 && code < 600
			}
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") || strings.Contains(msg, "quota") {
		return true
	}
	for _, re := range []*regexp.Regexp{geminiCodePattern, leadingCodePattern} {
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			if code, err := strconv.Atoi(matches[1]); err == nil {
				return code == 429
			}
		}
	}
	return false
}
