// Package pipeline runs the batch stages: venue discovery, menu link discovery,
// ingredient and menu retrieval, catalogue parsing and product matching. Every stage
// works through its venues one at a time and persists as it goes.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/chunker"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/extract"
	"github.com/kapu/venue-match-go/internal/llm"
	"github.com/kapu/venue-match-go/internal/prompt"
	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/internal/scrape"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// VenueSearcher finds venues of one type near a location.
type VenueSearcher interface {
	Search(ctx context.Context, venueType, location string) ([]domain.Venue, error)
}

// PageSource loads venue pages and documents.
type PageSource interface {
	Fetch(ctx context.Context, url string) (scrape.Page, error)
	RenderedHTML(ctx context.Context, url string) (string, error)
	PDFText(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators a Pipeline draws on. Stages that need a missing
// collaborator fail with a configuration error.
type Deps struct {
	Searcher  VenueSearcher
	Pages     PageSource
	LLM       llm.Completer
	Extractor *extract.Extractor
	Chunker   *chunker.Chunker
	Prompts   *prompt.PromptBuilder
	Policy    retry.Policy
	Pacer     *retry.Pacer
	Logger    *zap.Logger
}

type Pipeline struct {
	searcher  VenueSearcher
	pages     PageSource
	llm       llm.Completer
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	prompts   *prompt.PromptBuilder
	policy    retry.Policy
	pacer     *retry.Pacer
	logger    *zap.Logger
}

func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		searcher:  deps.Searcher,
		pages:     deps.Pages,
		llm:       deps.LLM,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		prompts:   deps.Prompts,
		policy:    deps.Policy,
		pacer:     deps.Pacer,
		logger:    logger,
	}
	if p.extractor == nil {
		p.extractor = extract.New(logger)
	}
	if p.chunker == nil {
		p.chunker = chunker.New()
	}
	if p.prompts == nil {
		p.prompts = prompt.NewPromptBuilder()
	}
	if p.pacer == nil {
		p.pacer = retry.NewPacer(0)
	}
	if p.policy.MaxAttempts == 0 {
		p.policy = retry.DefaultPolicy()
	}
	return p
}

// Summary counts what a stage did with its venues.
type Summary struct {
	Stage     string
	Processed int
	Skipped   int
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d processed, %d skipped, %d failed", s.Stage, s.Processed, s.Skipped, s.Failed)
}

func (s Summary) fields() []zap.Field {
	return []zap.Field{
		zap.Int("processed", s.Processed),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
	}
}

func (p *Pipeline) requireLLM(stage string) error {
	if p.llm == nil {
		return errors.NewConfigError(fmt.Sprintf("%s stage needs a language model", stage))
	}
	return nil
}

func (p *Pipeline) requirePages(stage string) error {
	if p.pages == nil {
		return errors.NewConfigError(fmt.Sprintf("%s stage needs a page fetcher", stage))
	}
	return nil
}

// guard runs fn and turns a panic into an error so one venue cannot stop the stage.
func guard(logger *zap.Logger, venue string, fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		err = fn()
	})
	if r := pc.Recovered(); r != nil {
		logger.Error("Recovered from panic while processing venue",
			zap.String("venue", venue),
			zap.String("panic", fmt.Sprint(r.Value)),
			zap.ByteString("stack", r.Stack),
		)
		return errors.NewTransientError("pipeline.venue", fmt.Sprintf("panic: %v", r.Value), r.AsError())
	}
	return err
}

// complete sends one prompt under the retry policy.
func (p *Pipeline) complete(ctx context.Context, logger *zap.Logger, op string, pr prompt.Prompt) (string, error) {
	return retry.DoValue(ctx, p.policy, logger, op, func(ctx context.Context, _ int) (string, error) {
		return p.llm.Complete(ctx, llm.FromPrompt(pr))
	})
}

// completeAs sends one prompt and parses the answer under the retry policy. A parse
// failure counts as a failed attempt; later attempts bypass the cached answer and
// overwrite it.
func completeAs[T any](ctx context.Context, p *Pipeline, logger *zap.Logger, op string, pr prompt.Prompt, parse func(string) (T, error)) (T, error) {
	return retry.DoValue(ctx, p.policy, logger, op, func(ctx context.Context, attempt int) (T, error) {
		var opts []llm.Option
		if attempt > 0 {
			opts = append(opts, llm.WithRefresh())
		}
		response, err := p.llm.Complete(ctx, llm.FromPrompt(pr), opts...)
		if err != nil {
			var zero T
			return zero, err
		}
		return parse(response)
	})
}

// fetch loads url under the retry policy.
func (p *Pipeline) fetch(ctx context.Context, logger *zap.Logger, url string) (scrape.Page, error) {
	return retry.DoValue(ctx, p.policy, logger, "fetch", func(ctx context.Context, _ int) (scrape.Page, error) {
		return p.pages.Fetch(ctx, url)
	})
}

// interrupted reports whether ctx ended, logging the stop once.
func interrupted(ctx context.Context, logger *zap.Logger) bool {
	if ctx.Err() == nil {
		return false
	}
	logger.Warn("Stage interrupted, saving progress", zap.Error(ctx.Err()))
	return true
}
