package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/prompt"
	"github.com/kapu/venue-match-go/internal/util"
)

// RetrieveMenus turns each venue's menu page or PDF into a structured menu. Venues
// already in outPath are skipped. A venue that still fails after the retries gets an
// error marker so the next run does not try it again.
func (p *Pipeline) RetrieveMenus(ctx context.Context, inPath, outPath string) (Summary, error) {
	logger := util.ForStage(p.logger, "menus")
	summary := Summary{Stage: "menus"}
	if err := p.requirePages("menus"); err != nil {
		return summary, err
	}
	if err := p.requireLLM("menus"); err != nil {
		return summary, err
	}

	venues, err := datafile.LoadVenues(inPath, logger)
	if err != nil {
		logger.Error("No venues loaded", zap.String("file", inPath), zap.Error(err))
		return summary, err
	}

	menus := datafile.LoadMenusForResume(outPath, logger)
	for _, venue := range venues {
		if _, ok := menus[venue.Name]; ok {
			summary.Skipped++
			logger.Info("Menu already exists, skipping", zap.String("venue", venue.Name))
			continue
		}
		if err := p.pacer.Wait(ctx); err != nil {
			interrupted(ctx, logger)
			break
		}

		var menu domain.Menu
		err := guard(logger, venue.Name, func() error {
			var err error
			menu, err = p.venueMenu(ctx, logger, venue)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				interrupted(ctx, logger)
				break
			}
			logger.Error("Error scraping menu", zap.String("venue", venue.Name), zap.String("url", venue.Website), zap.Error(err))
			menu = domain.MenuError(fmt.Sprintf("Failed to scrape menu: %v", err))
		}

		if menu.IsError() {
			summary.Failed++
		} else {
			summary.Processed++
			logger.Info("Menu scraped", zap.String("venue", venue.Name), zap.Int("sections", len(menu.Sections)))
		}

		menus[venue.Name] = menu
		if err := datafile.SaveMenus(outPath, menus); err != nil {
			return summary, err
		}
	}

	logger.Info("Menu retrieval finished", append(summary.fields(), zap.String("file", outPath))...)
	return summary, ctx.Err()
}

// venueMenu fetches the venue's menu text and parses every chunk of it. Sections from
// all chunks are concatenated. The venue fails only when no chunk could be parsed.
func (p *Pipeline) venueMenu(ctx context.Context, logger *zap.Logger, venue domain.Venue) (domain.Menu, error) {
	logger.Info("Scraping menu", zap.String("venue", venue.Name), zap.String("url", venue.Website))

	page, err := p.fetch(ctx, logger, venue.Website)
	if err != nil {
		return domain.Menu{}, err
	}

	menu := domain.Menu{Sections: []domain.MenuSection{}}
	chunks := p.chunker.Chunk(page.Text)
	var lastErr error
	parsed := 0
	for i, chunk := range chunks {
		part, err := p.parseMenuChunk(ctx, logger, chunk)
		if err != nil {
			lastErr = err
			logger.Warn("Menu chunk could not be parsed",
				zap.String("venue", venue.Name),
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			continue
		}
		if part.IsError() {
			return part, nil
		}
		parsed++
		menu.Sections = append(menu.Sections, part.Sections...)
	}

	if parsed == 0 && lastErr != nil {
		return domain.Menu{}, lastErr
	}
	return menu, nil
}

// parseMenuChunk asks the model for one chunk's menu and standardizes the answer.
// Unparsable answers count as failed attempts.
func (p *Pipeline) parseMenuChunk(ctx context.Context, logger *zap.Logger, chunk string) (domain.Menu, error) {
	pr, err := p.prompts.BuildMenu(prompt.TextVars{Text: chunk})
	if err != nil {
		return domain.Menu{}, err
	}
	return completeAs(ctx, p, logger, "menus.parse", pr, func(response string) (domain.Menu, error) {
		var raw domain.RawMenu
		if err := p.extractor.Object(response, &raw); err != nil {
			return domain.Menu{}, err
		}
		return raw.Standardize(), nil
	})
}
