package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/prompt"
	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/internal/scrape"
	"github.com/kapu/venue-match-go/internal/util"
)

// RetrieveIngredients scrapes each venue's menu page and any PDFs it links to, asks the
// model for the ingredients and appends one record per venue to outPath. Venues that
// already have a record are skipped.
func (p *Pipeline) RetrieveIngredients(ctx context.Context, inPath, outPath string) (Summary, error) {
	logger := util.ForStage(p.logger, "ingredients")
	summary := Summary{Stage: "ingredients"}
	if err := p.requirePages("ingredients"); err != nil {
		return summary, err
	}
	if err := p.requireLLM("ingredients"); err != nil {
		return summary, err
	}

	venues, err := datafile.LoadVenues(inPath, logger)
	if err != nil {
		logger.Error("No venues loaded", zap.String("file", inPath), zap.Error(err))
		return summary, err
	}

	stored, err := datafile.LoadIngredientsForResume(outPath, logger)
	if err != nil {
		return summary, err
	}
	existing := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		existing[r.Name] = struct{}{}
	}

	for _, venue := range venues {
		if _, ok := existing[venue.Name]; ok {
			summary.Skipped++
			logger.Info("Skipping venue, ingredients already stored", zap.String("venue", venue.Name))
			continue
		}
		if err := p.pacer.Wait(ctx); err != nil {
			interrupted(ctx, logger)
			break
		}

		var ingredients []string
		err := guard(logger, venue.Name, func() error {
			var err error
			ingredients, err = p.venueIngredients(ctx, logger, venue)
			return err
		})
		if err != nil {
			summary.Failed++
			logger.Error("Failed to scrape ingredients", zap.String("venue", venue.Name), zap.Error(err))
			continue
		}
		if len(ingredients) == 0 {
			summary.Failed++
			logger.Warn("No ingredients found", zap.String("venue", venue.Name))
			continue
		}

		record := domain.NewIngredientRecord(venue.Name, ingredients)
		if _, err := datafile.SaveIngredients(outPath, []domain.IngredientRecord{record}, logger); err != nil {
			return summary, err
		}
		existing[venue.Name] = struct{}{}
		summary.Processed++
		logger.Info("Ingredients extracted",
			zap.String("venue", venue.Name),
			zap.Int("count", len(ingredients)),
		)
	}

	logger.Info("Ingredient retrieval finished", append(summary.fields(), zap.String("file", outPath))...)
	return summary, ctx.Err()
}

// venueIngredients unions the ingredients of the venue page and its linked PDFs.
func (p *Pipeline) venueIngredients(ctx context.Context, logger *zap.Logger, venue domain.Venue) ([]string, error) {
	logger.Info("Scraping ingredients", zap.String("venue", venue.Name), zap.String("url", venue.Website))

	page, err := p.fetch(ctx, logger, venue.Website)
	if err != nil {
		return nil, err
	}

	all := p.textIngredients(ctx, logger, venue.Name, page.Text)

	if page.HTML != "" {
		links, err := scrape.FindPDFLinks(page.HTML, venue.Website)
		if err != nil {
			logger.Warn("Cannot scan page for PDF links", zap.String("venue", venue.Name), zap.Error(err))
		}
		for _, link := range links {
			text, err := p.fetchPDF(ctx, logger, link)
			if err != nil {
				logger.Error("Error scraping PDF", zap.String("venue", venue.Name), zap.String("url", link), zap.Error(err))
				continue
			}
			all = append(all, p.textIngredients(ctx, logger, venue.Name, text)...)
		}
	}
	return domain.UniqueSorted(all), nil
}

func (p *Pipeline) fetchPDF(ctx context.Context, logger *zap.Logger, url string) (string, error) {
	return retry.DoValue(ctx, p.policy, logger, "ingredients.pdf", func(ctx context.Context, _ int) (string, error) {
		return p.pages.PDFText(ctx, url)
	})
}

// textIngredients asks the model for the ingredients of every chunk of text. Chunks
// whose call fails are logged and contribute nothing.
func (p *Pipeline) textIngredients(ctx context.Context, logger *zap.Logger, venue, text string) []string {
	var ingredients []string
	for i, chunk := range p.chunker.Chunk(text) {
		pr, err := p.prompts.BuildIngredients(prompt.TextVars{Text: chunk})
		if err != nil {
			logger.Error("Cannot build ingredients prompt", zap.Error(err))
			return ingredients
		}
		response, err := p.complete(ctx, logger, "ingredients.complete", pr)
		if err != nil {
			logger.Error("Error extracting ingredients",
				zap.String("venue", venue),
				zap.Int("chunk", i+1),
				zap.Error(err),
			)
			continue
		}
		found := util.SplitTrimmed(response, ",")
		logger.Debug("Raw ingredients response", zap.String("venue", venue), zap.Strings("ingredients", found))
		ingredients = append(ingredients, found...)
	}
	return ingredients
}
