package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/util"
)

// MatchProducts asks the model which catalogue products suit each venue's ingredients
// and writes the combined venue → products map to outPath.
func (p *Pipeline) MatchProducts(ctx context.Context, ingredientsPath, cataloguePath, outPath string) (Summary, error) {
	logger := util.ForStage(p.logger, "match")
	summary := Summary{Stage: "match"}
	if err := p.requireLLM("match"); err != nil {
		return summary, err
	}

	records, err := datafile.LoadIngredients(ingredientsPath, logger)
	if err != nil {
		logger.Error("Ingredients file unusable", zap.String("file", ingredientsPath), zap.Error(err))
		return summary, err
	}
	catalogue, err := datafile.LoadCatalogue(cataloguePath)
	if err != nil {
		logger.Error("No products loaded from the catalogue. Aborting product matching.",
			zap.String("file", cataloguePath),
			zap.Error(err),
		)
		return summary, err
	}

	all := domain.ProductMatches{}
	for _, record := range records {
		if err := p.pacer.Wait(ctx); err != nil {
			interrupted(ctx, logger)
			break
		}

		var matches domain.ProductMatches
		err := guard(logger, record.Name, func() error {
			var err error
			matches, err = p.venueMatches(ctx, logger, record, catalogue)
			return err
		})
		if err != nil {
			summary.Failed++
			logger.Error("Error matching products", zap.String("venue", record.Name), zap.Error(err))
			continue
		}

		for _, name := range all.Merge(matches) {
			logger.Warn("Venue matched twice, keeping the later result", zap.String("venue", name))
		}
		summary.Processed++
	}

	if err := datafile.SaveProductMatches(outPath, all); err != nil {
		return summary, err
	}
	logger.Info("Product matching completed", append(summary.fields(),
		zap.String("file", outPath),
		zap.Int("venues", len(all)),
	)...)
	return summary, ctx.Err()
}

// venueMatches makes one model call for record and decodes the {venue: [products]}
// object it returns.
func (p *Pipeline) venueMatches(ctx context.Context, logger *zap.Logger, record domain.IngredientRecord, catalogue domain.Catalogue) (domain.ProductMatches, error) {
	pr, err := p.prompts.BuildMatch(record, catalogue)
	if err != nil {
		return nil, err
	}
	return completeAs(ctx, p, logger, "match.complete", pr, func(response string) (domain.ProductMatches, error) {
		var raw map[string]json.RawMessage
		if err := p.extractor.Object(response, &raw); err != nil {
			return nil, err
		}
		return coerceMatches(logger, raw), nil
	})
}

// coerceMatches keeps the string entries of every list value. Keys whose value is not
// a list are dropped.
func coerceMatches(logger *zap.Logger, raw map[string]json.RawMessage) domain.ProductMatches {
	matches := make(domain.ProductMatches, len(raw))
	for venue, value := range raw {
		var items []any
		if err := json.Unmarshal(value, &items); err != nil {
			logger.Warn("Ignoring match entry that is not a list",
				zap.String("venue", venue),
				zap.String("value", util.TruncateString(string(value), 200)),
			)
			continue
		}
		products := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					products = append(products, s)
				}
			}
		}
		matches[venue] = products
	}
	return matches
}
