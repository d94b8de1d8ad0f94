package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/util"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// DiscoverVenues searches every venue type near location and overwrites outPath with
// the combined list. A later result with an already seen name replaces the earlier one.
func (p *Pipeline) DiscoverVenues(ctx context.Context, venueTypes []string, location, outPath string) (Summary, error) {
	logger := util.ForStage(p.logger, "venues")
	summary := Summary{Stage: "venues"}
	if p.searcher == nil {
		return summary, errors.NewConfigError("venues stage needs a places client")
	}

	var venues []domain.Venue
	index := make(map[string]int)
	for _, venueType := range venueTypes {
		if err := p.pacer.Wait(ctx); err != nil {
			interrupted(ctx, logger)
			break
		}

		logger.Info("Searching venues", zap.String("type", venueType), zap.String("location", location))
		found, err := p.searcher.Search(ctx, venueType, location)
		if err != nil {
			summary.Failed++
			logger.Error("Venue search failed", zap.String("type", venueType), zap.Error(err))
			continue
		}

		for _, v := range found {
			if err := v.Validate(); err != nil {
				summary.Skipped++
				logger.Warn("Skipping invalid venue", zap.String("name", v.Name), zap.Error(err))
				continue
			}
			if i, ok := index[v.Name]; ok {
				logger.Warn("Duplicate venue name, keeping the later result",
					zap.String("venue", v.Name),
					zap.String("previous", venues[i].Website),
					zap.String("website", v.Website),
				)
				venues[i] = v
				continue
			}
			index[v.Name] = len(venues)
			venues = append(venues, v)
		}
		summary.Processed++
		logger.Info("Venues found", zap.String("type", venueType), zap.Int("count", len(found)))
	}

	if err := datafile.SaveVenues(outPath, venues); err != nil {
		return summary, err
	}
	logger.Info("Venues saved", append(summary.fields(), zap.String("file", outPath), zap.Int("venues", len(venues)))...)
	return summary, ctx.Err()
}
