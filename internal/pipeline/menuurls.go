package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/internal/scrape"
	"github.com/kapu/venue-match-go/internal/util"
)

// FindMenuURLs points each venue at its menu page when the home page links to one.
// Venues already in outPath are skipped and outPath is rewritten after every venue.
func (p *Pipeline) FindMenuURLs(ctx context.Context, inPath, outPath string) (Summary, error) {
	logger := util.ForStage(p.logger, "menu-urls")
	summary := Summary{Stage: "menu-urls"}
	if err := p.requirePages("menu-urls"); err != nil {
		return summary, err
	}

	venues, err := datafile.LoadVenues(inPath, logger)
	if err != nil {
		logger.Error("Cannot load venues", zap.String("file", inPath), zap.Error(err))
		return summary, err
	}

	processed := datafile.LoadVenuesForResume(outPath, logger)
	done := make(map[string]struct{}, len(processed))
	for _, v := range processed {
		done[v.Name] = struct{}{}
	}

	for _, venue := range venues {
		if _, ok := done[venue.Name]; ok {
			summary.Skipped++
			logger.Info("Skipping venue, already processed", zap.String("venue", venue.Name))
			continue
		}
		if err := p.pacer.Wait(ctx); err != nil {
			interrupted(ctx, logger)
			break
		}

		var updated domain.Venue
		err := guard(logger, venue.Name, func() error {
			var err error
			updated, err = p.menuURL(ctx, logger, venue)
			return err
		})
		// An interrupted lookup is not recorded, so the next run tries the venue again.
		if interrupted(ctx, logger) {
			break
		}
		if err != nil {
			updated = venue
		}

		processed = datafile.UpsertVenue(processed, updated)
		done[venue.Name] = struct{}{}
		if err := datafile.SaveVenues(outPath, processed); err != nil {
			return summary, err
		}
		if err != nil {
			summary.Failed++
		} else {
			summary.Processed++
		}
	}

	logger.Info("Menu URL discovery finished", append(summary.fields(), zap.String("file", outPath))...)
	return summary, ctx.Err()
}

// menuURL returns venue with its website replaced by the first menu-like link, or
// unchanged when the page has none or cannot be loaded. The error is non-nil only when
// ctx ended before the page was read.
func (p *Pipeline) menuURL(ctx context.Context, logger *zap.Logger, venue domain.Venue) (domain.Venue, error) {
	logger.Info("Looking for menu link", zap.String("venue", venue.Name), zap.String("url", venue.Website))

	if venue.IsPDF() {
		return venue, nil
	}

	html, err := retry.DoValue(ctx, p.policy, logger, "menu-urls.render", func(ctx context.Context, _ int) (string, error) {
		return p.pages.RenderedHTML(ctx, venue.Website)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return venue, ctxErr
		}
		logger.Error("Cannot load venue page, keeping original URL",
			zap.String("venue", venue.Name),
			zap.Error(err),
		)
		return venue, nil
	}

	links, err := scrape.FindLinksMatching(html, venue.Website, constants.MenuKeywords)
	if err != nil || len(links) == 0 {
		logger.Info("No menu page found, keeping original URL", zap.String("venue", venue.Name))
		return venue, nil
	}

	logger.Info("Menu URL updated", zap.String("venue", venue.Name), zap.String("menu_url", links[0]))
	return venue.WithWebsite(links[0]), nil
}
