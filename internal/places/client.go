package places

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	placesapi "google.golang.org/api/places/v1"

	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/pkg/errors"
)

const (
	fieldMask       = "places.displayName,places.websiteUri"
	cacheExpiration = 24 * time.Hour
)

// Place is the slice of a place record the pipeline reads.
type Place struct {
	DisplayName string
	WebsiteURI  string
}

// textSearcher runs one Text Search request.
type textSearcher interface {
	SearchText(ctx context.Context, textQuery string) ([]Place, error)
}

// JSONCache is satisfied by cache.CacheService.
type JSONCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Client finds venues through the Places Text Search API.
type Client struct {
	api    textSearcher
	cache  JSONCache
	policy retry.Policy
	logger *zap.Logger
}

func NewClient(ctx context.Context, apiKey string, cache JSONCache, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.NewConfigError("places API key is required")
	}

	service, err := placesapi.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Places service: %w", err)
	}

	logger.Info("Places client initialized")
	return newClient(&googleSearcher{service: service}, cache, logger), nil
}

func newClient(api textSearcher, cache JSONCache, logger *zap.Logger) *Client {
	return &Client{
		api:    api,
		cache:  cache,
		policy: retry.PlacesPolicy(),
		logger: logger,
	}
}

// Query builds the free-text request sent for one venue type.
func Query(venueType, location string) string {
	return fmt.Sprintf("%s in %s", venueType, location)
}

// Search returns venues for "<venueType> in <location>". Places without a website are
// dropped.
func (c *Client) Search(ctx context.Context, venueType, location string) ([]domain.Venue, error) {
	query := Query(venueType, location)
	cacheKey := "places:search:" + strings.ToLower(query)

	var places []Place
	if c.cache != nil {
		if found, err := c.cache.Get(ctx, cacheKey, &places); err == nil && found {
			c.logger.Debug("Places cache hit", zap.String("query", query))
			return toVenues(places), nil
		}
	}

	places, err := retry.DoValue(ctx, c.policy, c.logger, "places.search", func(ctx context.Context, _ int) ([]Place, error) {
		return c.api.SearchText(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, places, cacheExpiration); err != nil {
			c.logger.Warn("Failed to cache places result", zap.Error(err))
		}
	}

	venues := toVenues(places)
	c.logger.Info("Places search completed",
		zap.String("query", query),
		zap.Int("places", len(places)),
		zap.Int("with_website", len(venues)),
	)
	return venues, nil
}

func toVenues(places []Place) []domain.Venue {
	venues := make([]domain.Venue, 0, len(places))
	for _, p := range places {
		if strings.TrimSpace(p.WebsiteURI) == "" {
			continue
		}
		venues = append(venues, domain.Venue{
			Name:    strings.TrimSpace(p.DisplayName),
			Website: strings.TrimSpace(p.WebsiteURI),
		})
	}
	return venues
}

type googleSearcher struct {
	service *placesapi.Service
}

func (g *googleSearcher) SearchText(ctx context.Context, textQuery string) ([]Place, error) {
	call := g.service.Places.SearchText(&placesapi.GoogleMapsPlacesV1SearchTextRequest{
		TextQuery: textQuery,
	})
	call.Header().Set("X-Goog-FieldMask", fieldMask)

	resp, err := call.Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if stderrors.As(err, &apiErr) {
			return nil, errors.NewAPIError("places.search", apiErr.Code, apiErr.Message)
		}
		return nil, errors.NewTransientError("places.search", "request failed", err)
	}

	places := make([]Place, 0, len(resp.Places))
	for _, p := range resp.Places {
		if p == nil {
			continue
		}
		place := Place{WebsiteURI: p.WebsiteUri}
		if p.DisplayName != nil {
			place.DisplayName = p.DisplayName.Text
		}
		places = append(places, place)
	}
	return places, nil
}
