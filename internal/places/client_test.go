package places

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/pkg/errors"
)

type fakeSearcher struct {
	queries []string
	results []Place
	errs    []error
}

func (f *fakeSearcher) SearchText(_ context.Context, q string) ([]Place, error) {
	f.queries = append(f.queries, q)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.results, nil
}

type mapCache struct {
	data map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func newTestClient(api textSearcher, cache JSONCache) *Client {
	c := newClient(api, cache, zap.NewNop())
	c.policy = retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}
	return c
}

func TestSearchDropsPlacesWithoutWebsite(t *testing.T) {
	api := &fakeSearcher{results: []Place{
		{DisplayName: "Cafe Sydney", WebsiteURI: "https://cafesydney.com"},
		{DisplayName: "No Site Bar"},
		{DisplayName: " Bennelong ", WebsiteURI: " https://bennelong.com.au "},
	}}

	venues, err := newTestClient(api, nil).Search(context.Background(), "restaurant", "Sydney CBD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(venues) != 2 || venues[1].Name != "Bennelong" || venues[1].Website != "https://bennelong.com.au" {
		t.Fatalf("unexpected venues: %+v", venues)
	}
	if api.queries[0] != "restaurant in Sydney CBD" {
		t.Fatalf("unexpected query %q", api.queries[0])
	}
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	api := &fakeSearcher{
		errs:    []error{errors.NewAPIError("places.search", 503, "unavailable"), nil},
		results: []Place{{DisplayName: "A", WebsiteURI: "https://a.example"}},
	}

	venues, err := newTestClient(api, nil).Search(context.Background(), "bar", "Sydney")
	if err != nil || len(venues) != 1 {
		t.Fatalf("expected success after retry, got %v %v", venues, err)
	}
	if len(api.queries) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(api.queries))
	}
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	api := &fakeSearcher{errs: []error{errors.NewAPIError("places.search", 403, "denied")}}

	if _, err := newTestClient(api, nil).Search(context.Background(), "bar", "Sydney"); err == nil {
		t.Fatalf("expected error")
	}
	if len(api.queries) != 1 {
		t.Fatalf("expected a single call for a 403, got %d", len(api.queries))
	}
}

func TestSearchUsesCache(t *testing.T) {
	api := &fakeSearcher{results: []Place{{DisplayName: "A", WebsiteURI: "https://a.example"}}}
	client := newTestClient(api, &mapCache{data: map[string][]byte{}})

	for i := 0; i < 2; i++ {
		venues, err := client.Search(context.Background(), "cafe", "Sydney")
		if err != nil || len(venues) != 1 {
			t.Fatalf("unexpected result %v %v", venues, err)
		}
	}
	if len(api.queries) != 1 {
		t.Fatalf("expected second search to hit cache, got %d calls", len(api.queries))
	}
}
