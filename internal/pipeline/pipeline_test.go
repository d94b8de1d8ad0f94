package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/chunker"
	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/llm"
	"github.com/kapu/venue-match-go/internal/retry"
	"github.com/kapu/venue-match-go/internal/scrape"
	"github.com/kapu/venue-match-go/pkg/errors"
)

type fakeSearcher struct {
	results map[string][]domain.Venue
	errs    map[string]error
}

func (f *fakeSearcher) Search(_ context.Context, venueType, _ string) ([]domain.Venue, error) {
	if err := f.errs[venueType]; err != nil {
		return nil, err
	}
	return f.results[venueType], nil
}

type fakePages struct {
	mu    sync.Mutex
	pages map[string]scrape.Page
	pdfs  map[string]string
	errs  map[string]error
	calls map[string]int
}

func newFakePages() *fakePages {
	return &fakePages{
		pages: map[string]scrape.Page{},
		pdfs:  map[string]string{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakePages) record(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	return f.errs[url]
}

func (f *fakePages) Fetch(_ context.Context, url string) (scrape.Page, error) {
	if err := f.record(url); err != nil {
		return scrape.Page{}, err
	}
	if text, ok := f.pdfs[url]; ok {
		return scrape.Page{URL: url, Text: text}, nil
	}
	page, ok := f.pages[url]
	if !ok {
		return scrape.Page{}, errors.NewAPIError("fetch", 404, "")
	}
	return page, nil
}

func (f *fakePages) RenderedHTML(ctx context.Context, url string) (string, error) {
	page, err := f.Fetch(ctx, url)
	return page.HTML, err
}

func (f *fakePages) PDFText(_ context.Context, url string) (string, error) {
	if err := f.record(url); err != nil {
		return "", err
	}
	text, ok := f.pdfs[url]
	if !ok {
		return "", errors.NewAPIError("fetch", 404, "")
	}
	return text, nil
}

// fakeLLM answers with respond(user message).
type fakeLLM struct {
	mu      sync.Mutex
	respond func(user string) (string, error)
	prompts []string
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, _ ...llm.Option) (string, error) {
	user := messages[len(messages)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	return f.respond(user)
}

func testPipeline(deps Deps) *Pipeline {
	deps.Logger = zap.NewNop()
	deps.Policy = retry.Policy{MaxAttempts: 2}
	return New(deps)
}

func readJSONFile(t *testing.T, path string, dest any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, dest))
}

func TestDiscoverVenuesLaterDuplicateWins(t *testing.T) {
	out := filepath.Join(t.TempDir(), "venues.json")
	searcher := &fakeSearcher{
		results: map[string][]domain.Venue{
			"restaurant": {
				{Name: "Harbour Grill", Website: "https://grill.example"},
				{Name: "Broken", Website: "not a url"},
			},
			"bar": {
				{Name: "Harbour Grill", Website: "https://grill.example/bar"},
				{Name: "Night Owl", Website: "https://owl.example"},
			},
		},
		errs: map[string]error{"cafe": errors.NewTransientError("places", "unavailable", nil)},
	}

	p := testPipeline(Deps{Searcher: searcher})
	summary, err := p.DiscoverVenues(context.Background(), []string{"restaurant", "cafe", "bar"}, "Sydney", out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	var venues []domain.Venue
	readJSONFile(t, out, &venues)
	assert.Equal(t, []domain.Venue{
		{Name: "Harbour Grill", Website: "https://grill.example/bar"},
		{Name: "Night Owl", Website: "https://owl.example"},
	}, venues)
}

func TestDiscoverVenuesNeedsSearcher(t *testing.T) {
	_, err := testPipeline(Deps{}).DiscoverVenues(context.Background(), []string{"bar"}, "Sydney", filepath.Join(t.TempDir(), "v.json"))
	assert.True(t, errors.IsConfig(err))
}

func TestFindMenuURLs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues.json")
	out := filepath.Join(dir, "venues_with_menu_urls.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{
		{Name: "Done", Website: "https://done.example"},
		{Name: "Linked", Website: "https://linked.example"},
		{Name: "Plain", Website: "https://plain.example"},
		{Name: "Down", Website: "https://down.example"},
	}))
	require.NoError(t, datafile.SaveVenues(out, []domain.Venue{{Name: "Done", Website: "https://done.example/menu"}}))

	pages := newFakePages()
	pages.pages["https://linked.example"] = scrape.Page{HTML: `<a href="/about">About</a><a href="/food">Our Food</a><a href="/menu">Menu</a>`}
	pages.pages["https://plain.example"] = scrape.Page{HTML: `<a href="/contact">Contact</a>`}
	pages.errs["https://down.example"] = errors.NewTransientError("fetch", "timeout", nil)

	summary, err := testPipeline(Deps{Pages: pages}).FindMenuURLs(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, pages.calls["https://done.example"])
	assert.Equal(t, 2, pages.calls["https://down.example"])

	var venues []domain.Venue
	readJSONFile(t, out, &venues)
	assert.Equal(t, []domain.Venue{
		{Name: "Done", Website: "https://done.example/menu"},
		{Name: "Linked", Website: "https://linked.example/menu"},
		{Name: "Plain", Website: "https://plain.example"},
		{Name: "Down", Website: "https://down.example"},
	}, venues)
}

// cancellingPages ends the run while a page is being rendered.
type cancellingPages struct {
	*fakePages
	cancel context.CancelFunc
}

func (c *cancellingPages) RenderedHTML(ctx context.Context, url string) (string, error) {
	c.record(url)
	c.cancel()
	return "", ctx.Err()
}

type panickingPages struct {
	*fakePages
}

func (panickingPages) RenderedHTML(context.Context, string) (string, error) {
	panic("renderer crashed")
}

func TestFindMenuURLsDoesNotRecordInterruptedVenue(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues.json")
	out := filepath.Join(dir, "venues_with_menu_urls.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{
		{Name: "A", Website: "https://a.example"},
		{Name: "B", Website: "https://b.example"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pages := &cancellingPages{fakePages: newFakePages(), cancel: cancel}

	summary, err := testPipeline(Deps{Pages: pages}).FindMenuURLs(ctx, in, out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, pages.calls["https://b.example"])
	assert.Empty(t, datafile.LoadVenuesForResume(out, zap.NewNop()))
}

func TestFindMenuURLsCountsRecoveredPanicOnce(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues.json")
	out := filepath.Join(dir, "venues_with_menu_urls.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{{Name: "A", Website: "https://a.example"}}))

	summary, err := testPipeline(Deps{Pages: panickingPages{newFakePages()}}).FindMenuURLs(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Processed)

	var venues []domain.Venue
	readJSONFile(t, out, &venues)
	assert.Equal(t, []domain.Venue{{Name: "A", Website: "https://a.example"}}, venues)
}

func TestFindMenuURLsMissingInputLeavesOutputAlone(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "venues_with_menu_urls.json")

	_, err := testPipeline(Deps{Pages: newFakePages()}).FindMenuURLs(context.Background(), filepath.Join(dir, "missing.json"), out)
	require.Error(t, err)
	assert.True(t, errors.IsInput(err))
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRetrieveIngredientsUnionsPageAndPDFs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues_with_menu_urls.json")
	out := filepath.Join(dir, "ingredients.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{
		{Name: "Known", Website: "https://known.example"},
		{Name: "Bistro", Website: "https://bistro.example/menu"},
		{Name: "Empty", Website: "https://empty.example"},
	}))
	_, err := datafile.SaveIngredients(out, []domain.IngredientRecord{{Name: "Known", Ingredients: "salt"}}, zap.NewNop())
	require.NoError(t, err)

	pages := newFakePages()
	pages.pages["https://bistro.example/menu"] = scrape.Page{
		HTML: `<p>Tomato soup</p><a href="/drinks.pdf">Drinks</a>`,
		Text: "Tomato soup",
	}
	pages.pdfs["https://bistro.example/drinks.pdf"] = "Lime soda"
	pages.pages["https://empty.example"] = scrape.Page{HTML: "<p>Closed</p>", Text: "Closed"}

	model := &fakeLLM{respond: func(user string) (string, error) {
		switch {
		case strings.Contains(user, "Tomato soup"):
			return "tomato, basil, , cream", nil
		case strings.Contains(user, "Lime soda"):
			return "lime, soda water, basil", nil
		default:
			return "", nil
		}
	}}

	summary, err := testPipeline(Deps{Pages: pages, LLM: model}).RetrieveIngredients(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)

	records, err := datafile.LoadIngredients(out, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []domain.IngredientRecord{
		{Name: "Known", Ingredients: "salt"},
		{Name: "Bistro", Ingredients: "basil, cream, lime, soda water, tomato"},
	}, records)
}

func TestRetrieveMenusStandardizesAndMarksFailures(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues_with_menu_urls.json")
	out := filepath.Join(dir, "menus.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{
		{Name: "Bistro", Website: "https://bistro.example/menu"},
		{Name: "Garbled", Website: "https://garbled.example/menu.pdf"},
		{Name: "Down", Website: "https://down.example"},
	}))

	pages := newFakePages()
	pages.pages["https://bistro.example/menu"] = scrape.Page{HTML: "<p>Mains</p>", Text: "Mains\nSteak frites"}
	pages.pdfs["https://garbled.example/menu.pdf"] = "Garbled menu"
	pages.errs["https://down.example"] = errors.NewTransientError("fetch", "connection reset", nil)

	model := &fakeLLM{respond: func(user string) (string, error) {
		if strings.Contains(user, "Steak frites") {
			return "```json\n" + `{"sections": [
				{"section_name": "Mains", "items": [{"name": "Steak frites"}, "stray"]},
				{"section_name": "", "items": [{"name": "Bread", "description": "sourdough"}]},
				{"section_name": "Empty", "items": []}
			]}` + "\n```", nil
		}
		return "sorry, I cannot read this", nil
	}}

	summary, err := testPipeline(Deps{Pages: pages, LLM: model}).RetrieveMenus(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Failed)

	menus, err := datafile.LoadMenus(out)
	require.NoError(t, err)
	assert.Equal(t, domain.Menu{Sections: []domain.MenuSection{
		{Name: "Mains", Items: []domain.MenuItem{{Name: "Steak frites", Description: ""}}},
		{Name: "Uncategorized", Items: []domain.MenuItem{{Name: "Bread", Description: "sourdough"}}},
	}}, menus["Bistro"])
	assert.True(t, menus["Garbled"].IsError())
	assert.True(t, strings.HasPrefix(menus["Garbled"].Error, "Failed to scrape menu: "))
	assert.True(t, menus["Down"].IsError())

	// A second run skips everything already recorded, markers included.
	calls := len(model.prompts)
	summary, err = testPipeline(Deps{Pages: pages, LLM: model}).RetrieveMenus(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Len(t, model.prompts, calls)
}

func TestRetrieveIngredientsRefusesUnreadableOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues_with_menu_urls.json")
	out := filepath.Join(dir, "ingredients.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{{Name: "New", Website: "https://new.example"}}))
	corrupt := `[{"name":"Old","ingredients":"salt"},]`
	require.NoError(t, os.WriteFile(out, []byte(corrupt), 0644))

	pages := newFakePages()
	pages.pages["https://new.example"] = scrape.Page{Text: "Soup"}
	model := &fakeLLM{respond: func(string) (string, error) { return "x", nil }}

	_, err := testPipeline(Deps{Pages: pages, LLM: model}).RetrieveIngredients(context.Background(), in, out)
	require.Error(t, err)
	assert.True(t, errors.IsInput(err))
	assert.Empty(t, model.prompts)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, corrupt, string(data))
}

// scriptedProvider answers with the next entry of answers on each call.
type scriptedProvider struct {
	mu      sync.Mutex
	answers []string
	calls   int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(context.Context, []llm.Message, llm.ModelConfig) (llm.ProviderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer := s.answers[len(s.answers)-1]
	if s.calls < len(s.answers) {
		answer = s.answers[s.calls]
	}
	s.calls++
	return llm.ProviderResult{Text: answer}, nil
}

func (s *scriptedProvider) Ping(context.Context) bool { return true }

type memoryCompletions struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryCompletions) GetCompletion(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCompletions) SetCompletion(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestRetrieveMenusRetryBypassesCachedMalformedAnswer(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues_with_menu_urls.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{{Name: "Bistro", Website: "https://bistro.example/menu"}}))

	pages := newFakePages()
	pages.pages["https://bistro.example/menu"] = scrape.Page{Text: "Mains\nSteak frites"}

	good := `{"sections": [{"section_name": "Mains", "items": [{"name": "Steak frites"}]}]}`
	provider := &scriptedProvider{answers: []string{"sorry, no menu here", good}}
	cache := &memoryCompletions{data: map[string]string{}}
	model := llm.NewManagerWithProviders(provider, nil, zap.NewNop()).WithCache(cache, time.Hour)

	out := filepath.Join(dir, "menus.json")
	summary, err := testPipeline(Deps{Pages: pages, LLM: model}).RetrieveMenus(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, provider.calls)
	require.Len(t, cache.data, 1)
	for _, cached := range cache.data {
		assert.Equal(t, good, cached)
	}

	// A later run reads the corrected answer from the cache.
	again := filepath.Join(dir, "menus_again.json")
	summary, err = testPipeline(Deps{Pages: pages, LLM: model}).RetrieveMenus(context.Background(), in, again)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, provider.calls)

	menus, err := datafile.LoadMenus(again)
	require.NoError(t, err)
	assert.Equal(t, "Steak frites", menus["Bistro"].Sections[0].Items[0].Name)
}

func TestRetrieveMenusRecoversPanics(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues.json")
	out := filepath.Join(dir, "menus.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{{Name: "Bistro", Website: "https://bistro.example"}}))

	pages := newFakePages()
	pages.pages["https://bistro.example"] = scrape.Page{Text: "Soup"}
	model := &fakeLLM{respond: func(string) (string, error) { panic("boom") }}

	summary, err := testPipeline(Deps{Pages: pages, LLM: model}).RetrieveMenus(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	menus, err := datafile.LoadMenus(out)
	require.NoError(t, err)
	assert.Contains(t, menus["Bistro"].Error, "boom")
}

func TestCatalogueProductsFromChunks(t *testing.T) {
	model := &fakeLLM{respond: func(user string) (string, error) {
		switch {
		case strings.Contains(user, "page one"):
			return "```json\n[{\"product name\": \"Basil\"}, {\"product name\": \"Olive Oil\"}]\n```", nil
		case strings.Contains(user, "page two"):
			return `[{"product name": "Olive Oil"}, {"product name": "Flour"`, nil
		default:
			return "", errors.NewTransientError("llm", "down", nil)
		}
	}}
	p := testPipeline(Deps{LLM: model, Chunker: chunker.New(chunker.WithMaxChunkSize(12))})

	products, summary := p.catalogueProducts(context.Background(), zap.NewNop(), "page one\npage two\npage six", Summary{})
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, domain.Catalogue{"Basil", "Flour", "Olive Oil"}, domain.NewCatalogue(products))
}

func TestParseCatalogueMissingPDF(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "catalogue.csv")

	_, err := testPipeline(Deps{LLM: &fakeLLM{}}).ParseCatalogue(context.Background(), filepath.Join(dir, "brochure.pdf"), out)
	require.Error(t, err)
	assert.True(t, errors.IsInput(err))
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMatchProducts(t *testing.T) {
	dir := t.TempDir()
	ingredients := filepath.Join(dir, "ingredients.json")
	catalogue := filepath.Join(dir, "catalogue.csv")
	out := filepath.Join(dir, "product_matches.json")

	_, err := datafile.SaveIngredients(ingredients, []domain.IngredientRecord{
		{Name: "Bistro", Ingredients: "basil, tomato"},
		{Name: "Cafe", Ingredients: "milk"},
		{Name: "Pub", Ingredients: "beer"},
		{Name: "Bistro Bar", Ingredients: "lime"},
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, datafile.SaveCatalogue(catalogue, domain.Catalogue{"Basil", "Milk", "Lime"}))

	model := &fakeLLM{respond: func(user string) (string, error) {
		switch {
		case strings.Contains(user, `"name":"Bistro Bar"`):
			return `{"Bistro": ["Lime"]}`, nil
		case strings.Contains(user, `"name":"Bistro"`):
			return "```json\n{\"Bistro\": [\"Basil\", 7, \" \"]}\n```", nil
		case strings.Contains(user, `"name":"Cafe"`):
			return `Here you go: {"Cafe": ["Milk"], "note": "great venue"}`, nil
		default:
			return "no matches", nil
		}
	}}

	summary, err := testPipeline(Deps{LLM: model}).MatchProducts(context.Background(), ingredients, catalogue, out)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	matches, err := datafile.LoadProductMatches(out, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, domain.ProductMatches{
		"Bistro": {"Lime"},
		"Cafe":   {"Milk"},
	}, matches)
	assert.Contains(t, model.prompts[0], `["Basil","Milk","Lime"]`)
}

func TestMatchProductsMissingCatalogue(t *testing.T) {
	dir := t.TempDir()
	ingredients := filepath.Join(dir, "ingredients.json")
	out := filepath.Join(dir, "product_matches.json")
	_, err := datafile.SaveIngredients(ingredients, []domain.IngredientRecord{{Name: "Bistro", Ingredients: "basil"}}, zap.NewNop())
	require.NoError(t, err)

	_, err = testPipeline(Deps{LLM: &fakeLLM{}}).MatchProducts(context.Background(), ingredients, filepath.Join(dir, "catalogue.csv"), out)
	require.Error(t, err)
	assert.True(t, errors.IsInput(err))
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStagesStopWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "venues.json")
	out := filepath.Join(dir, "menus.json")
	require.NoError(t, datafile.SaveVenues(in, []domain.Venue{{Name: "Bistro", Website: "https://bistro.example"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &fakeLLM{respond: func(string) (string, error) { return "{}", nil }}
	summary, err := testPipeline(Deps{Pages: newFakePages(), LLM: model}).RetrieveMenus(ctx, in, out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, model.prompts)
}
