package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/venue-match-go/pkg/errors"
)

func TestVenueValidate(t *testing.T) {
	assert.NoError(t, Venue{Name: "Cafe Sydney", Website: "https://cafesydney.com"}.Validate())

	err := Venue{Name: " ", Website: "https://example.com"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInput(err))

	assert.Error(t, Venue{Name: "Bar", Website: "example.com/menu"}.Validate())
	assert.Error(t, Venue{Name: "Bar", Website: "ftp://example.com"}.Validate())
}

func TestIsPDFURL(t *testing.T) {
	assert.True(t, IsPDFURL("https://example.com/menus/Dinner.PDF"))
	assert.True(t, IsPDFURL("https://example.com/menu.pdf?v=3"))
	assert.False(t, IsPDFURL("https://example.com/menu"))
}

func TestMergeIngredientsIsAppendOnly(t *testing.T) {
	existing := []IngredientRecord{{Name: "A", Ingredients: "egg, flour"}}
	incoming := []IngredientRecord{
		{Name: "A", Ingredients: "changed"},
		{Name: "B", Ingredients: "basil"},
		{Name: "B", Ingredients: "duplicate"},
	}

	merged, added := MergeIngredients(existing, incoming)

	assert.Equal(t, 1, added)
	assert.Equal(t, []IngredientRecord{
		{Name: "A", Ingredients: "egg, flour"},
		{Name: "B", Ingredients: "basil"},
	}, merged)

	again, addedAgain := MergeIngredients(merged, incoming)
	assert.Zero(t, addedAgain)
	assert.Equal(t, merged, again)
}

func TestNewIngredientRecord(t *testing.T) {
	r := NewIngredientRecord("A", []string{" tomato", "basil", "tomato", ""})
	assert.Equal(t, "basil, tomato", r.Ingredients)
	assert.Equal(t, []string{"basil", "tomato"}, r.List())
}

func TestRawMenuStandardize(t *testing.T) {
	var raw RawMenu
	require.NoError(t, json.Unmarshal([]byte(`{
		"sections": [
			{"section_name": "Mains", "items": [{"name": "Steak", "description": "beef"}, "junk", {"name": "Fish"}]},
			{"items": [{"description": "mystery"}]},
			{"section_name": "Empty", "items": []}
		]
	}`), &raw))

	menu := raw.Standardize()

	require.Len(t, menu.Sections, 2)
	assert.Equal(t, MenuSection{Name: "Mains", Items: []MenuItem{
		{Name: "Steak", Description: "beef"},
		{Name: "Fish", Description: ""},
	}}, menu.Sections[0])
	assert.Equal(t, "Uncategorized", menu.Sections[1].Name)
	assert.Equal(t, "mystery", menu.Sections[1].Items[0].Description)
}

func TestRawMenuErrorPassesThrough(t *testing.T) {
	menu := RawMenu{Error: "Empty response from API"}.Standardize()
	assert.True(t, menu.IsError())
	assert.Equal(t, "Empty response from API", menu.Error)
}

func TestMenuJSONShape(t *testing.T) {
	data, err := json.Marshal(Menus{
		"A": {},
		"B": MenuError("Failed to scrape menu: timeout"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":{"sections":[]},"B":{"error":"Failed to scrape menu: timeout"}}`, string(data))

	var back Menus
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back["B"].IsError())
	assert.False(t, back["A"].IsError())
}

func TestProductMatchesMergeOverwrites(t *testing.T) {
	m := ProductMatches{"A": {"Flour"}}

	overwritten := m.Merge(ProductMatches{"A": {"Sugar"}, "B": nil})

	assert.Equal(t, []string{"A"}, overwritten)
	assert.Equal(t, []string{"Sugar"}, m["A"])
	assert.Equal(t, []string{}, m["B"])
	assert.Equal(t, []string{"A", "B"}, m.VenueNames())
}

func TestNewCatalogue(t *testing.T) {
	assert.Equal(t, Catalogue{"Butter", "Flour"}, NewCatalogue([]string{"Flour", "Butter", " Flour ", ""}))
}
