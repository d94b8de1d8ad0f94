package domain

import (
	"sort"
	"strings"

	"github.com/kapu/venue-match-go/internal/util"
)

// IngredientRecord holds the ingredients found for one venue as a comma-joined string.
type IngredientRecord struct {
	Name        string `json:"name"`
	Ingredients string `json:"ingredients"`
}

// NewIngredientRecord joins the de-duplicated ingredients in sorted order.
func NewIngredientRecord(name string, ingredients []string) IngredientRecord {
	return IngredientRecord{
		Name:        name,
		Ingredients: strings.Join(UniqueSorted(ingredients), ", "),
	}
}

// List splits the stored string back into individual ingredients.
func (r IngredientRecord) List() []string {
	return util.SplitTrimmed(r.Ingredients, ",")
}

// UniqueSorted trims, drops blanks and de-duplicates values.
func UniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}

// MergeIngredients appends records whose name is not yet present. Existing entries are
// never replaced. It returns the merged slice and the number of records added.
func MergeIngredients(existing, incoming []IngredientRecord) ([]IngredientRecord, int) {
	names := make(map[string]struct{}, len(existing))
	merged := make([]IngredientRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		names[r.Name] = struct{}{}
		merged = append(merged, r)
	}

	added := 0
	for _, r := range incoming {
		if _, ok := names[r.Name]; ok {
			continue
		}
		names[r.Name] = struct{}{}
		merged = append(merged, r)
		added++
	}
	return merged, added
}
