// Package datafile reads and writes the files passed between pipeline stages.
// Records are validated on load; invalid entries are logged and skipped.
package datafile

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/pkg/errors"
)

func readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.NewInputError("datafile.read", fmt.Sprintf("file not found: %s", path), err)
		}
		return errors.NewInputError("datafile.read", fmt.Sprintf("cannot read %s", path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.NewInputError("datafile.read", fmt.Sprintf("file is empty: %s", path), nil)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.NewInputError("datafile.read", fmt.Sprintf("invalid JSON in %s", path), err)
	}
	return nil
}

// writeJSON replaces path atomically with the indented encoding of v.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// isMissing reports whether err came from a file that does not exist.
func isMissing(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}

// LoadVenues reads a venue list. A missing or unparsable file is an input error.
func LoadVenues(path string, logger *zap.Logger) ([]domain.Venue, error) {
	var raw []domain.Venue
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	venues := make([]domain.Venue, 0, len(raw))
	for i, v := range raw {
		if err := v.Validate(); err != nil {
			logger.Warn("Skipping invalid venue",
				zap.String("file", path),
				zap.Int("index", i),
				zap.String("name", v.Name),
				zap.Error(err),
			)
			continue
		}
		venues = append(venues, v)
	}
	return venues, nil
}

// LoadVenuesForResume reads previously written output. A missing file yields an
// empty list; an unreadable one is logged and treated as empty.
func LoadVenuesForResume(path string, logger *zap.Logger) []domain.Venue {
	venues, err := LoadVenues(path, logger)
	if err != nil {
		if !isMissing(err) {
			logger.Warn("Cannot read previous output, starting with an empty list",
				zap.String("file", path),
				zap.Error(err),
			)
		}
		return []domain.Venue{}
	}
	return venues
}

func SaveVenues(path string, venues []domain.Venue) error {
	if venues == nil {
		venues = []domain.Venue{}
	}
	return writeJSON(path, venues)
}

// UpsertVenue replaces the venue with the same name or appends v.
func UpsertVenue(venues []domain.Venue, v domain.Venue) []domain.Venue {
	for i := range venues {
		if venues[i].Name == v.Name {
			venues[i] = v
			return venues
		}
	}
	return append(venues, v)
}

// LoadIngredients reads ingredients.json. Records without a name are skipped.
func LoadIngredients(path string, logger *zap.Logger) ([]domain.IngredientRecord, error) {
	var raw []domain.IngredientRecord
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	records := make([]domain.IngredientRecord, 0, len(raw))
	for i, r := range raw {
		if r.Name == "" {
			logger.Warn("Skipping ingredient record without name",
				zap.String("file", path),
				zap.Int("index", i),
			)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// LoadIngredientsForResume is LoadIngredients with a missing file treated as empty.
// Any other failure is returned so the caller never writes over a file it could not read.
func LoadIngredientsForResume(path string, logger *zap.Logger) ([]domain.IngredientRecord, error) {
	records, err := LoadIngredients(path, logger)
	if err != nil {
		if isMissing(err) {
			return []domain.IngredientRecord{}, nil
		}
		logger.Error("Cannot read previous ingredients, refusing to overwrite",
			zap.String("file", path),
			zap.Error(err),
		)
		return nil, err
	}
	return records, nil
}

// SaveIngredients merges records into the file on disk without replacing existing
// names and returns how many were added. An unreadable file is left untouched.
func SaveIngredients(path string, records []domain.IngredientRecord, logger *zap.Logger) (int, error) {
	existing, err := LoadIngredientsForResume(path, logger)
	if err != nil {
		return 0, err
	}
	merged, added := domain.MergeIngredients(existing, records)
	if err := writeJSON(path, merged); err != nil {
		return 0, err
	}
	return added, nil
}

func LoadMenus(path string) (domain.Menus, error) {
	menus := domain.Menus{}
	if err := readJSON(path, &menus); err != nil {
		return nil, err
	}
	return menus, nil
}

// LoadMenusForResume is LoadMenus with a missing file treated as empty.
func LoadMenusForResume(path string, logger *zap.Logger) domain.Menus {
	menus, err := LoadMenus(path)
	if err != nil {
		if !isMissing(err) {
			logger.Warn("Cannot read previous menus, starting fresh",
				zap.String("file", path),
				zap.Error(err),
			)
		}
		return domain.Menus{}
	}
	return menus
}

func SaveMenus(path string, menus domain.Menus) error {
	if menus == nil {
		menus = domain.Menus{}
	}
	return writeJSON(path, menus)
}

// legacyMatch is one element of the older list-shaped match file.
type legacyMatch struct {
	Name           string   `json:"name"`
	VenueName      string   `json:"venue_name"`
	ProductMatches []string `json:"product_matches"`
}

// LoadProductMatches reads product_matches.json in either the map form
// {venue: [products]} or the legacy list form [{name|venue_name, product_matches}].
func LoadProductMatches(path string, logger *zap.Logger) (domain.ProductMatches, error) {
	var raw json.RawMessage
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	switch bytes.TrimSpace(raw)[0] {
	case '{':
		matches := domain.ProductMatches{}
		if err := json.Unmarshal(raw, &matches); err != nil {
			return nil, errors.NewInputError("datafile.matches", fmt.Sprintf("invalid match map in %s", path), err)
		}
		for name, products := range matches {
			if products == nil {
				matches[name] = []string{}
			}
		}
		return matches, nil
	case '[':
		var list []legacyMatch
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.NewInputError("datafile.matches", fmt.Sprintf("invalid match list in %s", path), err)
		}
		matches := make(domain.ProductMatches, len(list))
		for i, entry := range list {
			name := entry.Name
			if name == "" {
				name = entry.VenueName
			}
			if name == "" {
				logger.Warn("Skipping match entry without venue name", zap.Int("index", i))
				continue
			}
			products := entry.ProductMatches
			if products == nil {
				products = []string{}
			}
			matches[name] = products
		}
		return matches, nil
	default:
		return nil, errors.NewInputError("datafile.matches", fmt.Sprintf("unexpected data structure in %s", path), nil)
	}
}

func SaveProductMatches(path string, matches domain.ProductMatches) error {
	if matches == nil {
		matches = domain.ProductMatches{}
	}
	return writeJSON(path, matches)
}
