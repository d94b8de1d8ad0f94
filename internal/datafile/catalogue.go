package datafile

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// LoadCatalogue flattens every row of the CSV into one product list, in file order.
func LoadCatalogue(path string) (domain.Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		if isMissing(err) {
			return nil, errors.NewInputError("datafile.catalogue", fmt.Sprintf("file not found: %s", path), err)
		}
		return nil, errors.NewInputError("datafile.catalogue", fmt.Sprintf("cannot read %s", path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	products := domain.Catalogue{}
	for {
		row, err := r.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.NewInputError("datafile.catalogue", fmt.Sprintf("invalid CSV in %s", path), err)
		}
		for _, field := range row {
			if name := strings.TrimSpace(field); name != "" {
				products = append(products, name)
			}
		}
	}
	if len(products) == 0 {
		return nil, errors.NewInputError("datafile.catalogue", fmt.Sprintf("no products in %s", path), nil)
	}
	return products, nil
}

// SaveCatalogue writes the catalogue as a single CSV row.
func SaveCatalogue(path string, catalogue domain.Catalogue) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(catalogue) > 0 {
		if err := w.Write(catalogue); err != nil {
			return fmt.Errorf("encode catalogue: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode catalogue: %w", err)
	}
	return writeFile(path, buf.Bytes())
}
