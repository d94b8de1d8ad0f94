package scrape

import (
	"bytes"
	"errors"
	"io"

	"github.com/ledongthuc/pdf"
)

var errEmptyPDFContent = errors.New("pdf content is empty")

// TextFromPDF extracts the plain text of an in-memory PDF document.
func TextFromPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
