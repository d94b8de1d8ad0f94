package domain

import (
	"net/url"
	"strings"

	"github.com/kapu/venue-match-go/pkg/errors"
)

// Venue is a restaurant, cafe or bar found by venue discovery. Name is the join key
// across every data file.
type Venue struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// Validate checks the fields every scraping stage relies on.
func (v Venue) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return errors.NewValidationError("venue name is empty", "name", v.Name)
	}
	u, err := url.Parse(strings.TrimSpace(v.Website))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewValidationError("venue website is not an absolute http(s) URL", "website", v.Website)
	}
	return nil
}

// WithWebsite returns a copy of v pointing at website.
func (v Venue) WithWebsite(website string) Venue {
	v.Website = website
	return v
}

// IsPDF reports whether the website points straight at a PDF document.
func (v Venue) IsPDF() bool {
	return IsPDFURL(v.Website)
}

func IsPDFURL(raw string) bool {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(raw), ".pdf")
}
