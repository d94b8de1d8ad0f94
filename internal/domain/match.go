package domain

import "sort"

// ProductMatches maps a venue name to the catalogue products matched to it.
type ProductMatches map[string][]string

// Merge copies other into m. A venue already present is overwritten by the later
// entry; the overwritten names are returned so callers can report them.
func (m ProductMatches) Merge(other ProductMatches) []string {
	var overwritten []string
	for venue, products := range other {
		if _, ok := m[venue]; ok {
			overwritten = append(overwritten, venue)
		}
		if products == nil {
			products = []string{}
		}
		m[venue] = products
	}
	sort.Strings(overwritten)
	return overwritten
}

// VenueNames returns the venue names in sorted order.
func (m ProductMatches) VenueNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
