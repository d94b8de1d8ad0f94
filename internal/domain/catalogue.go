package domain

// Catalogue is the distributor's flat list of product names.
type Catalogue []string

// NewCatalogue de-duplicates names and sorts them.
func NewCatalogue(names []string) Catalogue {
	return Catalogue(UniqueSorted(names))
}
