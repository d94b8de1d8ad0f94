package dashboard

// Row is one line of the two-column product table.
type Row struct {
	Left  string
	Right string
}

// TwoColumn lays products out top-to-bottom in two columns. The first column holds
// ceil(n/2) products; the second is padded with "" to the same length.
func TwoColumn(products []string) []Row {
	rows := (len(products) + 1) / 2
	table := make([]Row, rows)
	for i := range table {
		table[i].Left = products[i]
		if j := rows + i; j < len(products) {
			table[i].Right = products[j]
		}
	}
	return table
}
