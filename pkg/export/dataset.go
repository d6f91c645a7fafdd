package export

// Dataset is a table of string cells in header order.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// Append adds a row. Missing trailing cells are left empty and extra values are dropped.
func (d *Dataset) Append(values ...string) {
	row := make([]string, len(d.Headers))
	copy(row, values)
	d.Rows = append(d.Rows, row)
}

// Column returns the index of header, or -1.
func (d Dataset) Column(header string) int {
	for i, h := range d.Headers {
		if h == header {
			return i
		}
	}
	return -1
}
