package export

// Column describes one field of a Dataset. Width is a relative weight used by the PDF
// renderer; zero counts as one.
type Column struct {
	Key   string
	Label string
	Width float64
}

// Dataset is tabular export content.
type Dataset struct {
	Title   string
	Notes   []string
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) labels() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.Label
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}
