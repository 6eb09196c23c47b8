package models

// CategoryRow is one cleaned row of a category dataset.
type CategoryRow struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// CategoryDataset is the normalized output of the category loader.
// Demo is true when the source file was absent and the preset rows were used.
type CategoryDataset struct {
	Source string        `json:"source"`
	Demo   bool          `json:"demo"`
	Rows   []CategoryRow `json:"rows"`
}

// Categories returns the category names in row order.
func (d CategoryDataset) Categories() []string {
	out := make([]string, 0, len(d.Rows))
	for _, r := range d.Rows {
		out = append(out, r.Category)
	}
	return out
}

// CategorySlice is a transformed row ready for the pie renderer.
// Value is the share when normalized, otherwise the raw amount.
type CategorySlice struct {
	Category string   `json:"category"`
	Amount   float64  `json:"amount"`
	Share    *float64 `json:"share,omitempty"`
	Value    float64  `json:"value"`
}
