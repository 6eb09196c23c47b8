package category

import (
	"cmp"
	"slices"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

// DefaultTitle is the pie chart title when none is given.
const DefaultTitle = "Budget Allocation by Category"

// Value fields reported by Transform.
const (
	ValueFieldAmount = "Amount"
	ValueFieldShare  = "Share"
)

// Options are the pie page controls that shape the rendered slices.
// A nil Selected means every category; an empty non-nil slice selects none.
type Options struct {
	Selected  []string
	Normalize bool
	Sort      bool
}

// Result is the transformer output. Empty means there is nothing to render.
type Result struct {
	Slices     []models.CategorySlice `json:"slices"`
	Empty      bool                   `json:"empty"`
	ValueField string                 `json:"valueField"`
}

// Transform filters, orders and optionally normalizes ds for rendering.
func Transform(ds models.CategoryDataset, opts Options) Result {
	var keep map[string]struct{}
	if opts.Selected != nil {
		keep = make(map[string]struct{}, len(opts.Selected))
		for _, c := range opts.Selected {
			keep[c] = struct{}{}
		}
	}

	out := make([]models.CategorySlice, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		if keep != nil {
			if _, ok := keep[r.Category]; !ok {
				continue
			}
		}
		out = append(out, models.CategorySlice{Category: r.Category, Amount: r.Amount, Value: r.Amount})
	}
	if len(out) == 0 {
		return Result{Slices: out, Empty: true, ValueField: ValueFieldAmount}
	}

	if opts.Sort {
		slices.SortStableFunc(out, func(a, b models.CategorySlice) int {
			return cmp.Compare(b.Amount, a.Amount)
		})
	}

	field := ValueFieldAmount
	if opts.Normalize {
		var total float64
		for _, s := range out {
			total += s.Amount
		}
		if total > 0 {
			field = ValueFieldShare
			for i := range out {
				share := out[i].Amount / total * 100
				out[i].Share = &share
				out[i].Value = share
			}
		}
	}
	return Result{Slices: out, ValueField: field}
}
