package render

import (
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

const (
	pieSize = 600
	// MaxHole is the largest donut hole accepted from the page slider.
	MaxHole = 0.6
)

// Pie draws slices as a pie, or as a donut when hole > 0. go-chart's donut
// has a fixed inner radius, so hole only selects the style.
func Pie(w io.Writer, format Format, title string, slices []models.CategorySlice, hole float64) error {
	values, err := pieValues(slices)
	if err != nil {
		return err
	}
	if hole > 0 {
		return renderTo(w, format, chart.DonutChart{
			Title:  title,
			Width:  pieSize,
			Height: pieSize,
			Values: values,
		})
	}
	return renderTo(w, format, chart.PieChart{
		Title:  title,
		Width:  pieSize,
		Height: pieSize,
		Values: values,
	})
}

// pieValues labels each slice with its category and percentage of the total.
func pieValues(slices []models.CategorySlice) ([]chart.Value, error) {
	var total float64
	for _, s := range slices {
		total += s.Value
	}
	if len(slices) == 0 || total <= 0 {
		return nil, ErrNoData
	}
	values := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s %.1f%%", s.Category, s.Value/total*100),
			Value: s.Value,
		})
	}
	return values, nil
}
