package render

import (
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

const (
	forecastWidth  = 900
	forecastHeight = 480
)

var (
	precipColor = drawing.ColorFromHex("1f77b4")
	probColor   = drawing.ColorFromHex("ff7f0e")
)

// Forecast draws precipitation (in) as a filled area on the left axis and
// probability (%) as a line on a right axis fixed to 0-100. Days missing a
// value are left out of that series only.
func Forecast(w io.Writer, format Format, title string, ds models.ForecastDataset) error {
	precipX, precipY := points(ds.Days, func(d models.ForecastDay) *float64 { return d.PrecipIn })
	probX, probY := points(ds.Days, func(d models.ForecastDay) *float64 { return d.PrecipProb })
	if len(precipX) == 0 && len(probX) == 0 {
		return ErrNoData
	}

	var series []chart.Series
	if len(precipX) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Precip (in)",
			XValues: precipX,
			YValues: precipY,
			Style: chart.Style{
				StrokeColor: precipColor,
				StrokeWidth: 2,
				FillColor:   precipColor.WithAlpha(80),
			},
		})
	}
	if len(probX) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Precip Prob (%)",
			YAxis:   chart.YAxisSecondary,
			XValues: probX,
			YValues: probY,
			Style: chart.Style{
				StrokeColor: probColor,
				StrokeWidth: 2,
				DotColor:    probColor,
				DotWidth:    3,
			},
		})
	}

	ch := chart.Chart{
		Title:      title,
		Width:      forecastWidth,
		Height:     forecastHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("Jan 02"),
		},
		YAxis: chart.YAxis{
			Name:  "Precip (in)",
			Range: &chart.ContinuousRange{Min: 0, Max: precipCeiling(precipY)},
		},
		YAxisSecondary: chart.YAxis{
			Name:  "Precip Prob (%)",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return renderTo(w, format, ch)
}

// points collects the days that have a value. go-chart needs two X values
// to size an axis, so a lone point is padded to a flat one-day segment.
func points(days []models.ForecastDay, field func(models.ForecastDay) *float64) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for _, d := range days {
		if v := field(d); v != nil {
			xs = append(xs, d.Date)
			ys = append(ys, *v)
		}
	}
	if len(xs) == 1 {
		xs = append(xs, xs[0].Add(24*time.Hour))
		ys = append(ys, ys[0])
	}
	return xs, ys
}

func precipCeiling(ys []float64) float64 {
	ceiling := 0.1
	for _, y := range ys {
		if y*1.2 > ceiling {
			ceiling = y * 1.2
		}
	}
	return ceiling
}
