package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

func slicesOf(pairs ...any) []models.CategorySlice {
	var out []models.CategorySlice
	for i := 0; i < len(pairs); i += 2 {
		v := pairs[i+1].(float64)
		out = append(out, models.CategorySlice{Category: pairs[i].(string), Amount: v, Value: v})
	}
	return out
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatSVG, false},
		{"svg", FormatSVG, false},
		{"PNG", FormatPNG, false},
		{"gif", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Equal(t, "image/svg+xml", FormatSVG.ContentType())
}

func TestPie(t *testing.T) {
	tests := []struct {
		name   string
		hole   float64
		format Format
	}{
		{"pie svg", 0, FormatSVG},
		{"donut svg", 0.3, FormatSVG},
		{"pie png", 0, FormatPNG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Pie(&buf, tt.format, "Budget", slicesOf("Satellite", 28.0, "SDA", 19.0), tt.hole)
			require.NoError(t, err)
			if tt.format == FormatPNG {
				assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
			} else {
				assert.Contains(t, buf.String(), "<svg")
				assert.Contains(t, buf.String(), "Satellite")
			}
		})
	}
}

func TestPie_NoData(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, errors.Is(Pie(&buf, FormatSVG, "", nil, 0), ErrNoData))
	assert.True(t, errors.Is(Pie(&buf, FormatSVG, "", slicesOf("a", 0.0), 0), ErrNoData))
}

func TestPieValues_Labels(t *testing.T) {
	values, err := pieValues(slicesOf("Satellite", 28.0, "Launch Vehicle", 22.0))
	require.NoError(t, err)
	assert.Equal(t, "Satellite 56.0%", values[0].Label)
	assert.Equal(t, "Launch Vehicle 44.0%", values[1].Label)
}

func forecastDays(n int) models.ForecastDataset {
	start := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	ds := models.ForecastDataset{City: "Denver, CO"}
	for i := 0; i < n; i++ {
		p, prob := float64(i)/100, float64(i*7)
		ds.Days = append(ds.Days, models.ForecastDay{Date: start.AddDate(0, 0, i), PrecipIn: &p, PrecipProb: &prob})
	}
	return ds
}

func TestForecast(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Forecast(&buf, FormatSVG, "Denver, CO", forecastDays(14)))
	assert.True(t, strings.Contains(buf.String(), "<svg"))
	assert.Contains(t, buf.String(), "Precip")
}

func TestForecast_MissingValues(t *testing.T) {
	ds := forecastDays(5)
	ds.Days[1].PrecipIn = nil
	ds.Days[3].PrecipProb = nil

	var buf bytes.Buffer
	require.NoError(t, Forecast(&buf, FormatPNG, "", ds))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestForecast_SingleDay(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Forecast(&buf, FormatSVG, "", forecastDays(1)))
}

func TestForecast_NoData(t *testing.T) {
	ds := forecastDays(3)
	for i := range ds.Days {
		ds.Days[i].PrecipIn = nil
		ds.Days[i].PrecipProb = nil
	}
	var buf bytes.Buffer
	assert.True(t, errors.Is(Forecast(&buf, FormatSVG, "", ds), ErrNoData))
}

func TestPoints_PadsSinglePoint(t *testing.T) {
	xs, ys := points(forecastDays(1).Days, func(d models.ForecastDay) *float64 { return d.PrecipProb })
	require.Len(t, xs, 2)
	assert.Equal(t, 24*time.Hour, xs[1].Sub(xs[0]))
	assert.Equal(t, ys[0], ys[1])
}
