// Package console renders terminal previews of the dashboard pages.
package console

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/kjstillabower/dataviz-dashboard/internal/category"
	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

const barWidth = 30

// CategoryTable renders the transformed slices with a proportional bar per row.
func CategoryTable(res category.Result) (string, error) {
	if res.Empty {
		return "", category.ErrNothingSelected
	}
	maxValue := 0.0
	for _, s := range res.Slices {
		maxValue = max(maxValue, s.Value)
	}

	data := pterm.TableData{{"Category", "Amount", res.ValueField, ""}}
	for _, s := range res.Slices {
		bar := ""
		if maxValue > 0 {
			bar = strings.Repeat("█", int(s.Value/maxValue*barWidth))
		}
		data = append(data, []string{
			s.Category,
			formatFloat(s.Amount),
			valueCell(s),
			pterm.FgBlue.Sprint(bar),
		})
	}
	return renderTable(data)
}

func valueCell(s models.CategorySlice) string {
	if s.Share != nil {
		return fmt.Sprintf("%.1f%%", *s.Share)
	}
	return formatFloat(s.Value)
}

// ForecastTable renders one row per day. Missing values print as n/a.
func ForecastTable(res forecast.Result) (string, error) {
	data := pterm.TableData{{"Date", "Precip (in)", "Precip Prob (%)", "High", "Low"}}
	for _, d := range res.Dataset.Days {
		data = append(data, []string{
			d.Date.Format("Mon Jan 02"),
			optional(d.PrecipIn, "%.2f"),
			optional(d.PrecipProb, "%.0f"),
			optional(d.TMax, "%.0f"),
			optional(d.TMin, "%.0f"),
		})
	}
	table, err := renderTable(data)
	if err != nil {
		return "", err
	}
	title := res.Dataset.City
	if res.IsFallback() {
		title += " (demo data)"
	}
	return pterm.DefaultBox.WithTitle(title).WithBoxStyle(pterm.NewStyle(pterm.FgCyan)).Sprint(table), nil
}

// BioPanel renders the profile as a boxed block.
func BioPanel(bio models.Bio) string {
	var b strings.Builder
	b.WriteString(pterm.Bold.Sprint(bio.Program))
	b.WriteString("\n\n")
	b.WriteString(bio.Intro)
	if len(bio.FunFacts) > 0 {
		b.WriteString("\n\n")
		b.WriteString(pterm.FgYellow.Sprint("Fun facts"))
		for _, f := range bio.FunFacts {
			b.WriteString("\n- ")
			b.WriteString(f)
		}
	}
	if !bio.PhotoAvailable && bio.PhotoHint != "" {
		b.WriteString("\n\n")
		b.WriteString(pterm.FgGray.Sprint(bio.PhotoHint))
	}
	return pterm.DefaultBox.WithTitle(bio.Name).Sprint(b.String())
}

func renderTable(data pterm.TableData) (string, error) {
	out, err := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	if err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return out, nil
}

func optional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func formatFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
