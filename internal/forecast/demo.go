package forecast

import (
	"time"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

// Days is the number of forecast rows shown.
const Days = 14

var (
	demoPrecipIn = [Days]float64{0.0, 0.02, 0.08, 0.0, 0.04, 0.15, 0.03, 0.0, 0.12, 0.05, 0.0, 0.1, 0.01, 0.0}
	demoProb     = [Days]float64{5, 20, 60, 10, 35, 80, 40, 15, 75, 45, 10, 70, 25, 5}
	demoTMax     = [Days]float64{65, 67, 63, 70, 72, 60, 66, 68, 58, 62, 71, 61, 66, 68}
	demoTMin     = [Days]float64{42, 44, 46, 48, 45, 40, 42, 43, 38, 40, 46, 41, 42, 44}
)

// Demo returns the fixed fallback series for city, dated from now's calendar day.
func Demo(city string, now time.Time) models.ForecastDataset {
	start := calendarDay(now)
	days := make([]models.ForecastDay, Days)
	for i := range days {
		days[i] = models.ForecastDay{
			Date:       start.AddDate(0, 0, i),
			PrecipIn:   ptr(demoPrecipIn[i]),
			PrecipProb: ptr(demoProb[i]),
			TMax:       ptr(demoTMax[i]),
			TMin:       ptr(demoTMin[i]),
		}
	}
	return models.ForecastDataset{City: city, Days: days, Fetched: now}
}

// calendarDay returns midnight UTC of t's local date, the same form dates
// parsed from the API take.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 { return &v }
