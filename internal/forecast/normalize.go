package forecast

import (
	"fmt"
	"time"

	"github.com/kjstillabower/dataviz-dashboard/internal/client"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

const mmPerInch = 25.4

// fromPayload keeps the first Days entries and converts precipitation to
// inches. A value array that is absent reads as all nil; one that is present
// must match the length of time.
func fromPayload(city string, p client.DailyPayload, fetched time.Time) (models.ForecastDataset, error) {
	n := min(len(p.Time), Days)
	if n == 0 {
		return models.ForecastDataset{}, fmt.Errorf("%w: no forecast days", client.ErrPayloadShape)
	}
	for _, col := range []struct {
		name   string
		values []*float64
	}{
		{"precipitation_sum", p.PrecipitationSum},
		{"precipitation_probability_max", p.PrecipitationProbabilityMax},
		{"temperature_2m_max", p.Temperature2mMax},
		{"temperature_2m_min", p.Temperature2mMin},
	} {
		if col.values != nil && len(col.values) != len(p.Time) {
			return models.ForecastDataset{}, fmt.Errorf("%w: %s has %d values for %d days",
				client.ErrPayloadShape, col.name, len(col.values), len(p.Time))
		}
	}
	days := make([]models.ForecastDay, n)
	for i := 0; i < n; i++ {
		date, err := time.Parse(time.DateOnly, p.Time[i])
		if err != nil {
			return models.ForecastDataset{}, fmt.Errorf("%w: parse date %q: %w", client.ErrPayloadShape, p.Time[i], err)
		}
		days[i] = models.ForecastDay{
			Date:       date,
			PrecipIn:   inches(at(p.PrecipitationSum, i)),
			PrecipProb: at(p.PrecipitationProbabilityMax, i),
			TMax:       at(p.Temperature2mMax, i),
			TMin:       at(p.Temperature2mMin, i),
		}
	}
	return models.ForecastDataset{City: city, Days: days, Fetched: fetched}, nil
}

func at(values []*float64, i int) *float64 {
	if values == nil {
		return nil
	}
	return values[i]
}

func inches(mm *float64) *float64 {
	if mm == nil {
		return nil
	}
	return ptr(*mm / mmPerInch)
}
