package forecast

import (
	"errors"

	"github.com/kjstillabower/dataviz-dashboard/internal/client"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

// FetchError records why live data could not be used. Category and Cause
// survive a trip through a shared cache; the wrapped error does not.
type FetchError struct {
	Category client.ErrorCategory `json:"category"`
	Cause    string               `json:"cause"`
	err      error
}

func newFetchError(err error) *FetchError {
	return &FetchError{Category: client.CategorizeError(err), Cause: err.Error(), err: err}
}

func (e *FetchError) Error() string { return e.Cause }

func (e *FetchError) Unwrap() error { return e.err }

// Result is either live data or demo data with the failure that caused it.
type Result struct {
	Dataset models.ForecastDataset `json:"dataset"`
	Err     *FetchError            `json:"error,omitempty"`
}

// Live wraps a dataset fetched from the API.
func Live(ds models.ForecastDataset) Result {
	return Result{Dataset: ds}
}

// Fallback wraps demo data served because of err.
func Fallback(ds models.ForecastDataset, err error) Result {
	var fe *FetchError
	if !errors.As(err, &fe) {
		fe = newFetchError(err)
	}
	return Result{Dataset: ds, Err: fe}
}

// IsFallback reports whether the dataset is demo data.
func (r Result) IsFallback() bool { return r.Err != nil }

// Warning is the banner shown above a fallback chart, or "" for live data.
func (r Result) Warning() string {
	if r.Err == nil {
		return ""
	}
	return "API error (showing demo data): " + r.Err.Cause
}

// ChartTitle is the forecast chart heading for city.
func ChartTitle(city string) string {
	return city + " - 14-Day Precipitation Forecast"
}
