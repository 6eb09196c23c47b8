package models

import "time"

// ForecastDay is one day of the precipitation forecast. Nil pointers mean the
// upstream feed had no value for that field.
type ForecastDay struct {
	Date       time.Time `json:"date"`
	PrecipIn   *float64  `json:"precipIn"`
	PrecipProb *float64  `json:"precipProb"`
	TMax       *float64  `json:"tmax"`
	TMin       *float64  `json:"tmin"`
}

// ForecastDataset is the 14-day series for one city.
type ForecastDataset struct {
	City    string        `json:"city"`
	Days    []ForecastDay `json:"days"`
	Fetched time.Time     `json:"fetched"`
}

// City is a named coordinate pair offered by the city selector.
type City struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}
