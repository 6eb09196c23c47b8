package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when the city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrCityUnknown is returned when the city is not one of the presets.
var ErrCityUnknown = errors.New("unknown city")

var ErrInvalidParam = errors.New("invalid parameter")

const (
	MaxCityLen  = 64
	DefaultHole = 0.3
	MaxHole     = 0.6
)

// ValidateCity trims the input, enforces the allowed characters and resolves it
// against the presets. A preset matches by name (case-insensitive) or by slug.
func ValidateCity(input string, cities []models.City) (models.City, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return models.City{}, ErrCityEmpty
	}
	if len(r) > MaxCityLen {
		return models.City{}, ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return models.City{}, ErrCityInvalidChars
		}
	}
	slug := Slug(s)
	for _, city := range cities {
		if strings.EqualFold(city.Name, s) || Slug(city.Name) == slug {
			return city, nil
		}
	}
	return models.City{}, fmt.Errorf("%w: %q", ErrCityUnknown, s)
}

// Slug lowercases name and joins its alphanumeric runs with hyphens:
// "Colorado Springs, CO" becomes "colorado-springs-co".
func Slug(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, c := range strings.ToLower(name) {
		if unicode.IsLetter(c) || unicode.IsNumber(c) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(c)
			pendingSep = false
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// isAllowedCityRune returns true for letters (Unicode), digits, space, comma, hyphen, period.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.':
		return true
	}
	return false
}

// ParseHole reads the donut hole fraction. Empty means DefaultHole.
func ParseHole(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultHole, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > MaxHole {
		return 0, fmt.Errorf("%w: hole must be a number in [0, %.1f]", ErrInvalidParam, MaxHole)
	}
	return v, nil
}

// ParseBool reads a boolean flag, returning def when s is empty.
func ParseBool(name, s string, def bool) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", ErrInvalidParam, name)
	}
	return v, nil
}

// SelectedCategories returns nil (all categories) when no value was sent.
// Each value may itself be a comma-separated list; blanks are dropped.
func SelectedCategories(values []string, present bool) []string {
	if !present {
		return nil
	}
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
