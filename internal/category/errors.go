package category

import (
	"errors"
	"fmt"
	"strings"
)

// EmptyWarning is shown instead of a chart when the filter left no slices.
const EmptyWarning = "No categories selected or data is empty."

// ErrNothingSelected is the terminal state of a filter that left no slices.
var ErrNothingSelected = errors.New("no categories selected or data is empty")

// SchemaError reports that the category or amount column could not be resolved.
type SchemaError struct {
	Path  string
	Found []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("CSV needs columns like Category/Amount. Found: [%s]", strings.Join(e.Found, ", "))
}

// EmptyResultError reports that no rows survived cleaning.
type EmptyResultError struct {
	Path string
}

func (e *EmptyResultError) Error() string {
	return "After cleaning, no data rows remain. Check your CSV values."
}
