package browser

import (
	"fmt"
	"strings"
)

// Warnings collects failures that were absorbed so an operation could carry
// on with whatever state the page reached.
type Warnings []string

// Addf records a formatted warning.
func (w *Warnings) Addf(format string, args ...interface{}) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

// Add records err with a short description of the step that failed.
// A nil error is ignored.
func (w *Warnings) Add(step string, err error) {
	if err == nil {
		return
	}
	*w = append(*w, fmt.Sprintf("%s: %v", step, err))
}

// Merge appends the warnings of another operation.
func (w *Warnings) Merge(other Warnings) {
	*w = append(*w, other...)
}

// Empty reports whether nothing was absorbed.
func (w Warnings) Empty() bool {
	return len(w) == 0
}

func (w Warnings) String() string {
	return strings.Join(w, "; ")
}
