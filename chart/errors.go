package chart

import (
	"fmt"
	"strings"
)

// ResolutionError reports that the requested columns could not be matched to
// the dataset. Its message is written for direct display to the user: it
// names what was requested, lists what exists, and offers nearest-match
// suggestions. It is never a crash path.
type ResolutionError struct {
	// RequestedX and RequestedY are the column names the spec asked for.
	RequestedX string
	RequestedY string
	// Available is the dataset's real column list.
	Available []string
	// Suggestions holds "did you mean" lines for requested columns that
	// have a fuzzy candidate, even one below the resolution cutoff.
	Suggestions []string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString("Could not find required columns for chart.\n")
	fmt.Fprintf(&b, "Requested: x=%q, y=%q.\n", e.RequestedX, e.RequestedY)
	fmt.Fprintf(&b, "Available columns: [%s].", strings.Join(e.Available, ", "))
	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions: ")
		b.WriteString(strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

// UnsupportedTypeError reports a chart type the resolver does not handle.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported chart type %q", e.Type)
}
