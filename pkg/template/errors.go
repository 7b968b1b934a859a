package template

import (
	"errors"
	"strings"
)

// ResolutionWarning lists placeholders that rendered as empty strings.
// The output returned alongside it is still complete.
type ResolutionWarning struct {
	Placeholders []string
}

func (w *ResolutionWarning) Error() string {
	return "unresolved template placeholders: " + strings.Join(w.Placeholders, ", ")
}

// IsResolutionWarning reports whether err is or wraps a *ResolutionWarning.
func IsResolutionWarning(err error) bool {
	var w *ResolutionWarning
	return errors.As(err, &w)
}
