package builder

import "errors"

// ErrBudgetTooSmall matches every FatalConfigError via errors.Is.
var ErrBudgetTooSmall = errors.New("builder: byte budget too small")

// errOutOfSpace drives batch boundaries and never leaves the package.
var errOutOfSpace = errors.New("builder: out of space")

const (
	reasonExperimentID = "byte budget too small for experiment ID"
	reasonNoProgress   = "could not make progress uploading data"
)

// FatalConfigError reports that the byte budget cannot hold the smallest
// possible unit of work. Retrying cannot help.
type FatalConfigError struct {
	Reason   string
	Run      string
	Tag      string
	MaxBytes int
}

func (e *FatalConfigError) Error() string {
	if e.Run == "" && e.Tag == "" {
		return "builder: " + e.Reason
	}
	return "builder: " + e.Reason + " (run " + quote(e.Run) + ", tag " + quote(e.Tag) + ")"
}

func (e *FatalConfigError) Is(target error) bool {
	return target == ErrBudgetTooSmall
}

// quote shortens very long names so the error stays readable.
func quote(s string) string {
	const max = 64
	if len(s) > max {
		s = s[:max] + "..."
	}
	return `"` + s + `"`
}
