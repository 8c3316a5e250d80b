package vna

import (
	"errors"
	"fmt"
)

var ErrWindowOutOfRange = errors.New("frequency window not within sweep range")

// Window is a frequency sub-range in GHz. Start == End selects a single point.
type Window struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

func (w Window) String() string {
	return FormatGHz(w.Start) + "-" + FormatGHz(w.End)
}

// Resolve maps w onto axis and returns the inclusive index range.
// The start index is the first point at or above w.Start. The stop index is
// the point equal to w.End or, failing that, the last point below it.
// Persisted files are keyed by this choice of bins.
func Resolve(axis Axis, w Window) (int, int, error) {
	if len(axis) == 0 {
		return 0, 0, fmt.Errorf("%w: empty frequency axis", ErrWindowOutOfRange)
	}
	if w.Start > w.End {
		return 0, 0, fmt.Errorf("%w: start %s above end %s", ErrWindowOutOfRange, FormatGHz(w.Start), FormatGHz(w.End))
	}
	first, last := axis[0], axis[len(axis)-1]
	if w.Start < first || w.End > last {
		return 0, 0, fmt.Errorf("%w: window %s outside sweep %s-%s", ErrWindowOutOfRange, w, FormatGHz(first), FormatGHz(last))
	}

	start, stop := -1, -1
	for i, f := range axis {
		if start < 0 && f >= w.Start {
			start = i
		}
		if f == w.End {
			stop = i
			break
		}
		if f > w.End {
			stop = i - 1
			break
		}
	}
	if start < 0 || stop < start {
		return 0, 0, fmt.Errorf("%w: window %s contains no sweep point", ErrWindowOutOfRange, w)
	}
	return start, stop, nil
}
