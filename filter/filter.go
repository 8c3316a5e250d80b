package filter

import (
	"context"

	"github.com/hb9tf/vnasweep/export"
	"github.com/hb9tf/vnasweep/vna"
)

type Filterer interface {
	ShouldIgnore(*vna.Row) bool
}

// Ignore reports whether any of filters rejects r.
func Ignore(r *vna.Row, filters []Filterer) bool {
	for _, f := range filters {
		if f.ShouldIgnore(r) {
			return true
		}
	}
	return false
}

// Exporter passes on the rows none of Filters ignores.
type Exporter struct {
	export.Exporter
	Filters []Filterer
}

func (e *Exporter) Write(ctx context.Context, r *vna.Row) error {
	if Ignore(r, e.Filters) {
		return nil
	}
	return e.Exporter.Write(ctx, r)
}

// FilterTrace keeps only the listed trace IDs. An empty list keeps all.
type FilterTrace struct {
	IDs []string
}

func (f *FilterTrace) ShouldIgnore(r *vna.Row) bool {
	if len(f.IDs) == 0 {
		return false
	}
	for _, id := range f.IDs {
		if r.Trace == id {
			return false
		}
	}
	return true
}
