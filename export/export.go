package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/hb9tf/vnasweep/vna"
)

var ErrPersistence = errors.New("persisting measurement failed")

type Exporter interface {
	Write(context.Context, *vna.Row) error
	Close() error
}

// Multi writes every row to all exporters. A failure in any of them fails
// the write; the others still receive the row.
type Multi []Exporter

func (m Multi) Write(ctx context.Context, row *vna.Row) error {
	var errs *multierror.Error
	for _, e := range m {
		if err := e.Write(ctx, row); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	return nil
}

func (m Multi) Close() error {
	var errs *multierror.Error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
