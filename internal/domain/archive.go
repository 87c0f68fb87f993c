package domain

import (
	"context"
	"time"
)

// Archiver moves aged historical records into cold object storage. Each
// method archives records last updated before the cutoff and returns the
// number of records written.
type Archiver interface {
	ArchiveMatches(ctx context.Context, before time.Time) (int64, error)
	ArchiveSeries(ctx context.Context, before time.Time) (int64, error)
}
