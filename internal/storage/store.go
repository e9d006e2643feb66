package storage

import (
	"context"

	"github.com/cockroachdb/errors"

	"semq/internal/analysis"
)

// ErrNotFound is returned when no report matches a lookup.
var ErrNotFound = errors.New("report not found")

// Store combines report and name storage capabilities.
type Store interface {
	ReportStore
	NameStore
	Close() error
}

// ReportStore persists analysis reports, one snapshot per package directory.
type ReportStore interface {
	// SaveReport replaces the stored snapshot of the report's directory.
	SaveReport(ctx context.Context, r *analysis.Report) error

	// LoadReport returns the snapshot stored for a directory or package name.
	LoadReport(ctx context.Context, key string) (*analysis.Report, error)

	// Packages lists the stored snapshots.
	Packages(ctx context.Context) ([]PackageSummary, error)
}

// NameStore persists allocated short names so they stay stable across runs.
type NameStore interface {
	// SaveNames records names not stored yet. Stored names are never changed.
	SaveNames(ctx context.Context, names []analysis.Name) error

	// LoadNames returns the stored names in allocation order.
	LoadNames(ctx context.Context) ([]analysis.Name, error)
}

// PackageSummary is one stored snapshot.
type PackageSummary struct {
	Dir             string
	Package         string
	SmartCasts      int
	Representations int
	Diagnostics     int
}
