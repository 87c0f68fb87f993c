package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only needs
// the time-ranged query methods it actually calls, not the full store
// interfaces; the Postgres stores satisfy these implicitly.

// MatchArchiveStore provides read access to historical matches for archival.
type MatchArchiveStore interface {
	// ListBefore returns all matches last updated strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.MatchRecord, error)
}

// SeriesArchiveStore provides read access to historical series for archival.
type SeriesArchiveStore interface {
	// ListBefore returns all series last updated strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Series, error)
}

// ArchiveImpl implements domain.Archiver by querying the historical stores
// for old records, serializing them to JSONL, and uploading the result to
// S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	matches MatchArchiveStore
	series  SeriesArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, matches MatchArchiveStore, series SeriesArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		matches: matches,
		series:  series,
	}
}

// ArchiveMatches queries all historical matches before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/matches/YYYY-MM.jsonl. The count of archived records is returned.
func (a *ArchiveImpl) ArchiveMatches(ctx context.Context, before time.Time) (int64, error) {
	matches, err := a.matches.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive matches query: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(matches)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive matches marshal: %w", err)
	}

	// Match dumps grow with the month; stream them in parts.
	path := archivePath("matches", before)
	if err := a.writer.PutLarge(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive matches upload: %w", err)
	}

	return int64(len(matches)), nil
}

// ArchiveSeries queries all historical series before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/series/YYYY-MM.jsonl.
// The count of archived records is returned.
func (a *ArchiveImpl) ArchiveSeries(ctx context.Context, before time.Time) (int64, error) {
	seriesList, err := a.series.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive series query: %w", err)
	}
	if len(seriesList) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(seriesList)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive series marshal: %w", err)
	}

	path := archivePath("series", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive series upload: %w", err)
	}

	return int64(len(seriesList)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/matches/2026-08.jsonl
//	archive/series/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
