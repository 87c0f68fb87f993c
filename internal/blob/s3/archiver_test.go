package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lmercier/dotatracker/internal/cache/memory"
	"github.com/lmercier/dotatracker/internal/domain"
)

type captureWriter struct {
	path        string
	contentType string
	data        []byte
	large       bool
}

func (c *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	return c.capture(path, data, contentType, false)
}

func (c *captureWriter) PutLarge(_ context.Context, path string, data io.Reader, contentType string) error {
	return c.capture(path, data, contentType, true)
}

func (c *captureWriter) capture(path string, data io.Reader, contentType string, large bool) error {
	c.path = path
	c.contentType = contentType
	c.large = large
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	c.data = b
	return nil
}

func TestArchiveMatchesWritesJSONL(t *testing.T) {
	ctx := context.Background()
	matches := memory.NewMatchStore()
	old := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"111", "222"} {
		if err := matches.Upsert(ctx, domain.MatchRecord{
			MatchID:   id,
			SeriesID:  "s_111",
			Status:    domain.MatchStatusFinished,
			UpdatedAt: old,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// One recent record must stay out of the archive.
	if err := matches.Upsert(ctx, domain.MatchRecord{
		MatchID:   "333",
		UpdatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	writer := &captureWriter{}
	arch := NewArchiver(writer, matches, memory.NewSeriesStore())

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveMatches(ctx, cutoff)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 archived, got %d", n)
	}
	if writer.path != "archive/matches/2026-06.jsonl" {
		t.Errorf("path: got %s", writer.path)
	}
	if writer.contentType != "application/x-ndjson" {
		t.Errorf("content type: got %s", writer.contentType)
	}
	if !writer.large {
		t.Error("match dumps must go through the multipart path")
	}

	lines := strings.Split(strings.TrimSpace(string(writer.data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	var rec domain.MatchRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line 0 not valid JSON: %v", err)
	}
	if rec.SeriesID != "s_111" {
		t.Errorf("round-trip lost series id: %+v", rec)
	}
	if bytes.Contains(writer.data, []byte("333")) {
		t.Error("recent record leaked into the archive")
	}
}

func TestArchiveSeriesEmptyIsNoop(t *testing.T) {
	writer := &captureWriter{}
	arch := NewArchiver(writer, memory.NewMatchStore(), memory.NewSeriesStore())

	n, err := arch.ArchiveSeries(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 archived, got %d", n)
	}
	if writer.path != "" {
		t.Errorf("no upload expected for empty range, wrote %s", writer.path)
	}
}
