package processor

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"hatsubai/internal/catalog"
	"hatsubai/internal/release"
)

type stubFinder struct {
	entries []release.Entry
	err     error
	logger  *log.Logger
	seen    *log.Logger
}

func (s *stubFinder) FindArtistAndReleases(_ context.Context, name string) (catalog.Artist, []release.Entry, error) {
	s.seen = s.logger
	if s.err != nil {
		return catalog.Artist{}, nil, s.err
	}
	return catalog.Artist{ID: "id-" + name, Name: name}, s.entries, nil
}

func (s *stubFinder) GetLogger() *log.Logger  { return s.logger }
func (s *stubFinder) SetLogger(l *log.Logger) { s.logger = l }

func init() {
	log.SetOutput(io.Discard)
}

var cutoff = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func TestProcessArtistFindsRecentReleases(t *testing.T) {
	finder := &stubFinder{entries: []release.Entry{
		{ID: "new", Title: "Yesterday's Single", Type: "single", ReleaseDate: "2026-10-18", Precision: "day"},
		{ID: "old", Title: "Last Year", Type: "album", ReleaseDate: "2025-10-18", Precision: "day"},
	}}

	records, didLog, err := ProcessArtist(context.Background(), "X", finder, cutoff, false)
	if err != nil {
		t.Fatalf("ProcessArtist() error = %v", err)
	}
	if !didLog {
		t.Error("verbose runs should log the artist header")
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.ArtistName != "X" || rec.ReleaseID != "new" || rec.Title != "Yesterday's Single" || rec.Type != "single" {
		t.Errorf("record = %+v", rec)
	}
}

func TestProcessArtistQuietRun(t *testing.T) {
	original := log.New(io.Discard, "original", 0)
	finder := &stubFinder{logger: original}

	records, didLog, err := ProcessArtist(context.Background(), "X", finder, cutoff, true)
	if err != nil || len(records) != 0 {
		t.Fatalf("ProcessArtist() = %v, %v", records, err)
	}
	if didLog {
		t.Error("quiet run with nothing found should not log")
	}
	if finder.seen != catalog.NilLogger {
		t.Error("finder logger should be silenced during a quiet run")
	}
	if finder.logger != original {
		t.Error("finder logger should be restored after the run")
	}
}

func TestProcessArtistError(t *testing.T) {
	finder := &stubFinder{err: catalog.ErrArtistNotFound}

	_, _, err := ProcessArtist(context.Background(), "Nobody", finder, cutoff, true)
	if !errors.Is(err, catalog.ErrArtistNotFound) {
		t.Errorf("ProcessArtist() error = %v, want ErrArtistNotFound", err)
	}
}

func TestProcessArtistEmptyName(t *testing.T) {
	if _, _, err := ProcessArtist(context.Background(), " ", &stubFinder{}, cutoff, false); err == nil {
		t.Error("empty name should be rejected")
	}
}
