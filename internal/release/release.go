// Package release holds the catalog-independent release types and the
// recency filter applied to every artist's discography.
package release

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Release types requested from the catalog.
const (
	TypeAlbum       = "album"
	TypeSingle      = "single"
	TypeCompilation = "compilation"
)

var ErrInvalidDate = errors.New("invalid release date")

// Entry is one item of an artist's discography as returned by the catalog.
type Entry struct {
	ID          string
	Title       string
	Type        string
	ReleaseDate string
	Precision   string
	URL         string
	ImageURL    string
}

// Record is a release that passed the filter and is ready to be announced.
type Record struct {
	ArtistName  string
	ReleaseID   string
	Title       string
	Type        string
	ReleaseDate time.Time
	URL         string
	ImageURL    string
}

// Key identifies the release for deduplication.
func (r Record) Key() string {
	return r.ArtistName + "\x00" + r.ReleaseID
}

// ParseDate parses a catalog release date. Day precision is midnight UTC of
// that day; month and year precision resolve to the first day of the period.
// An empty precision is inferred from the date's shape.
func ParseDate(date, precision string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if precision == "" {
		switch len(date) {
		case 4:
			precision = "year"
		case 7:
			precision = "month"
		default:
			precision = "day"
		}
	}
	var layout string
	switch precision {
	case "day":
		layout = "2006-01-02"
	case "month":
		layout = "2006-01"
	case "year":
		layout = "2006"
	default:
		return time.Time{}, fmt.Errorf("%w: unknown precision %q", ErrInvalidDate, precision)
	}
	t, err := time.ParseInLocation(layout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, date, err)
	}
	return t, nil
}

// Cutoff is the oldest instant a release may carry and still count as new.
func Cutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

// Filter keeps the entries released on or after cutoff. Entries with an
// unparseable date are dropped.
func Filter(entries []Entry, cutoff time.Time) []Entry {
	var kept []Entry
	for _, e := range entries {
		released, err := ParseDate(e.ReleaseDate, e.Precision)
		if err != nil {
			continue
		}
		if !released.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// NewRecord pairs a filtered entry with the roster artist it was found for.
func NewRecord(artistName string, e Entry) (Record, error) {
	released, err := ParseDate(e.ReleaseDate, e.Precision)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ArtistName:  artistName,
		ReleaseID:   e.ID,
		Title:       e.Title,
		Type:        e.Type,
		ReleaseDate: released,
		URL:         e.URL,
		ImageURL:    e.ImageURL,
	}, nil
}
