package processor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"hatsubai/internal/catalog"
	"hatsubai/internal/release"
	"hatsubai/internal/util"
)

// Finder looks an artist up in the catalog and lists their recent releases.
type Finder interface {
	FindArtistAndReleases(ctx context.Context, name string) (catalog.Artist, []release.Entry, error)
}

// loggerSwapper is implemented by finders whose chatter can be silenced for
// quiet runs.
type loggerSwapper interface {
	GetLogger() *log.Logger
	SetLogger(*log.Logger)
}

// ProcessArtist checks one roster artist and returns the releases at or after
// cutoff. In quiet runs nothing is logged unless something was found or
// failed. didLog reports whether the artist's header line was printed.
func ProcessArtist(ctx context.Context, name string, finder Finder, cutoff time.Time, quiet bool) (records []release.Record, didLog bool, err error) {
	if swapper, ok := finder.(loggerSwapper); ok && quiet {
		original := swapper.GetLogger()
		swapper.SetLogger(catalog.NilLogger)
		defer swapper.SetLogger(original)
	}

	printHeaderOnce := func() {
		if !didLog {
			log.Println()
			log.Printf("  %s%s", util.BlueBold("Checking: "), name)
			didLog = true
		}
	}
	logOwnLine := func(forcePrint bool, format string, args ...interface{}) {
		if !quiet || forcePrint {
			printHeaderOnce()
			log.Printf(format, args...)
		}
	}

	if strings.TrimSpace(name) == "" {
		return nil, didLog, fmt.Errorf("empty artist name")
	}
	if !quiet {
		printHeaderOnce()
	}

	artist, entries, err := finder.FindArtistAndReleases(ctx, name)
	if err != nil {
		return nil, didLog, err
	}

	recent := release.Filter(entries, cutoff)
	if len(recent) == 0 {
		logOwnLine(false, "  %s No releases since %s (%d checked).",
			util.Green("[FILTER]"), cutoff.Format("2006-01-02"), len(entries))
		return nil, didLog, nil
	}

	for _, e := range recent {
		rec, err := release.NewRecord(name, e)
		if err != nil {
			continue
		}
		records = append(records, rec)
		logOwnLine(true, "  %s %s %s (%s, %s)",
			util.Purple("[FILTER]"), util.GreenBold("New:"),
			util.Blue(fmt.Sprintf("'%s'", rec.Title)),
			rec.Type, rec.ReleaseDate.Format("2006-01-02"))
	}
	if artist.Name != "" && artist.Name != name {
		logOwnLine(false, "  %s Matched as %s.", util.Cyan("[SPOTIFY]"), util.Blue(fmt.Sprintf("'%s'", artist.Name)))
	}
	return records, didLog, nil
}
