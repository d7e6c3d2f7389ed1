// Package roster loads the set of tracked artist names from spreadsheet
// exports. Rows are read loosely: the header is skipped, blank lines are
// ignored, and a single column holds a comma-separated list of artists.
package roster

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hatsubai/internal/util"
)

var NilLogger = log.New(io.Discard, "", 0)

// placeholder written by the sheet for empty artist cells
const placeholder = "undefined"

// Roster is the deduplicated set of tracked artist names. It is not modified
// after Load returns.
type Roster struct {
	names map[string]struct{}
}

func New(names ...string) *Roster {
	r := &Roster{names: make(map[string]struct{})}
	for _, n := range names {
		r.add(n)
	}
	return r
}

func (r *Roster) add(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == placeholder {
		return false
	}
	if _, ok := r.names[name]; ok {
		return false
	}
	r.names[name] = struct{}{}
	return true
}

func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Contains matches case-sensitively, as stored.
func (r *Roster) Contains(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.names[name]
	return ok
}

// Names returns a sorted copy of the tracked names.
func (r *Roster) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Load reads every file in paths and collects the names found in the given
// zero-based column. Unreadable files are logged and skipped.
func Load(paths []string, column int, logger *log.Logger) *Roster {
	if logger == nil {
		logger = NilLogger
	}
	r := New()
	for _, path := range paths {
		rows, err := readRows(path)
		if err != nil {
			logger.Printf("  %s Could not read roster file %s: %v", util.RedBold("!!! ERROR [ROSTER]"), util.Yellow(path), err)
			continue
		}
		added := r.addRows(rows, column)
		logger.Printf("  %s %s: %s rows, %s new artists.",
			util.Cyan("[ROSTER]"), util.Blue(path),
			util.Green(fmt.Sprint(len(rows))), util.GreenBold(fmt.Sprint(added)))
	}
	logger.Printf("  %s Tracking %s.", util.Cyan("[ROSTER]"), util.GreenBold(util.Plural(r.Len(), "artist", "artists")))
	return r
}

func (r *Roster) addRows(rows [][]string, column int) int {
	added := 0
	for _, fields := range rows {
		if len(fields) <= column {
			continue
		}
		for _, name := range strings.Split(fields[column], ",") {
			if r.add(name) {
				added++
			}
		}
	}
	return added
}

// readRows returns the data rows of a roster file with the header removed.
func readRows(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return parseHTML(strings.NewReader(string(data)))
	default:
		return parseDelimited(string(data)), nil
	}
}

func parseDelimited(content string) [][]string {
	var rows [][]string
	for i, line := range strings.Split(content, "\n") {
		if i == 0 {
			continue
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, SplitRow(line))
	}
	return rows
}

// SplitRow splits one comma-separated line. A double quote toggles quoting and
// is dropped; commas inside quotes are kept. Fields are trimmed.
func SplitRow(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}
