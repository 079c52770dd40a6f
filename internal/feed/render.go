package feed

import (
	"fmt"
	"io"
	"time"

	"github.com/coffersTech/uploadlog/internal/model"
)

// Placeholder is what an empty view shows.
const Placeholder = "No recent uploads"

const displayLayout = "2006-01-02 15:04:05"

// Line is one rendered row.
type Line struct {
	Key         string
	ID          int64
	Name        string
	When        string
	Provisional bool
	Placeholder bool
}

// Render projects the view into display lines. It never mutates the feed.
// Timestamps are shown in loc; ones that do not parse are shown verbatim.
func (f *Feed) Render(loc *time.Location) []Line {
	if len(f.entries) == 0 {
		return []Line{{Name: Placeholder, Placeholder: true}}
	}
	if loc == nil {
		loc = time.UTC
	}

	lines := make([]Line, 0, len(f.entries))
	for _, e := range f.entries {
		when := e.Record.Timestamp
		if t, ok := model.ParseTimestamp(when); ok {
			when = t.In(loc).Format(displayLayout)
		}
		lines = append(lines, Line{
			Key:         e.Key,
			ID:          e.Record.ID,
			Name:        e.Record.Name,
			When:        when,
			Provisional: e.Provisional,
		})
	}
	return lines
}

// Write prints lines as a plain text table.
func Write(w io.Writer, lines []Line) error {
	for _, l := range lines {
		var err error
		switch {
		case l.Placeholder:
			_, err = fmt.Fprintln(w, l.Name)
		case l.Provisional:
			_, err = fmt.Fprintf(w, "%-15s  %-19s  %s (pending)\n", "-", l.When, l.Name)
		default:
			_, err = fmt.Fprintf(w, "%-15d  %-19s  %s\n", l.ID, l.When, l.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
