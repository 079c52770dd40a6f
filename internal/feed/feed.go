// Package feed keeps a client-side view of the record list consistent with
// the server while optimistic inserts, polls and deletes interleave.
package feed

import (
	"github.com/google/uuid"

	"github.com/coffersTech/uploadlog/internal/model"
)

// Entry is one row of the view. Provisional entries were rendered locally
// before the server assigned an id; their Record.ID is zero.
type Entry struct {
	Key         string
	Record      model.Record
	Provisional bool
}

// Feed is the view-model. It is not safe for concurrent use; Reconciler
// serializes access to it.
type Feed struct {
	entries  []Entry // newest first
	lastSeen int64
	seen     bool
	removed  map[int64]bool // deleted ids; later lists never bring them back
}

func New() *Feed {
	return &Feed{removed: make(map[int64]bool)}
}

// LastSeenID is the newest id merged into the view. ok is false until the
// first non-empty load.
func (f *Feed) LastSeenID() (id int64, ok bool) {
	return f.lastSeen, f.seen
}

// Entries returns a copy of the view, newest first.
func (f *Feed) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

func (f *Feed) Len() int {
	return len(f.entries)
}

// Contains reports whether a confirmed entry with id is in the view.
func (f *Feed) Contains(id int64) bool {
	return f.indexOf(id) >= 0
}

// Optimistic puts a provisional entry at the head and returns its key.
func (f *Feed) Optimistic(rec model.NewRecord) string {
	key := "local-" + uuid.NewString()
	f.entries = append([]Entry{{
		Key:         key,
		Provisional: true,
		Record: model.Record{
			Name:      rec.Name,
			Timestamp: rec.Timestamp,
			Meta:      model.CleanMeta(rec.Meta),
		},
	}}, f.entries...)
	return key
}

// Confirm binds the provisional entry key to the record the server stored
// and moves it to its place in id order. If a poll already brought that
// record in, the provisional entry is dropped instead. It reports whether
// the view changed.
func (f *Feed) Confirm(key string, rec model.Record) bool {
	i := f.indexOfKey(key)
	if i < 0 {
		return false
	}
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	if f.Contains(rec.ID) || f.removed[rec.ID] {
		return true
	}

	at := len(f.entries)
	for j, e := range f.entries {
		if !e.Provisional && e.Record.ID < rec.ID {
			at = j
			break
		}
	}
	f.entries = append(f.entries[:at], append([]Entry{confirmed(rec)}, f.entries[at:]...)...)
	return true
}

// Load replaces the view with records and moves the cursor to the newest
// of them. Provisional entries that none of the records account for stay
// at the head.
func (f *Feed) Load(records []model.Record) {
	entries := make([]Entry, 0, len(records))
	for _, e := range f.entries {
		if e.Provisional && !accountedFor(e, records) {
			entries = append(entries, e)
		}
	}
	shown := make(map[int64]bool, len(records))
	for _, rec := range records {
		if shown[rec.ID] || f.removed[rec.ID] {
			continue
		}
		shown[rec.ID] = true
		entries = append(entries, confirmed(rec))
	}
	f.entries = entries
	if len(records) > 0 {
		f.advance(newest(records))
	}
}

// Poll merges a polled list (newest first) into the view and returns how
// many records were added. Before the first non-empty load it behaves like
// Load. Afterwards only records newer than the cursor are taken, oldest
// first, each inserted at the head. An empty poll changes nothing.
func (f *Feed) Poll(records []model.Record) int {
	if len(records) == 0 {
		return 0
	}
	if !f.seen {
		added := 0
		for _, rec := range records {
			if !f.Contains(rec.ID) {
				added++
			}
		}
		f.Load(records)
		return added
	}
	top := newest(records)
	if top == f.lastSeen {
		return 0
	}

	added := 0
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ID > f.lastSeen && f.insert(records[i]) {
			added++
		}
	}
	f.advance(top)
	return added
}

// Remove drops the confirmed entry with id. Call it only after the server
// has confirmed the delete; the id is then kept out of the view for good.
func (f *Feed) Remove(id int64) bool {
	f.removed[id] = true
	i := f.indexOf(id)
	if i < 0 {
		return false
	}
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	return true
}

// insert puts rec at the head unless it is already shown or was deleted. A
// provisional entry with the same name and timestamp is adopted and moved to
// the head.
func (f *Feed) insert(rec model.Record) bool {
	if f.Contains(rec.ID) || f.removed[rec.ID] {
		return false
	}
	for i, e := range f.entries {
		if e.Provisional && sameAction(e.Record, rec) {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			break
		}
	}
	f.entries = append([]Entry{confirmed(rec)}, f.entries...)
	return true
}

// advance never moves the cursor backwards.
func (f *Feed) advance(id int64) {
	if !f.seen || id > f.lastSeen {
		f.lastSeen = id
		f.seen = true
	}
}

func (f *Feed) indexOf(id int64) int {
	for i, e := range f.entries {
		if !e.Provisional && e.Record.ID == id {
			return i
		}
	}
	return -1
}

func (f *Feed) indexOfKey(key string) int {
	for i, e := range f.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func sameAction(a, b model.Record) bool {
	return a.Name == b.Name && a.Timestamp == b.Timestamp
}

func accountedFor(e Entry, records []model.Record) bool {
	for _, rec := range records {
		if sameAction(e.Record, rec) {
			return true
		}
	}
	return false
}

func confirmed(rec model.Record) Entry {
	return Entry{Key: rec.IDString(), Record: rec}
}

func newest(records []model.Record) int64 {
	top := records[0].ID
	for _, rec := range records[1:] {
		if rec.ID > top {
			top = rec.ID
		}
	}
	return top
}
