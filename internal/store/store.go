package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coffersTech/uploadlog/internal/model"
)

const (
	// Capacity is the maximum number of records kept; older ones are evicted on write.
	Capacity = 100

	// RetentionWindow is the default visibility cutoff for List.
	RetentionWindow = 7 * 24 * time.Hour
)

var (
	ErrValidation = errors.New("missing name")
	ErrNotFound   = errors.New("not found")
)

// Store is the single source of truth for the record list.
// Implementations serialize Append and Delete against each other and
// never expose a partially written list to readers.
type Store interface {
	List(ctx context.Context, includeAll bool) ([]model.Record, error)
	Get(ctx context.Context, id string) (model.Record, error)
	Append(ctx context.Context, rec model.NewRecord) (model.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Clock returns the store time. Tests replace it to control id assignment.
type Clock func() time.Time

func validate(rec model.NewRecord) error {
	if rec.Name == "" {
		return ErrValidation
	}
	return nil
}

// nextID returns the creation time in ms, bumped past newest so ids stay
// strictly increasing when two appends land in the same millisecond.
func nextID(now time.Time, newest int64) int64 {
	id := now.UnixMilli()
	if id <= newest {
		id = newest + 1
	}
	return id
}

func build(rec model.NewRecord, id int64, now time.Time) model.Record {
	ts := rec.Timestamp
	if ts == "" {
		ts = model.FormatTimestamp(now)
	}
	return model.Record{ID: id, Name: rec.Name, Timestamp: ts, Meta: model.CleanMeta(rec.Meta)}
}

// withinRetention keeps records whose effective time is inside the window.
func withinRetention(records []model.Record, now time.Time) []model.Record {
	cutoff := now.Add(-RetentionWindow)
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if !r.EffectiveTime().Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
