package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/uploadlog/internal/client"
	"github.com/coffersTech/uploadlog/internal/model"
)

// ErrEmptyName is returned by Add when there is nothing to record.
var ErrEmptyName = errors.New("name is required")

// API is the part of the record API the reconciler needs. *client.Client
// satisfies it. List may return client.ErrNotModified.
type API interface {
	List(ctx context.Context, includeAll bool) ([]model.Record, error)
	Create(ctx context.Context, rec model.NewRecord) (model.Record, error)
	Delete(ctx context.Context, id int64) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithIncludeAll starts the reconciler with retention filtering off.
func WithIncludeAll(v bool) Option {
	return func(r *Reconciler) {
		r.includeAll = v
	}
}

// WithOnChange registers fn to receive the rendered view after every change.
// fn runs with the view locked and must not call back into the Reconciler.
func WithOnChange(fn func([]Line)) Option {
	return func(r *Reconciler) {
		r.onChange = fn
	}
}

// WithClock overrides the clock used for optimistic timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLocation sets the zone timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		r.loc = loc
	}
}

// Reconciler drives a Feed from user actions and periodic polling. Every
// view mutation happens under one mutex; network calls run outside it.
type Reconciler struct {
	api      API
	onChange func([]Line)
	now      func() time.Time
	loc      *time.Location

	mu         sync.Mutex
	feed       *Feed
	includeAll bool
	lastList   map[bool][]model.Record // last full list body per includeAll

	wg sync.WaitGroup
}

func NewReconciler(api API, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:      api,
		now:      time.Now,
		loc:      time.Local,
		feed:     New(),
		lastList: make(map[bool][]model.Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lines renders the current view.
func (r *Reconciler) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.feed.Render(r.loc)
}

// Entries returns a copy of the current view.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.feed.Entries()
}

// IncludeAll reports whether retention filtering is off.
func (r *Reconciler) IncludeAll() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.includeAll
}

// Load fetches the list and replaces the whole view with it.
func (r *Reconciler) Load(ctx context.Context) error {
	includeAll := r.IncludeAll()
	records, err := r.fetch(ctx, includeAll)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if includeAll != r.includeAll {
		// Toggled while the request was in flight; that toggle reloads.
		return nil
	}
	r.feed.Load(records)
	r.changedLocked()
	return nil
}

// Poll fetches the list and merges records newer than the cursor.
func (r *Reconciler) Poll(ctx context.Context) (int, error) {
	includeAll := r.IncludeAll()
	records, err := r.api.List(ctx, includeAll)
	if errors.Is(err, client.ErrNotModified) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastList[includeAll] = records
	if includeAll != r.includeAll {
		return 0, nil
	}
	added := r.feed.Poll(records)
	if added > 0 {
		r.changedLocked()
	}
	return added, nil
}

// Run loads the view once and then polls every interval until ctx is done.
// Each tick fetches in its own goroutine so a slow request never delays the
// next one. Poll errors are dropped; the next tick retries.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	if err := r.Load(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Initial load failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return nil
		case <-ticker.C:
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.Poll(ctx)
			}()
		}
	}
}

// Add renders a provisional entry right away and then creates the record.
// A failed create leaves the provisional entry in place; the returned entry
// is then still Provisional.
func (r *Reconciler) Add(ctx context.Context, name string, meta json.RawMessage) (Entry, error) {
	if name == "" {
		return Entry{}, ErrEmptyName
	}
	pending := model.NewRecord{
		Name:      name,
		Timestamp: model.FormatTimestamp(r.now()),
		Meta:      meta,
	}

	r.mu.Lock()
	key := r.feed.Optimistic(pending)
	r.changedLocked()
	r.mu.Unlock()

	created, err := r.api.Create(ctx, pending)
	if err != nil {
		log.Printf("Create %q not confirmed: %v", name, err)
		return Entry{
			Key:         key,
			Provisional: true,
			Record:      model.Record{Name: pending.Name, Timestamp: pending.Timestamp, Meta: model.CleanMeta(meta)},
		}, nil
	}

	r.mu.Lock()
	if r.feed.Confirm(key, created) {
		r.changedLocked()
	}
	r.mu.Unlock()
	return confirmed(created), nil
}

// Delete removes a record on the server and, once that succeeded, from the
// view. On failure the view is left untouched.
func (r *Reconciler) Delete(ctx context.Context, id int64) error {
	if err := r.api.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.feed.Remove(id) {
		r.changedLocked()
	}
	return nil
}

// Clear deletes every record the current list shows, concurrently, and
// reloads the view.
func (r *Reconciler) Clear(ctx context.Context) (int, error) {
	records, err := r.fetch(ctx, r.IncludeAll())
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, rec := range records {
		id := rec.ID
		g.Go(func() error {
			err := r.api.Delete(gctx, id)
			if errors.Is(err, client.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	deleteErr := g.Wait()

	if err := r.Load(ctx); err != nil && deleteErr == nil {
		return len(records), err
	}
	if deleteErr != nil {
		return 0, fmt.Errorf("clear: %w", deleteErr)
	}
	return len(records), nil
}

// SetIncludeAll toggles retention filtering and reloads the view.
func (r *Reconciler) SetIncludeAll(ctx context.Context, v bool) error {
	r.mu.Lock()
	changed := r.includeAll != v
	r.includeAll = v
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.Load(ctx)
}

// fetch returns a full list body. An unchanged answer reuses the last body
// seen for the same includeAll.
func (r *Reconciler) fetch(ctx context.Context, includeAll bool) ([]model.Record, error) {
	records, err := r.api.List(ctx, includeAll)
	if errors.Is(err, client.ErrNotModified) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.lastList[includeAll], nil
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.lastList[includeAll] = records
	r.mu.Unlock()
	return records, nil
}

func (r *Reconciler) changedLocked() {
	if r.onChange != nil {
		r.onChange(r.feed.Render(r.loc))
	}
}
