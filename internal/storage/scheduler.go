package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coffersTech/uploadlog/internal/store"
)

// Snapshotter archives the full record list on a cron schedule and purges
// archives older than its retention after each run.
type Snapshotter struct {
	store     store.Store
	writer    *SnapshotWriter
	dir       string
	retention time.Duration
	now       func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSnapshotter(st store.Store, dir string, retention time.Duration) (*Snapshotter, error) {
	w, err := NewSnapshotWriter(dir)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Snapshotter{
		store:     st,
		writer:    w,
		dir:       dir,
		retention: retention,
		now:       time.Now,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Snapshot writes one archive now and purges expired ones.
func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	records, err := s.store.List(ctx, true)
	if err != nil {
		return "", fmt.Errorf("list records: %w", err)
	}
	at := s.now()
	path, err := s.writer.Write(records, at)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := PurgeExpired(s.dir, s.retention, at); err != nil {
		log.Printf("Cleaner error: %v", err)
	}
	return path, nil
}

// Start schedules snapshots with a cron spec ("@hourly", "0 */6 * * *").
func (s *Snapshotter) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		path, err := s.Snapshot(s.ctx)
		if err != nil {
			log.Printf("Snapshot failed: %v", err)
			return
		}
		log.Printf("Snapshot written: %s", path)
	})
	if err != nil {
		return fmt.Errorf("snapshot schedule %q: %w", spec, err)
	}

	s.cron.Start()
	log.Printf("Snapshots scheduled (%s) in %s, retention %v", spec, s.dir, s.retention)
	return nil
}

// Stop waits for a running snapshot to finish.
func (s *Snapshotter) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.writer.Close()
}
