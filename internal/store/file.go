package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coffersTech/uploadlog/internal/model"
)

// FileStore keeps the record list as one JSON array file.
// Writers hold mu for the whole read-modify-write cycle. Readers take no
// lock: every write goes to a temp file that is renamed over the original,
// so a reader sees either the old list or the new one.
type FileStore struct {
	filePath string
	mu       sync.Mutex
	now      Clock
}

// NewFileStore opens the store at filePath, creating the directory and an
// empty list if the file does not exist yet.
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{filePath: filePath, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		if err := s.saveLocked([]model.Record{}); err != nil {
			return nil, fmt.Errorf("init %s: %w", filePath, err)
		}
	} else if err != nil {
		return nil, err
	}
	return s, nil
}

// SetClock replaces the store time source. Call it before the store is shared.
func (s *FileStore) SetClock(c Clock) {
	s.now = c
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.filePath
}

func (s *FileStore) List(ctx context.Context, includeAll bool) ([]model.Record, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	if includeAll {
		return records, nil
	}
	return withinRetention(records, s.now()), nil
}

func (s *FileStore) Get(ctx context.Context, id string) (model.Record, error) {
	records, err := s.load()
	if err != nil {
		return model.Record{}, err
	}
	for _, r := range records {
		if r.IDString() == id {
			return r, nil
		}
	}
	return model.Record{}, ErrNotFound
}

func (s *FileStore) Append(ctx context.Context, rec model.NewRecord) (model.Record, error) {
	if err := validate(rec); err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return model.Record{}, err
	}

	var newest int64
	for _, r := range records {
		if r.ID > newest {
			newest = r.ID
		}
	}
	now := s.now()
	entry := build(rec, nextID(now, newest), now)

	records = append([]model.Record{entry}, records...)
	if len(records) > Capacity {
		records = records[:Capacity]
	}
	if err := s.saveLocked(records); err != nil {
		return model.Record{}, err
	}
	return entry, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}

	kept := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.IDString() != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return false, nil
	}
	if err := s.saveLocked(kept); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) Close() error {
	return nil
}

// load reads the whole list. A missing or blank file is an empty list;
// anything else that fails to decode is an error.
func (s *FileStore) load() ([]model.Record, error) {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Record{}, nil
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}

// saveLocked writes records to a temp file in the same directory and
// renames it over the store file.
func (s *FileStore) saveLocked(records []model.Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), "."+filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write records: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		return fmt.Errorf("replace records: %w", err)
	}
	return nil
}

// encodeRecords writes a JSON array with one compact record per line.
func encodeRecords(records []model.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		buf.Write(line)
	}
	if len(records) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}
