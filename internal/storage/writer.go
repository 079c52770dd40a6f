package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/uploadlog/internal/model"
)

// Snapshot file name format: records_{unixMillis}.json.zst
const (
	snapshotPrefix = "records_"
	snapshotSuffix = ".json.zst"
)

// SnapshotName is the archive file name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return fmt.Sprintf("%s%d%s", snapshotPrefix, t.UnixMilli(), snapshotSuffix)
}

type SnapshotWriter struct {
	dir     string
	encoder *zstd.Encoder
}

func NewSnapshotWriter(dir string) (*SnapshotWriter, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{dir: dir, encoder: enc}, nil
}

// Write stores records as a zstd-compressed JSON array and returns the
// archive path. The archive appears under its final name only once it is
// completely written.
func (sw *SnapshotWriter) Write(records []model.Record, at time.Time) (string, error) {
	if records == nil {
		records = []model.Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(sw.dir, 0o755); err != nil {
		return "", err
	}

	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	final := filepath.Join(sw.dir, SnapshotName(at))
	tmp, err := os.CreateTemp(sw.dir, ".snapshot-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", err
	}
	return final, nil
}

func (sw *SnapshotWriter) Close() error {
	return sw.encoder.Close()
}
