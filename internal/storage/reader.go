package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/uploadlog/internal/model"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot archive")

type SnapshotReader struct {
	decoder *zstd.Decoder
}

func NewSnapshotReader() (*SnapshotReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{decoder: dec}, nil
}

// Read decodes the archive at path.
func (sr *SnapshotReader) Read(path string) ([]model.Record, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw, err := sr.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	var records []model.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return records, nil
}

func (sr *SnapshotReader) Close() {
	sr.decoder.Close()
}
