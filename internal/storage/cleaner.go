package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SnapshotInfo describes one archive in a snapshot directory.
type SnapshotInfo struct {
	Path    string
	TakenAt time.Time
}

// ListSnapshots returns the archives in dir, oldest first. Files with
// unexpected names are skipped; a missing dir has no snapshots.
func ListSnapshots(dir string) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		takenAt, err := snapshotTime(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, SnapshotInfo{Path: filepath.Join(dir, entry.Name()), TakenAt: takenAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}

// PurgeExpired removes archives in dir taken before now-retention and
// returns their paths. A non-positive retention keeps everything.
func PurgeExpired(dir string, retention time.Duration, now time.Time) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	snapshots, err := ListSnapshots(dir)
	if err != nil {
		return nil, err
	}

	threshold := now.Add(-retention)
	var removed []string
	for _, s := range snapshots {
		if !s.TakenAt.Before(threshold) {
			continue
		}
		if err := os.Remove(s.Path); err != nil {
			log.Printf("Cleaner error: failed to delete %s: %v", s.Path, err)
			continue
		}
		log.Printf("Expired snapshot deleted: %s", filepath.Base(s.Path))
		removed = append(removed, s.Path)
	}
	return removed, nil
}

func snapshotTime(filename string) (time.Time, error) {
	// records_1760000000000.json.zst
	if !strings.HasPrefix(filename, snapshotPrefix) || !strings.HasSuffix(filename, snapshotSuffix) {
		return time.Time{}, fmt.Errorf("invalid format")
	}
	ms, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(filename, snapshotPrefix), snapshotSuffix), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
