package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout matches the ISO-8601 form browsers produce with toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record represents a single logged upload action.
// ID is assigned by the store and doubles as the creation time in
// milliseconds since epoch. Timestamp is display-only and may be supplied
// by the client.
type Record struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Timestamp string          `json:"timestamp"`
	Meta      json.RawMessage `json:"meta"`
}

// UnmarshalJSON accepts ids written as numbers or numeric strings and
// normalises meta with CleanMeta.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w struct {
		ID        json.Number     `json:"id"`
		Name      string          `json:"name"`
		Timestamp string          `json:"timestamp"`
		Meta      json.RawMessage `json:"meta"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var id int64
	if w.ID != "" {
		n, err := w.ID.Int64()
		if err != nil {
			return fmt.Errorf("record id %q: %w", w.ID, err)
		}
		id = n
	}
	*r = Record{ID: id, Name: w.Name, Timestamp: w.Timestamp, Meta: CleanMeta(w.Meta)}
	return nil
}

// NewRecord is the input to an append: everything except the id.
type NewRecord struct {
	Name      string
	Timestamp string
	Meta      json.RawMessage
}

// IDString returns the id in the form used for path parameters and lookups.
func (r Record) IDString() string {
	return strconv.FormatInt(r.ID, 10)
}

// EffectiveTime is the time used for retention: the display timestamp when
// it parses, otherwise the id interpreted as milliseconds.
func (r Record) EffectiveTime() time.Time {
	if t, ok := ParseTimestamp(r.Timestamp); ok {
		return t
	}
	return time.UnixMilli(r.ID)
}

// CleanMeta returns raw in compact form and maps an empty or literal null
// payload to nil, so the same meta compares equal before and after a
// round trip through storage.
func CleanMeta(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return append(json.RawMessage(nil), trimmed...)
	}
	return buf.Bytes()
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 variants clients commonly send.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
