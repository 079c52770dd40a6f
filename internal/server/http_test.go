package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/uploadlog/internal/model"
	"github.com/coffersTech/uploadlog/internal/store"
)

func newTestServer(t *testing.T) (*RecordServer, http.Handler) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "uploads.json"))
	require.NoError(t, err)
	srv := NewRecordServer(st, "")
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) model.Record {
	t.Helper()
	var rec model.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec), w.Body.String())
	return rec
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []model.Record {
	t.Helper()
	var records []model.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records), w.Body.String())
	return records
}

func TestRecordServer_CreateGetDeleteScenario(t *testing.T) {
	_, h := newTestServer(t)

	before := time.Now().UnixMilli()
	w := do(t, h, http.MethodPost, "/records", "application/json", `{"name":"Camera"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decodeRecord(t, w)
	after := time.Now().UnixMilli()

	assert.Equal(t, "Camera", created.Name)
	assert.Nil(t, created.Meta)
	assert.GreaterOrEqual(t, created.ID, before)
	assert.LessOrEqual(t, created.ID, after)
	_, ok := model.ParseTimestamp(created.Timestamp)
	assert.True(t, ok, "timestamp %q should be ISO-8601", created.Timestamp)
	assert.Contains(t, w.Body.String(), `"meta":null`)

	w = do(t, h, http.MethodGet, "/records/"+created.IDString(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decodeRecord(t, w))

	w = do(t, h, http.MethodDelete, "/records/"+created.IDString(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/records/"+created.IDString(), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestRecordServer_OverCapacityKeepsNewest(t *testing.T) {
	_, h := newTestServer(t)

	var first model.Record
	for i := 0; i < 101; i++ {
		w := do(t, h, http.MethodPost, "/records", "application/json", fmt.Sprintf(`{"name":"n%d"}`, i))
		require.Equal(t, http.StatusOK, w.Code)
		if i == 0 {
			first = decodeRecord(t, w)
		}
	}

	w := do(t, h, http.MethodGet, "/records?includeAll=1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	records := decodeList(t, w)
	require.Len(t, records, 100)
	assert.Equal(t, "n100", records[0].Name)
	for _, r := range records {
		assert.NotEqual(t, first.ID, r.ID)
	}
}

func TestRecordServer_CreateMissingName(t *testing.T) {
	_, h := newTestServer(t)

	bodies := []struct {
		contentType string
		body        string
	}{
		{"application/json", `{}`},
		{"application/json", `{"name":""}`},
		{"application/json", `{"timestamp":"2026-10-01T00:00:00.000Z"}`},
		{"", ``},
		{"text/plain", `not json at all`},
		{"application/x-www-form-urlencoded", `timestamp=x`},
	}
	for _, b := range bodies {
		w := do(t, h, http.MethodPost, "/records", b.contentType, b.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", b.body)
		assert.JSONEq(t, `{"error":"missing name"}`, w.Body.String())
	}

	w := do(t, h, http.MethodGet, "/records?includeAll=1", "", "")
	assert.Empty(t, decodeList(t, w))
}

func TestRecordServer_CreateToleratesBeaconBodies(t *testing.T) {
	_, h := newTestServer(t)

	cases := []struct {
		name        string
		contentType string
		body        string
		wantName    string
		wantTS      string
		wantMeta    string
	}{
		{"json without content type", "", `{"name":"Camera","timestamp":"2026-10-01T10:00:00.000Z"}`, "Camera", "2026-10-01T10:00:00.000Z", ""},
		{"json as text/plain", "text/plain;charset=UTF-8", `{"name":"Scanner","meta":{"k":[1,2]}}`, "Scanner", "", `{"k":[1,2]}`},
		{"key value without content type", "", `name=Printer&timestamp=2026-10-02T00:00:00.000Z`, "Printer", "2026-10-02T00:00:00.000Z", ""},
		{"form encoded", "application/x-www-form-urlencoded", `name=Fax+Machine&meta=%7B%22a%22%3A1%7D`, "Fax Machine", "", `{"a":1}`},
		{"form meta plain string", "application/x-www-form-urlencoded", `name=Copier&meta=hello`, "Copier", "", `"hello"`},
		{"mislabelled form", "application/json", `name=Label`, "Label", "", ""},
		{"form with bad escape elsewhere", "application/x-www-form-urlencoded", `name=Camera&note=50%`, "Camera", "", ""},
		{"key value with bad escape", "", `note=100%&name=Scanner`, "Scanner", "", ""},
		{"numeric name", "application/json", `{"name":42}`, "42", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/records", tc.contentType, tc.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			rec := decodeRecord(t, w)
			assert.Equal(t, tc.wantName, rec.Name)
			if tc.wantTS != "" {
				assert.Equal(t, tc.wantTS, rec.Timestamp)
			}
			if tc.wantMeta == "" {
				assert.Nil(t, rec.Meta)
			} else {
				assert.JSONEq(t, tc.wantMeta, string(rec.Meta))
			}
		})
	}
}

func TestRecordServer_CreateMultipart(t *testing.T) {
	_, h := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Camera"))
	require.NoError(t, mw.WriteField("timestamp", "2026-10-03T00:00:00.000Z"))
	require.NoError(t, mw.Close())

	w := do(t, h, http.MethodPost, "/records", mw.FormDataContentType(), buf.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decodeRecord(t, w)
	assert.Equal(t, "Camera", rec.Name)
	assert.Equal(t, "2026-10-03T00:00:00.000Z", rec.Timestamp)
}

func TestRecordServer_ListRetentionAndIncludeAll(t *testing.T) {
	_, h := newTestServer(t)

	old := model.FormatTimestamp(time.Now().Add(-10 * 24 * time.Hour))
	w := do(t, h, http.MethodPost, "/records", "application/json", fmt.Sprintf(`{"name":"old","timestamp":%q}`, old))
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodPost, "/records", "application/json", `{"name":"new"}`)
	require.Equal(t, http.StatusOK, w.Code)

	recent := decodeList(t, do(t, h, http.MethodGet, "/records", "", ""))
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].Name)

	for _, q := range []string{"includeAll=1", "includeAll=true", "include_all=1", "include_all=TRUE"} {
		all := decodeList(t, do(t, h, http.MethodGet, "/records?"+q, "", ""))
		assert.Len(t, all, 2, q)
	}
	assert.Len(t, decodeList(t, do(t, h, http.MethodGet, "/records?includeAll=0", "", "")), 1)
}

func TestRecordServer_Stats(t *testing.T) {
	srv, h := newTestServer(t)

	old := model.FormatTimestamp(time.Now().Add(-10 * 24 * time.Hour))
	for _, body := range []string{
		fmt.Sprintf(`{"name":"Camera","timestamp":%q}`, old),
		`{"name":"Camera"}`,
		`{"name":"Scanner"}`,
	} {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/records", "application/json", body).Code)
	}

	w := do(t, h, http.MethodGet, "/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Recent)
	assert.Equal(t, int64(3), stats.Created)
	assert.Equal(t, map[string]int{"Camera": 2, "Scanner": 1}, stats.Names)
	assert.Equal(t, int64(3), srv.Created())
}

func TestRecordServer_ListETag(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/records", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	do(t, h, http.MethodPost, "/records", "application/json", `{"name":"Camera"}`)

	req = httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}

func TestRecordServer_Download(t *testing.T) {
	_, h := newTestServer(t)
	rec := decodeRecord(t, do(t, h, http.MethodPost, "/records", "application/json", `{"name":"Camera"}`))

	w := do(t, h, http.MethodGet, "/records/"+rec.IDString(), "", "")
	assert.Empty(t, w.Header().Get("Content-Disposition"))

	w = do(t, h, http.MethodGet, "/records/"+rec.IDString()+"?download=1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fmt.Sprintf(`attachment; filename="upload-%d.json"`, rec.ID), w.Header().Get("Content-Disposition"))
	assert.Equal(t, rec, decodeRecord(t, w))
}

func TestRecordServer_DeleteNotFound(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodDelete, "/records/1234", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestRecordServer_LegacyPrefix(t *testing.T) {
	srv, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/uploads", "application/json", `{"name":"Camera"}`)
	require.Equal(t, http.StatusOK, w.Code)
	rec := decodeRecord(t, w)

	w = do(t, h, http.MethodGet, "/records/"+rec.IDString(), "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, "/api/uploads?include_all=1", "", "")
	assert.Len(t, decodeList(t, w), 1)
	assert.Equal(t, int64(1), srv.Created())
}

func TestRecordServer_MethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPut, "/records/1", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRecordServer_GzipList(t *testing.T) {
	_, h := newTestServer(t)
	for i := 0; i < 40; i++ {
		do(t, h, http.MethodPost, "/records", "application/json", `{"name":"a fairly long action name to pad the body"}`)
	}

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

type brokenStore struct{}

var errDisk = errors.New("open /var/lib/secret/uploads.json: permission denied")

func (brokenStore) List(context.Context, bool) ([]model.Record, error) { return nil, errDisk }
func (brokenStore) Get(context.Context, string) (model.Record, error) {
	return model.Record{}, errDisk
}
func (brokenStore) Append(context.Context, model.NewRecord) (model.Record, error) {
	return model.Record{}, errDisk
}
func (brokenStore) Delete(context.Context, string) (bool, error) { return false, errDisk }
func (brokenStore) Close() error                                 { return nil }

func TestRecordServer_InternalErrorsAreGeneric(t *testing.T) {
	h := NewRecordServer(brokenStore{}, "").Handler()

	cases := []struct {
		method, target, body, want string
	}{
		{http.MethodGet, "/records", "", "failed to read uploads"},
		{http.MethodGet, "/records/1", "", "failed to read upload"},
		{http.MethodPost, "/records", `{"name":"Camera"}`, "failed to save upload"},
		{http.MethodDelete, "/records/1", "", "failed to delete upload"},
		{http.MethodGet, "/stats", "", "failed to read uploads"},
	}
	for _, tc := range cases {
		w := do(t, h, tc.method, tc.target, "application/json", tc.body)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tc.want), w.Body.String())
		assert.NotContains(t, w.Body.String(), "secret")
	}
}
