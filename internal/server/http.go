package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzhttp"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/blake2b"

	"github.com/coffersTech/uploadlog/internal/store"
)

// RoutePrefixes are the paths the record API is mounted under. The second
// one is what the browser client calls.
var RoutePrefixes = []string{"/records", "/api/uploads"}

type RecordServer struct {
	store         store.Store
	webDir        string // Directory for static web files
	srv           *http.Server
	parser        fastjson.ParserPool
	createCounter int64
}

func NewRecordServer(st store.Store, webDir string) *RecordServer {
	return &RecordServer{
		store:  st,
		webDir: webDir,
	}
}

// Handler returns the routed, gzip-capable handler without starting a listener.
func (s *RecordServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, prefix := range RoutePrefixes {
		mux.HandleFunc("GET "+prefix, s.handleList)
		mux.HandleFunc("POST "+prefix, s.handleCreate)
		mux.HandleFunc("GET "+prefix+"/{id}", s.handleGet)
		mux.HandleFunc("DELETE "+prefix+"/{id}", s.handleDelete)
	}
	mux.HandleFunc("GET /stats", s.handleStats)

	// Static file serving for web directory
	if s.webDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.webDir)))
	}

	return gzhttp.GzipHandler(mux)
}

// Start runs the HTTP server.
func (s *RecordServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *RecordServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// Created reports how many records this server has accepted since start.
func (s *RecordServer) Created() int64 {
	return atomic.LoadInt64(&s.createCounter)
}

// handleList processes GET /records.
func (s *RecordServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeAll := flagSet(q.Get("includeAll")) || flagSet(q.Get("include_all"))

	records, err := s.store.List(r.Context(), includeAll)
	if err != nil {
		log.Printf("Failed to read uploads: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read uploads")
		return
	}

	body, err := json.Marshal(records)
	if err != nil {
		log.Printf("JSON encode error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read uploads")
		return
	}

	etag := listETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleGet processes GET /records/{id}.
func (s *RecordServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		log.Printf("Failed to read upload %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	if flagSet(r.URL.Query().Get("download")) {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="upload-%s.json"`, rec.IDString()))
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreate processes POST /records. The body may arrive without a
// content type, so it is read raw and decoded by decodeCreate.
func (s *RecordServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCreateBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	defer r.Body.Close()

	rec, err := s.store.Append(r.Context(), s.decodeCreate(r, raw))
	if errors.Is(err, store.ErrValidation) {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	if err != nil {
		log.Printf("Failed to save upload: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}

	atomic.AddInt64(&s.createCounter, 1)
	writeJSON(w, http.StatusOK, rec)
}

// handleDelete processes DELETE /records/{id}.
func (s *RecordServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	found, err := s.store.Delete(r.Context(), id)
	if err != nil {
		log.Printf("Failed to delete upload %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete upload")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func flagSet(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// listETag is a strong validator over the exact list body.
func listETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
