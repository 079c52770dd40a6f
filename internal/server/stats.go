package server

import (
	"log"
	"net/http"
	"sync/atomic"
)

// Stats contains high-level counters for the stats endpoint.
type Stats struct {
	Records int            `json:"records"` // stored, retention ignored
	Recent  int            `json:"recent"`  // within the retention window
	Created int64          `json:"created"` // accepted since start
	Names   map[string]int `json:"names"`   // e.g. "Camera": 12
}

// handleStats processes GET /stats.
func (s *RecordServer) handleStats(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.List(r.Context(), true)
	if err != nil {
		log.Printf("Failed to read uploads for stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read uploads")
		return
	}
	recent, err := s.store.List(r.Context(), false)
	if err != nil {
		log.Printf("Failed to read uploads for stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read uploads")
		return
	}

	stats := Stats{
		Records: len(all),
		Recent:  len(recent),
		Created: atomic.LoadInt64(&s.createCounter),
		Names:   make(map[string]int),
	}
	for _, rec := range all {
		stats.Names[rec.Name]++
	}
	writeJSON(w, http.StatusOK, stats)
}
