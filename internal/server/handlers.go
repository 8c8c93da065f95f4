package server

import (
	"net/http"
	"time"

	"snaptrigger/internal/serializer"
	"snaptrigger/internal/source"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	code := http.StatusOK
	if s.cfg.Dispatcher == nil || !s.cfg.Dispatcher.IsRunning() {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

// SourceInfo describes one configured source. Credentials are never shown.
type SourceInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
	Auth    bool   `json:"auth"`
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	out := []SourceInfo{}
	if s.cfg.Registry != nil {
		for _, src := range s.cfg.Registry.All() {
			out = append(out, SourceInfo{
				Name:    src.Name,
				Kind:    string(src.Kind),
				Address: source.RedactAddress(src.Address),
				Auth:    !src.Credentials.Empty(),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Running     bool             `json:"running"`
	Outcomes    map[string]int64 `json:"outcomes"`
	Discarded   int64            `json:"discarded"`
	IngestQueue int              `json:"ingest_queue"`
	IngestCap   int              `json:"ingest_capacity"`
	Lanes       []LaneInfo       `json:"lanes"`
}

// LaneInfo is one source's serializer lane.
type LaneInfo struct {
	Source    string `json:"source"`
	Pending   int    `json:"pending"`
	Busy      bool   `json:"busy"`
	Processed int64  `json:"processed"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	d := s.cfg.Dispatcher
	if d == nil {
		http.Error(w, "dispatcher not configured", http.StatusServiceUnavailable)
		return
	}
	st := d.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		Running:     d.IsRunning(),
		Outcomes:    st.Outcomes,
		Discarded:   st.Discarded,
		IngestQueue: d.IngestQueueDepth(),
		IngestCap:   d.IngestQueueCapacity(),
		Lanes:       laneInfos(st.Lanes),
	})
}

func laneInfos(lanes []serializer.LaneState) []LaneInfo {
	out := make([]LaneInfo, 0, len(lanes))
	for _, l := range lanes {
		out = append(out, LaneInfo{
			Source:    l.Name,
			Pending:   l.Pending,
			Busy:      l.Busy,
			Processed: l.Processed,
		})
	}
	return out
}
