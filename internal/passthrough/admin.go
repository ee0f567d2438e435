package passthrough

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/passthrough/internal/config"
	"github.com/banshee-data/passthrough/internal/version"
)

// AdminState is the body of /debug/passthrough-state.
type AdminState struct {
	State                 State          `json:"state"`
	Session               *SessionInfo   `json:"session,omitempty"`
	Stats                 *StatsSnapshot `json:"stats,omitempty"`
	CalibrationGeneration uint64         `json:"calibration_generation"`
	Config                *config.Config `json:"config"`
	Version               string         `json:"version"`
}

// AdminState collects the manager's state for the debug page.
func (m *CameraManager) AdminState() AdminState {
	st := AdminState{
		State:   m.State(),
		Config:  m.config.Current(),
		Version: version.String(),
	}
	if info, ok := m.Session(); ok {
		st.Session = &info
	}
	if stats, ok := m.Stats(); ok {
		st.Stats = &stats
	}
	if p, ok := m.StaticCameraParameters(); ok {
		st.CalibrationGeneration = p.Generation
	}
	return st
}

// AttachAdminRoutes registers the pass-through debug endpoints on mux.
func (m *CameraManager) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("passthrough-state", "pass-through camera state and capture stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m.AdminState()); err != nil {
			http.Error(w, "Failed to encode state", http.StatusInternalServerError)
		}
	})

	// Server-sent events, one per published frame.
	debug.HandleSilentFunc("passthrough-frames", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := m.events.Subscribe()
		defer m.events.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
