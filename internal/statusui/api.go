package statusui

import (
	"encoding/json"
	"net/http"
	"time"
)

// Server exposes the dashboard's HTTP surface: the WebSocket upgrade and a
// plain REST snapshot for curl/scripted polling.
type Server struct {
	mgr *Manager
}

// NewServer wraps a Manager as an HTTP server.
func NewServer(mgr *Manager) *Server {
	return &Server{mgr: mgr}
}

// Register attaches the dashboard's routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", Handler(s.mgr))
	mux.HandleFunc("GET /api/status", s.handleStatus)
}

type statusResponse struct {
	Uptime  string `json:"uptime"`
	Clients int    `json:"clients"`
	Last    *Event `json:"last,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Uptime:  s.mgr.Uptime().Truncate(time.Second).String(),
		Clients: s.mgr.ClientCount(),
		Last:    s.mgr.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
