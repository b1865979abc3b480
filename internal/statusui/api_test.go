package statusui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleStatusReportsSnapshot(t *testing.T) {
	mgr := NewManager(16)
	mgr.Broadcast(Event{From: "Start", To: "WaitForSale", Code: 0, ProjectID: 42})

	mux := http.NewServeMux()
	NewServer(mgr).Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Uptime  string `json:"uptime"`
		Clients int    `json:"clients"`
		Last    *Event `json:"last"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Last == nil || out.Last.ProjectID != 42 {
		t.Fatalf("Last = %+v, want ProjectID=42", out.Last)
	}
	if out.Clients != 0 {
		t.Errorf("Clients = %d, want 0", out.Clients)
	}
}
