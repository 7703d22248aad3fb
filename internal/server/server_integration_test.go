package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/store"
)

func TestAPI_ComboWorkflow(t *testing.T) {
	// Setup
	tmpDir := t.TempDir()
	s, _ := store.New(filepath.Join(tmpDir, "test.db"))
	defer s.Close()

	srv := New(Config{Store: s})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a combo
	createBody := `{"name": "power_up", "sequence": ["closed_fist", "victory", "thumbs_up"], "timeout_ms": 3000}`
	resp, err := client.Post(ts.URL+"/api/combos", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/combos error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != "power_up" {
		t.Errorf("created name = %s, want power_up", created.Name)
	}

	// 2. Bind a plugin action to the combo
	actionBody := `{"combo_id": "` + created.ID + `", "plugin_name": "scene-control", "action_name": "pulse"}`
	resp, err = client.Post(ts.URL+"/api/actions", "application/json", bytes.NewBufferString(actionBody))
	if err != nil {
		t.Fatalf("POST /api/actions error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/actions status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	resp.Body.Close()

	// 3. List the combo's actions
	resp, _ = client.Get(ts.URL + "/api/actions?combo_id=" + created.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/actions status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Actions []struct {
			ID         string `json:"id"`
			PluginName string `json:"plugin_name"`
		} `json:"actions"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(listed.Actions))
	}
	if listed.Actions[0].PluginName != "scene-control" {
		t.Errorf("plugin_name = %s, want scene-control", listed.Actions[0].PluginName)
	}

	// 4. Get the single combo
	resp, _ = client.Get(ts.URL + "/api/combos/" + created.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/combos/%s status = %d, want %d", created.ID, resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 5. Delete the combo
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/combos/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 6. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/combos/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()

	// 7. The bound action went with it
	resp, _ = client.Get(ts.URL + "/api/actions?combo_id=" + created.ID)
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed.Actions) != 0 {
		t.Fatalf("len(actions) after combo delete = %d, want 0", len(listed.Actions))
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
