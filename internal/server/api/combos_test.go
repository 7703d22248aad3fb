package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mudra-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestComboHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Create a combo in the store
	combo := &store.Combo{
		ID:       "test-combo-1",
		Name:     "power_up",
		Sequence: []string{"closed_fist", "victory", "thumbs_up"},
		Timeout:  3 * time.Second,
	}
	if err := s.Combos().Create(combo); err != nil {
		t.Fatalf("failed to create combo: %v", err)
	}

	// Make a GET request to list combos
	req := httptest.NewRequest(http.MethodGet, "/api/combos", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// Verify response
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var response listCombosResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(response.Combos) != 1 {
		t.Errorf("expected 1 combo, got %d", len(response.Combos))
	}

	if response.Combos[0].ID != "test-combo-1" {
		t.Errorf("expected combo ID 'test-combo-1', got %q", response.Combos[0].ID)
	}

	if response.Combos[0].Name != "power_up" {
		t.Errorf("expected combo name 'power_up', got %q", response.Combos[0].Name)
	}

	if response.Combos[0].TimeoutMs != 3000 {
		t.Errorf("expected timeout_ms 3000, got %d", response.Combos[0].TimeoutMs)
	}
}

func TestComboHandler_Create(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Create request body
	reqBody := createComboRequest{
		Name:      "grab_toss",
		Sequence:  []string{"pinch", "open_hand"},
		TimeoutMs: 2000,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	// Make a POST request to create a combo
	req := httptest.NewRequest(http.MethodPost, "/api/combos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// Verify response
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var response comboResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.ID == "" {
		t.Error("expected non-empty ID in response")
	}

	if response.Name != "grab_toss" {
		t.Errorf("expected name 'grab_toss', got %q", response.Name)
	}

	if len(response.Sequence) != 2 || response.Sequence[0] != "pinch" {
		t.Errorf("unexpected sequence %v", response.Sequence)
	}

	if response.TimeoutMs != 2000 {
		t.Errorf("expected timeout_ms 2000, got %d", response.TimeoutMs)
	}

	// Verify the combo was persisted in the store
	created, err := s.Combos().GetByID(response.ID)
	if err != nil {
		t.Fatalf("failed to get created combo: %v", err)
	}

	if created.Name != "grab_toss" {
		t.Errorf("stored combo name mismatch: got %q, want 'grab_toss'", created.Name)
	}
}

func TestComboHandler_Create_DefaultTimeout(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Omit the timeout
	reqBody := createComboRequest{
		Name:     "quick_pulse",
		Sequence: []string{"closed_fist", "open_hand"},
	}
	body, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/api/combos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var response comboResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.TimeoutMs != 3000 {
		t.Errorf("expected default timeout_ms 3000, got %d", response.TimeoutMs)
	}
}

func TestComboHandler_Create_InvalidJSON(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Make a POST request with invalid JSON
	req := httptest.NewRequest(http.MethodPost, "/api/combos", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestComboHandler_Create_MissingName(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Create request body without name
	reqBody := createComboRequest{
		Sequence: []string{"open_hand"},
	}
	body, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/api/combos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestComboHandler_Create_UnknownGesture(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// The sequence contains a gesture the classifier cannot produce
	reqBody := createComboRequest{
		Name:     "broken",
		Sequence: []string{"open_hand", "teleport"},
	}
	body, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/api/combos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestComboHandler_Create_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	combo := &store.Combo{
		ID:       "test-combo-1",
		Name:     "power_up",
		Sequence: []string{"closed_fist", "victory"},
		Timeout:  3 * time.Second,
	}
	if err := s.Combos().Create(combo); err != nil {
		t.Fatalf("failed to create combo: %v", err)
	}

	// Creating a combo with the same name conflicts
	reqBody := createComboRequest{
		Name:     "power_up",
		Sequence: []string{"pinch"},
	}
	body, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/api/combos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestComboHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Create a combo in the store
	combo := &store.Combo{
		ID:       "test-combo-1",
		Name:     "focus_frame",
		Sequence: []string{"ok_sign", "point"},
		Timeout:  2500 * time.Millisecond,
	}
	if err := s.Combos().Create(combo); err != nil {
		t.Fatalf("failed to create combo: %v", err)
	}

	// Make a GET request for the combo
	req := httptest.NewRequest(http.MethodGet, "/api/combos/test-combo-1", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response comboResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.ID != "test-combo-1" {
		t.Errorf("expected ID 'test-combo-1', got %q", response.ID)
	}

	if response.TimeoutMs != 2500 {
		t.Errorf("expected timeout_ms 2500, got %d", response.TimeoutMs)
	}
}

func TestComboHandler_Get_NotFound(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/combos/non-existent", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestComboHandler_Update(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Create a combo in the store
	combo := &store.Combo{
		ID:       "test-combo-1",
		Name:     "power_up",
		Sequence: []string{"closed_fist", "victory"},
		Timeout:  3 * time.Second,
	}
	if err := s.Combos().Create(combo); err != nil {
		t.Fatalf("failed to create combo: %v", err)
	}

	// Make a PUT request to update the combo
	updateReq := updateComboRequest{
		Name:      "power_up_v2",
		Sequence:  []string{"closed_fist", "victory", "thumbs_up"},
		TimeoutMs: 4000,
	}
	body, _ := json.Marshal(updateReq)

	req := httptest.NewRequest(http.MethodPut, "/api/combos/test-combo-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var response comboResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Name != "power_up_v2" {
		t.Errorf("expected name 'power_up_v2', got %q", response.Name)
	}

	if len(response.Sequence) != 3 {
		t.Errorf("expected 3 sequence steps, got %v", response.Sequence)
	}

	if response.TimeoutMs != 4000 {
		t.Errorf("expected timeout_ms 4000, got %d", response.TimeoutMs)
	}

	// Verify the update was persisted
	updated, _ := s.Combos().GetByID("test-combo-1")
	if updated.Name != "power_up_v2" {
		t.Errorf("stored combo name not updated: got %q", updated.Name)
	}
}

func TestComboHandler_Update_UnknownGesture(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	combo := &store.Combo{
		ID:       "test-combo-1",
		Name:     "power_up",
		Sequence: []string{"closed_fist", "victory"},
		Timeout:  3 * time.Second,
	}
	if err := s.Combos().Create(combo); err != nil {
		t.Fatalf("failed to create combo: %v", err)
	}

	updateReq := updateComboRequest{
		Sequence: []string{"warp"},
	}
	body, _ := json.Marshal(updateReq)

	req := httptest.NewRequest(http.MethodPut, "/api/combos/test-combo-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestComboHandler_Update_NotFound(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	updateReq := updateComboRequest{
		Name: "updated",
	}
	body, _ := json.Marshal(updateReq)

	req := httptest.NewRequest(http.MethodPut, "/api/combos/non-existent", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestComboHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// Create a combo in the store
	combo := &store.Combo{
		ID:       "test-combo-1",
		Name:     "power_up",
		Sequence: []string{"closed_fist", "victory"},
		Timeout:  3 * time.Second,
	}
	if err := s.Combos().Create(combo); err != nil {
		t.Fatalf("failed to create combo: %v", err)
	}

	// Make a DELETE request
	req := httptest.NewRequest(http.MethodDelete, "/api/combos/test-combo-1", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// Verify 204 No Content
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	// Verify the combo is deleted - GET should return 404
	req = httptest.NewRequest(http.MethodGet, "/api/combos/test-combo-1", nil)
	rec = httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestComboHandler_Delete_NotFound(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	req := httptest.NewRequest(http.MethodDelete, "/api/combos/non-existent", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestComboHandler_MethodNotAllowed(t *testing.T) {
	s := newTestStore(t)
	handler := NewComboHandler(s)

	// PATCH is not allowed on the collection endpoint
	req := httptest.NewRequest(http.MethodPatch, "/api/combos", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
