// Package api provides HTTP API handlers for the Mudra hand tracking system.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

// ComboHandler handles HTTP requests for combo resources.
type ComboHandler struct {
	store *store.Store
}

// NewComboHandler creates a new ComboHandler with the given store.
func NewComboHandler(s *store.Store) *ComboHandler {
	return &ComboHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *ComboHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Parse the path to determine if this is a collection or item request
	// Expected paths: /api/combos or /api/combos/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/combos")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		// Collection endpoint: /api/combos
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	// Item endpoint: /api/combos/{id}
	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type createComboRequest struct {
	Name      string   `json:"name"`
	Sequence  []string `json:"sequence"`
	TimeoutMs int64    `json:"timeout_ms"`
}

type updateComboRequest struct {
	Name      string   `json:"name"`
	Sequence  []string `json:"sequence"`
	TimeoutMs int64    `json:"timeout_ms"`
}

type comboResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Sequence  []string `json:"sequence"`
	TimeoutMs int64    `json:"timeout_ms"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type listCombosResponse struct {
	Combos []comboResponse `json:"combos"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toComboResponse converts a store.Combo to a comboResponse.
func toComboResponse(c *store.Combo) comboResponse {
	return comboResponse{
		ID:        c.ID,
		Name:      c.Name,
		Sequence:  c.Sequence,
		TimeoutMs: c.Timeout.Milliseconds(),
		CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// validSequence checks every element of a combo sequence against the known
// gesture kinds and returns the first offender.
func validSequence(sequence []string) (string, bool) {
	for _, s := range sequence {
		if !gesture.ValidKind(s) {
			return s, false
		}
	}
	return "", true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/combos and returns all combos.
func (h *ComboHandler) list(w http.ResponseWriter, r *http.Request) {
	combos, err := h.store.Combos().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list combos")
		return
	}

	response := listCombosResponse{
		Combos: make([]comboResponse, 0, len(combos)),
	}

	for _, c := range combos {
		response.Combos = append(response.Combos, toComboResponse(c))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/combos/{id} and returns a single combo.
func (h *ComboHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	combo, err := h.store.Combos().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Combo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get combo")
		return
	}

	writeJSON(w, http.StatusOK, toComboResponse(combo))
}

// create handles POST /api/combos and creates a new combo.
func (h *ComboHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createComboRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate required fields
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if len(req.Sequence) == 0 {
		writeError(w, http.StatusBadRequest, "Sequence is required")
		return
	}
	if bad, ok := validSequence(req.Sequence); !ok {
		writeError(w, http.StatusBadRequest, "Unknown gesture in sequence: "+bad)
		return
	}

	// Check for a name collision before creating
	if _, err := h.store.Combos().GetByName(req.Name); err == nil {
		writeError(w, http.StatusConflict, "Combo name already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check combo name")
		return
	}

	// Set default timeout if not provided
	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	combo := &store.Combo{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Sequence: req.Sequence,
		Timeout:  time.Duration(timeoutMs) * time.Millisecond,
	}

	if err := h.store.Combos().Create(combo); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create combo")
		return
	}

	writeJSON(w, http.StatusCreated, toComboResponse(combo))
}

// update handles PUT /api/combos/{id} and updates an existing combo.
func (h *ComboHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	// First, get the existing combo
	combo, err := h.store.Combos().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Combo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get combo")
		return
	}

	var req updateComboRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Update fields if provided
	if req.Name != "" {
		combo.Name = req.Name
	}
	if req.Sequence != nil {
		if len(req.Sequence) == 0 {
			writeError(w, http.StatusBadRequest, "Sequence cannot be empty")
			return
		}
		if bad, ok := validSequence(req.Sequence); !ok {
			writeError(w, http.StatusBadRequest, "Unknown gesture in sequence: "+bad)
			return
		}
		combo.Sequence = req.Sequence
	}
	if req.TimeoutMs > 0 {
		combo.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	if err := h.store.Combos().Update(combo); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update combo")
		return
	}

	writeJSON(w, http.StatusOK, toComboResponse(combo))
}

// delete handles DELETE /api/combos/{id} and removes a combo.
func (h *ComboHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Combos().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Combo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete combo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
