package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/mapping"
)

// CalibrationHandler drives the mapper's guided calibration flow. Point
// captures use the live tracked hand position, so the client only names
// which guided step it is on.
type CalibrationHandler struct {
	mapper *mapping.Mapper
	hands  *hand.Manager
}

// NewCalibrationHandler creates a new CalibrationHandler with the given
// mapper and hand state manager.
func NewCalibrationHandler(m *mapping.Mapper, hands *hand.Manager) *CalibrationHandler {
	return &CalibrationHandler{mapper: m, hands: hands}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/calibration, /api/calibration/start, /api/calibration/points
	path := strings.TrimPrefix(r.URL.Path, "/api/calibration")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.status(w, r)
		case http.MethodDelete:
			h.reset(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "start":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.start(w, r)
	case "points":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.capture(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type capturePointRequest struct {
	Point string `json:"point"`
}

// status handles GET /api/calibration and reports guided-capture progress.
func (h *CalibrationHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mapper.CalibrationStatus())
}

// start handles POST /api/calibration/start and begins a guided capture.
func (h *CalibrationHandler) start(w http.ResponseWriter, r *http.Request) {
	h.mapper.StartCalibration()
	writeJSON(w, http.StatusOK, h.mapper.CalibrationStatus())
}

// capture handles POST /api/calibration/points and records the current hand
// position for the named guided step.
func (h *CalibrationHandler) capture(w http.ResponseWriter, r *http.Request) {
	var req capturePointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	kind := mapping.PointKind(req.Point)
	switch kind {
	case mapping.PointCenter, mapping.PointLeft, mapping.PointRight,
		mapping.PointTop, mapping.PointBottom, mapping.PointNear, mapping.PointFar:
	default:
		writeError(w, http.StatusBadRequest, "Unknown calibration point")
		return
	}

	state := h.hands.Current()
	if !state.Tracking {
		writeError(w, http.StatusConflict, "No hand visible")
		return
	}

	pos := state.Position
	if state.SmoothedPosition != nil {
		pos = *state.SmoothedPosition
	}

	if err := h.mapper.AddCalibrationPoint(pos, kind); err != nil {
		if errors.Is(err, mapping.ErrNoCalibrationSession) {
			writeError(w, http.StatusConflict, "No calibration session in progress")
			return
		}
		writeError(w, http.StatusBadRequest, "Calibration points too close together")
		return
	}

	writeJSON(w, http.StatusOK, h.mapper.CalibrationStatus())
}

// reset handles DELETE /api/calibration and reverts to proportional mapping.
func (h *CalibrationHandler) reset(w http.ResponseWriter, r *http.Request) {
	h.mapper.ResetCalibration()
	w.WriteHeader(http.StatusNoContent)
}
