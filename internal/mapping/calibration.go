package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

var ErrNoCalibrationSession = errors.New("no calibration session in progress")

// settingsKey is where the calibration record is persisted.
const settingsKey = "mapper.calibration"

const minSpan = 1e-6

// SettingsStore persists small key/value records. Get returns an empty
// string for keys that have never been set.
type SettingsStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// PointKind identifies one guided calibration capture.
type PointKind string

const (
	PointCenter PointKind = "center"
	PointLeft   PointKind = "left"
	PointRight  PointKind = "right"
	PointTop    PointKind = "top"
	PointBottom PointKind = "bottom"
	PointNear   PointKind = "near"
	PointFar    PointKind = "far"
)

// calibrationOrder lists every required capture in guided order.
var calibrationOrder = []PointKind{
	PointCenter, PointLeft, PointRight, PointTop, PointBottom, PointNear, PointFar,
}

// Calibration is the persisted result of a completed guided capture:
// per-axis scales that map camera-space offsets from the captured center
// onto the scene box.
type Calibration struct {
	Complete   bool             `json:"complete"`
	Center     detector.Point3D `json:"center"`
	ScaleX     float64          `json:"scale_x"`
	ScaleY     float64          `json:"scale_y"`
	ScaleZ     float64          `json:"scale_z"`
	CapturedAt time.Time        `json:"captured_at"`
}

// CalibrationStatus reports progress through the guided capture.
type CalibrationStatus struct {
	Active   bool        `json:"active"`
	Complete bool        `json:"complete"`
	Captured []PointKind `json:"captured"`
	Missing  []PointKind `json:"missing"`
}

type calibrationSession struct {
	points    map[PointKind]detector.Point3D
	startedAt time.Time
}

// StartCalibration begins a guided capture. Any in-progress session is
// discarded.
func (m *Mapper) StartCalibration() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = &calibrationSession{
		points:    make(map[PointKind]detector.Point3D, len(calibrationOrder)),
		startedAt: time.Now(),
	}
}

// AddCalibrationPoint records one capture; re-capturing a kind overwrites
// the earlier point. When the final point lands the calibration is derived
// and persisted.
func (m *Mapper) AddCalibrationPoint(pos detector.Point3D, kind PointKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoCalibrationSession
	}
	if !validPointKind(kind) {
		return fmt.Errorf("unknown calibration point %q", kind)
	}

	m.session.points[kind] = pos
	if len(m.session.points) < len(calibrationOrder) {
		return nil
	}
	return m.finishCalibration()
}

func validPointKind(kind PointKind) bool {
	for _, k := range calibrationOrder {
		if k == kind {
			return true
		}
	}
	return false
}

// finishCalibration derives per-axis scales from the captured spans. The
// session stays open on a degenerate horizontal or vertical span so the
// offending points can be re-captured; a degenerate depth span falls back
// to the proportional depth scale, since depth captures are far noisier.
func (m *Mapper) finishCalibration() error {
	points := m.session.points

	spanX := math.Abs(points[PointRight].X - points[PointLeft].X)
	spanY := math.Abs(points[PointBottom].Y - points[PointTop].Y)
	spanZ := math.Abs(points[PointFar].Z - points[PointNear].Z)
	if spanX < minSpan {
		return fmt.Errorf("degenerate horizontal calibration span %g", spanX)
	}
	if spanY < minSpan {
		return fmt.Errorf("degenerate vertical calibration span %g", spanY)
	}

	scaleZ := m.config.SceneDepth
	if spanZ >= minSpan {
		scaleZ = m.config.SceneDepth / spanZ
	}

	m.calibration = &Calibration{
		Complete:   true,
		Center:     points[PointCenter],
		ScaleX:     m.config.SceneWidth / spanX,
		ScaleY:     m.config.SceneHeight / spanY,
		ScaleZ:     scaleZ,
		CapturedAt: time.Now(),
	}
	m.session = nil
	m.saveCalibration()
	return nil
}

// ResetCalibration clears persisted calibration data and reverts to
// proportional mapping.
func (m *Mapper) ResetCalibration() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calibration = nil
	m.session = nil
	if m.store == nil {
		return
	}
	if err := m.store.Delete(settingsKey); err != nil {
		log.Printf("mapper: failed to delete calibration: %v", err)
	}
}

// CalibrationComplete reports whether a completed calibration is loaded.
func (m *Mapper) CalibrationComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calibration != nil && m.calibration.Complete
}

// CalibrationStatus reports guided-capture progress.
func (m *Mapper) CalibrationStatus() CalibrationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := CalibrationStatus{
		Complete: m.calibration != nil && m.calibration.Complete,
	}
	if m.session == nil {
		return status
	}

	status.Active = true
	for _, kind := range calibrationOrder {
		if _, ok := m.session.points[kind]; ok {
			status.Captured = append(status.Captured, kind)
		} else {
			status.Missing = append(status.Missing, kind)
		}
	}
	return status
}

// loadCalibration restores a persisted calibration. Failures are logged and
// the mapper falls back to proportional mapping.
func (m *Mapper) loadCalibration() {
	if m.store == nil {
		return
	}

	raw, err := m.store.Get(settingsKey)
	if err != nil {
		log.Printf("mapper: failed to load calibration: %v", err)
		return
	}
	if raw == "" {
		return
	}

	var cal Calibration
	if err := json.Unmarshal([]byte(raw), &cal); err != nil {
		log.Printf("mapper: ignoring malformed calibration record: %v", err)
		return
	}
	if cal.Complete {
		m.calibration = &cal
	}
}

// saveCalibration persists the current calibration. Failures are logged and
// skipped; they must never break the frame path.
func (m *Mapper) saveCalibration() {
	if m.store == nil || m.calibration == nil {
		return
	}

	raw, err := json.Marshal(m.calibration)
	if err != nil {
		log.Printf("mapper: failed to encode calibration: %v", err)
		return
	}
	if err := m.store.Set(settingsKey, string(raw)); err != nil {
		log.Printf("mapper: failed to save calibration: %v", err)
	}
}
