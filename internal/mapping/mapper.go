// Package mapping transforms camera-space hand positions into bounded
// virtual-scene coordinates, with optional user calibration and adaptively
// learned movement boundaries.
package mapping

import (
	"errors"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mudra/internal/detector"
)

var ErrInvalidDims = errors.New("dimensions must be positive")

// Mapping modes reported in Meta. ModeLegacy marks the guaranteed
// proportional fallback used when no mapper is available.
const (
	ModeProportional = "proportional"
	ModeCalibrated   = "calibrated"
	ModeLegacy       = "legacy"
)

const (
	highConfidence     = 0.8
	fastSpeedPx        = 50.0
	fastScale          = 0.9
	jitterThresholdPx  = 25.0
	jitterPenalty      = 0.8
	outOfBoundsPenalty = 0.9

	reachFraction    = 0.85
	boundaryPadding  = 0.5
	boundaryInterval = 10
	boundaryWindow   = 100
	lowQuantile      = 0.05
	highQuantile     = 0.95

	minResolutionScale = 0.5
	maxResolutionScale = 2.0

	defaultVideoWidth  = 640
	defaultVideoHeight = 480
)

// Dims describes a video source or rendering surface size in pixels.
type Dims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dims) valid() bool { return d.Width > 0 && d.Height > 0 }

func (d Dims) aspect() float64 { return float64(d.Width) / float64(d.Height) }

// Meta carries diagnostic detail about a single mapping.
type Meta struct {
	Mode    string  `json:"mode"`
	Scale   float64 `json:"scale"`
	Speed   float64 `json:"speed"`
	Clamped bool    `json:"clamped"`
}

// Mapped is the result of transforming one camera-space position.
type Mapped struct {
	Position detector.Point3D `json:"position"`
	Quality  float64          `json:"quality"`
	Valid    bool             `json:"valid"`
	Meta     Meta             `json:"meta"`
}

// MapperConfig bounds the virtual scene and sets the validity cutoff.
type MapperConfig struct {
	// SceneWidth, SceneHeight and SceneDepth are the extents of the
	// virtual-scene box, centered on the origin.
	SceneWidth  float64
	SceneHeight float64
	SceneDepth  float64

	// ValidThreshold is the minimum quality for a Mapped to be Valid.
	ValidThreshold float64
}

// DefaultMapperConfig returns the mapper configuration used by the pipeline.
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		SceneWidth:     8.0,
		SceneHeight:    6.0,
		SceneDepth:     4.0,
		ValidThreshold: 0.7,
	}
}

// Mapper converts camera-space hand positions into scene coordinates. It
// prefers a user calibration when one is complete and otherwise maps
// proportionally into the scene box, clamping every result to a
// natural-movement boundary learned from recent samples.
type Mapper struct {
	config MapperConfig
	store  SettingsStore

	video            Dims
	surface          Dims
	aspectCorrection float64
	resolutionScale  float64
	initialized      bool

	calibration *Calibration
	session     *calibrationSession

	bounds      boundingBox
	samples     []detector.Point3D
	sinceUpdate int

	prevInput detector.Point3D
	hasPrev   bool

	mu sync.Mutex
}

// NewMapper creates a mapper. The store may be nil, in which case
// calibration is kept in memory only.
func NewMapper(config MapperConfig, store SettingsStore) *Mapper {
	return &Mapper{
		config:           config,
		store:            store,
		aspectCorrection: 1.0,
		resolutionScale:  1.0,
		bounds:           reachBounds(config),
	}
}

// reachBounds seeds the natural-movement box at a comfortable fraction of
// the scene extents.
func reachBounds(config MapperConfig) boundingBox {
	half := detector.Point3D{
		X: config.SceneWidth / 2 * reachFraction,
		Y: config.SceneHeight / 2 * reachFraction,
		Z: config.SceneDepth / 2 * reachFraction,
	}
	return boundingBox{
		min: detector.Point3D{X: -half.X, Y: -half.Y, Z: -half.Z},
		max: half,
	}
}

// Initialize records the camera resolution and rendering surface size and
// loads any persisted calibration.
func (m *Mapper) Initialize(video, surface Dims) error {
	if !video.valid() || !surface.valid() {
		return ErrInvalidDims
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.video = video
	m.surface = surface
	m.recomputeFactors()
	m.initialized = true
	m.loadCalibration()
	return nil
}

// Resize updates the rendering surface dimensions, preserving calibration
// and learned boundaries. Invalid dimensions are ignored.
func (m *Mapper) Resize(surface Dims) {
	if !surface.valid() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.surface = surface
	if m.video.valid() {
		m.recomputeFactors()
	}
}

func (m *Mapper) recomputeFactors() {
	m.aspectCorrection = m.video.aspect() / m.surface.aspect()
	m.resolutionScale = clampRange(
		float64(m.surface.Width)/float64(m.video.Width),
		minResolutionScale, maxResolutionScale,
	)
}

// Initialized reports whether Initialize has succeeded.
func (m *Mapper) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Map transforms one camera-space position into scene coordinates. It never
// fails: before Initialize it assumes a 640x480 source with unit scaling.
func (m *Mapper) Map(pos detector.Point3D, confidence float64) Mapped {
	m.mu.Lock()
	defer m.mu.Unlock()

	speed := 0.0
	if m.hasPrev {
		speed = detector.Distance2D(pos, m.prevInput)
	}

	scale := 1.0
	if confidence < highConfidence {
		scale *= confidence / highConfidence
	}
	if speed > fastSpeedPx {
		scale *= fastScale
	}

	var mapped detector.Point3D
	mode := ModeProportional
	if m.calibration != nil && m.calibration.Complete {
		mapped = m.applyCalibration(pos, scale)
		mode = ModeCalibrated
	} else {
		mapped = m.applyProportional(pos, scale)
	}

	quality := clampRange(confidence, 0, 1)
	if !m.bounds.contains(mapped) {
		quality *= outOfBoundsPenalty
	}
	if m.hasPrev && speed > jitterThresholdPx {
		quality *= jitterPenalty
	}

	clamped := m.bounds.clamp(mapped)

	if confidence >= highConfidence {
		m.recordSample(mapped)
	}
	m.prevInput = pos
	m.hasPrev = true

	return Mapped{
		Position: clamped,
		Quality:  quality,
		Valid:    quality > m.config.ValidThreshold,
		Meta: Meta{
			Mode:    mode,
			Scale:   scale,
			Speed:   speed,
			Clamped: clamped != mapped,
		},
	}
}

// applyProportional maps camera pixels into the scene box. Camera Y grows
// downward while scene Y grows upward, so the Y axis is inverted; depth is
// MediaPipe's normalized Z, negative toward the camera, so it is inverted
// too.
func (m *Mapper) applyProportional(pos detector.Point3D, scale float64) detector.Point3D {
	video := m.video
	if !video.valid() {
		video = Dims{Width: defaultVideoWidth, Height: defaultVideoHeight}
	}

	nx := pos.X/float64(video.Width) - 0.5
	ny := pos.Y/float64(video.Height) - 0.5
	return detector.Point3D{
		X: nx * m.config.SceneWidth * m.aspectCorrection * m.resolutionScale * scale,
		Y: -ny * m.config.SceneHeight * m.resolutionScale * scale,
		Z: -pos.Z * m.config.SceneDepth * scale,
	}
}

func (m *Mapper) applyCalibration(pos detector.Point3D, scale float64) detector.Point3D {
	c := m.calibration
	return detector.Point3D{
		X: (pos.X - c.Center.X) * c.ScaleX * scale,
		Y: -(pos.Y - c.Center.Y) * c.ScaleY * scale,
		Z: -(pos.Z - c.Center.Z) * c.ScaleZ * scale,
	}
}

// recordSample keeps the pre-clamp position for boundary estimation and
// re-estimates the natural-movement box after every boundaryInterval
// accepted samples.
func (m *Mapper) recordSample(mapped detector.Point3D) {
	m.samples = append(m.samples, mapped)
	if len(m.samples) > boundaryWindow {
		m.samples = m.samples[len(m.samples)-boundaryWindow:]
	}

	m.sinceUpdate++
	if m.sinceUpdate >= boundaryInterval && len(m.samples) >= boundaryInterval {
		m.updateBounds()
		m.sinceUpdate = 0
	}
}

func (m *Mapper) updateBounds() {
	xs := make([]float64, len(m.samples))
	ys := make([]float64, len(m.samples))
	zs := make([]float64, len(m.samples))
	for i, s := range m.samples {
		xs[i], ys[i], zs[i] = s.X, s.Y, s.Z
	}

	m.bounds.min.X, m.bounds.max.X = axisBounds(xs, m.config.SceneWidth/2)
	m.bounds.min.Y, m.bounds.max.Y = axisBounds(ys, m.config.SceneHeight/2)
	m.bounds.min.Z, m.bounds.max.Z = axisBounds(zs, m.config.SceneDepth/2)
}

// axisBounds estimates one axis of the natural-movement box as the padded
// 5th-95th percentile of recent samples, kept inside the scene extent.
func axisBounds(values []float64, half float64) (lo, hi float64) {
	sort.Float64s(values)
	lo = clampRange(stat.Quantile(lowQuantile, stat.Empirical, values, nil)-boundaryPadding, -half, half)
	hi = clampRange(stat.Quantile(highQuantile, stat.Empirical, values, nil)+boundaryPadding, -half, half)
	return lo, hi
}

type boundingBox struct {
	min detector.Point3D
	max detector.Point3D
}

func (b boundingBox) contains(p detector.Point3D) bool {
	return p.X >= b.min.X && p.X <= b.max.X &&
		p.Y >= b.min.Y && p.Y <= b.max.Y &&
		p.Z >= b.min.Z && p.Z <= b.max.Z
}

func (b boundingBox) clamp(p detector.Point3D) detector.Point3D {
	return detector.Point3D{
		X: clampRange(p.X, b.min.X, b.max.X),
		Y: clampRange(p.Y, b.min.Y, b.max.Y),
		Z: clampRange(p.Z, b.min.Z, b.max.Z),
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
