package track

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// Observation is the transient per-frame record fed to the tracker: the raw
// detection plus the derived hand attributes. Instances are drawn from an
// object pool and released after each frame, so the type must stay
// plain-data and resettable.
type Observation struct {
	Landmarks     *detector.HandLandmarks
	Gesture       gesture.Result
	Center        detector.Point3D
	FingerSpread  float64
	PinchDistance float64
	Pinched       bool
	Orientation   *detector.Orientation
}

// Clear zeroes the observation for reuse.
func (o *Observation) Clear() {
	*o = Observation{}
}

// Quality breaks down how trustworthy the current tracking output is.
type Quality struct {
	Smoothness         float64 `json:"smoothness"`
	Responsiveness     float64 `json:"responsiveness"`
	PredictionAccuracy float64 `json:"prediction_accuracy"`
	Overall            float64 `json:"overall"`
}

// Result is the tracker's per-frame output: filtered and smoothed position,
// velocity, a validated short-horizon prediction, gesture stability and
// quality metrics.
type Result struct {
	Tracking          bool
	Position          detector.Point3D
	Smoothed          detector.Point3D
	Predicted         *detector.Point3D
	Velocity          Velocity
	Confidence        float64
	Gesture           gesture.Kind
	GestureConfidence float64
	GestureStability  float64
	Quality           Quality
}

// emptyResult is the canonical not-tracking output.
func emptyResult() Result {
	return Result{Gesture: gesture.KindNoHand}
}

// TrackerConfig holds the tracker's tunables.
type TrackerConfig struct {
	// GraceWindow is how long filters survive a detection dropout before a
	// full reset.
	GraceWindow time.Duration

	// FastThreshold and SlowThreshold partition per-frame movement (px)
	// into responsive, normal and stable smoothing regimes.
	FastThreshold float64
	SlowThreshold float64

	// FastAlpha, BaseAlpha and SlowAlpha weight the previous smoothed
	// position in each regime; smaller follows the hand more eagerly.
	FastAlpha float64
	BaseAlpha float64
	SlowAlpha float64

	// PredictionHorizon is how far ahead to extrapolate, in seconds.
	PredictionHorizon float64

	// MinPredictionConfidence and MaxPredictionDistance validate the
	// extrapolation; failing either surfaces a nil prediction.
	MinPredictionConfidence float64
	MaxPredictionDistance   float64

	// HistorySize bounds the tracking history used for quality metrics.
	HistorySize int

	// StabilityWindow is how many recent gesture labels vote on stability.
	StabilityWindow int

	// Kalman configures both position and anchor filters.
	Kalman KalmanConfig
}

// DefaultTrackerConfig returns the standard tracking parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		GraceWindow:             time.Second,
		FastThreshold:           20.0,
		SlowThreshold:           5.0,
		FastAlpha:               0.3,
		BaseAlpha:               0.6,
		SlowAlpha:               0.8,
		PredictionHorizon:       0.1,
		MinPredictionConfidence: 0.3,
		MaxPredictionDistance:   50.0,
		HistorySize:             30,
		StabilityWindow:         5,
		Kalman:                  DefaultKalmanConfig(),
	}
}

type snapshot struct {
	position    detector.Point3D
	velocityMag float64
	timestamp   time.Time
}

// Tracker wraps two Kalman filters - one following the palm center, one the
// fingertip centroid - and layers adaptive smoothing, gesture stability and
// quality scoring on top.
type Tracker struct {
	config   TrackerConfig
	position *KalmanFilter
	anchor   *KalmanFilter

	smoothed    detector.Point3D
	hasSmoothed bool
	lastSeen    time.Time

	history  []snapshot
	gestures []gesture.Kind
}

// NewTracker creates a Tracker with the given config.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config:   config,
		position: NewKalmanFilter(config.Kalman),
		anchor:   NewKalmanFilter(config.Kalman),
	}
}

// Tracking reports whether the tracker currently has a lock on a hand.
func (t *Tracker) Tracking() bool {
	return t.position.Initialized()
}

// Update feeds one frame into the tracker. A nil observation is a detection
// miss: filters survive inside the grace window, then everything resets.
// The returned Result is the canonical empty state whenever obs is nil.
func (t *Tracker) Update(obs *Observation, now time.Time) Result {
	if obs == nil || obs.Landmarks == nil {
		return t.handleMiss(now)
	}

	score := obs.Landmarks.Score

	if !t.position.Initialized() {
		return t.acquire(obs, score, now)
	}

	est, err := t.position.Update(obs.Center, score, now)
	if err != nil {
		// The innovation covariance is always 3x3, so this cannot happen
		// through this path; treat it as a dropped frame regardless.
		return t.handleMiss(now)
	}

	if obs.Gesture.Kind != gesture.KindNoHand {
		if t.anchor.Initialized() {
			t.anchor.Update(obs.Landmarks.TipCentroid(), score, now)
		} else {
			t.anchor.Initialize(obs.Landmarks.TipCentroid(), score)
		}
	}

	t.smooth(est.Position)
	stability := t.gestureStability(obs.Gesture.Kind)
	predicted := t.predictAhead(est)

	t.pushHistory(snapshot{
		position:    est.Position,
		velocityMag: est.Velocity.Magnitude(),
		timestamp:   now,
	})
	t.lastSeen = now

	return Result{
		Tracking:          true,
		Position:          est.Position,
		Smoothed:          t.smoothed,
		Predicted:         predicted,
		Velocity:          est.Velocity,
		Confidence:        est.Confidence,
		Gesture:           obs.Gesture.Kind,
		GestureConfidence: obs.Gesture.Confidence * stability,
		GestureStability:  stability,
		Quality:           t.quality(),
	}
}

// AnchorEstimate returns the gesture-anchor filter's current estimate. The
// zero Estimate is returned before any gesture has been seen.
func (t *Tracker) AnchorEstimate() Estimate {
	return t.anchor.estimate()
}

// Reset discards all tracking state.
func (t *Tracker) Reset() {
	t.position.Reset()
	t.anchor.Reset()
	t.smoothed = detector.Point3D{}
	t.hasSmoothed = false
	t.lastSeen = time.Time{}
	t.history = nil
	t.gestures = nil
}

// acquire initializes the filters from the first valid observation.
func (t *Tracker) acquire(obs *Observation, score float64, now time.Time) Result {
	est, _ := t.position.Update(obs.Center, score, now)
	if obs.Gesture.Kind != gesture.KindNoHand {
		t.anchor.Initialize(obs.Landmarks.TipCentroid(), score)
	}

	t.smoothed = est.Position
	t.hasSmoothed = true
	stability := t.gestureStability(obs.Gesture.Kind)
	t.pushHistory(snapshot{position: est.Position, timestamp: now})
	t.lastSeen = now

	return Result{
		Tracking:          true,
		Position:          est.Position,
		Smoothed:          est.Position,
		Velocity:          est.Velocity,
		Confidence:        est.Confidence,
		Gesture:           obs.Gesture.Kind,
		GestureConfidence: obs.Gesture.Confidence * stability,
		GestureStability:  stability,
		Quality:           t.quality(),
	}
}

// handleMiss keeps the filters alive through brief dropouts and fully
// resets once the grace window has passed without a reacquisition.
func (t *Tracker) handleMiss(now time.Time) Result {
	if t.position.Initialized() && !t.lastSeen.IsZero() && now.Sub(t.lastSeen) > t.config.GraceWindow {
		t.Reset()
	}
	return emptyResult()
}

// smooth applies the adaptive exponential pass: eager for fast motion,
// sticky for slow drift.
func (t *Tracker) smooth(position detector.Point3D) {
	if !t.hasSmoothed {
		t.smoothed = position
		t.hasSmoothed = true
		return
	}

	movement := detector.Distance2D(position, t.smoothed)
	alpha := t.config.BaseAlpha
	switch {
	case movement > t.config.FastThreshold:
		alpha = t.config.FastAlpha
	case movement < t.config.SlowThreshold:
		alpha = t.config.SlowAlpha
	}

	t.smoothed = detector.Point3D{
		X: alpha*t.smoothed.X + (1-alpha)*position.X,
		Y: alpha*t.smoothed.Y + (1-alpha)*position.Y,
		Z: alpha*t.smoothed.Z + (1-alpha)*position.Z,
	}
}

// gestureStability records the current gesture label and returns the
// fraction of the recent window agreeing with it.
func (t *Tracker) gestureStability(kind gesture.Kind) float64 {
	t.gestures = append(t.gestures, kind)
	if len(t.gestures) > t.config.StabilityWindow {
		t.gestures = t.gestures[len(t.gestures)-t.config.StabilityWindow:]
	}

	matching := 0
	for _, k := range t.gestures {
		if k == kind {
			matching++
		}
	}
	return float64(matching) / float64(len(t.gestures))
}

// predictAhead extrapolates the filter state over the prediction horizon
// and validates the result. Predictions with too little confidence or an
// implausible jump from the current position come back nil.
func (t *Tracker) predictAhead(current Estimate) *detector.Point3D {
	future := t.position.PredictFuture(t.config.PredictionHorizon)
	if future.Confidence < t.config.MinPredictionConfidence {
		return nil
	}
	if detector.Distance2D(future.Position, current.Position) > t.config.MaxPredictionDistance {
		return nil
	}

	p := future.Position
	return &p
}

func (t *Tracker) pushHistory(s snapshot) {
	t.history = append(t.history, s)
	if len(t.history) > t.config.HistorySize {
		t.history = t.history[len(t.history)-t.config.HistorySize:]
	}
}

// predictionAccuracyPlaceholder stands in until predictions are scored
// against where the hand actually went.
const predictionAccuracyPlaceholder = 0.8

// quality derives the tracking quality sub-scores from recent history and
// the filter's innovation record.
func (t *Tracker) quality() Quality {
	q := Quality{
		Smoothness:         1,
		Responsiveness:     1,
		PredictionAccuracy: predictionAccuracyPlaceholder,
	}

	if len(t.history) >= 2 {
		mags := make([]float64, len(t.history))
		for i, s := range t.history {
			mags[i] = s.velocityMag
		}
		q.Smoothness = 1 / (1 + stat.Variance(mags, nil))
	}

	if mean := t.position.recentInnovationMean(); mean > 0 {
		q.Responsiveness = 1 / (1 + mean)
	}

	q.Overall = clampConfidence((q.Smoothness + q.Responsiveness + q.PredictionAccuracy) / 3)
	return q
}
