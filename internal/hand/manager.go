package hand

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/mapping"
	"github.com/ayusman/mudra/internal/pool"
	"github.com/ayusman/mudra/internal/track"
)

// observationPool names the pool of transient per-frame tracker records.
const observationPool = "observation"

// observationPoolSize bounds pooled observations; one is in flight per frame
// plus headroom for subscribers that re-enter the pipeline.
const observationPoolSize = 4

// ManagerConfig holds the state manager's tunables.
type ManagerConfig struct {
	// SmoothingFactor weights the previous state when smoothing finger
	// spread and orientation; larger is steadier.
	SmoothingFactor float64

	// StableConfidence is the minimum confidence for GestureStable.
	StableConfidence float64

	// PinchThreshold is the thumb-index distance in pixels below which the
	// hand counts as pinched.
	PinchThreshold float64

	// Tracker configures the wrapped predictive tracker.
	Tracker track.TrackerConfig
}

// DefaultManagerConfig returns the standard state manager parameters.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SmoothingFactor:  0.7,
		StableConfidence: 0.6,
		PinchThreshold:   30.0,
		Tracker:          track.DefaultTrackerConfig(),
	}
}

// Manager derives the per-frame hand state. It owns the predictive tracker,
// draws transient observation records from the pool, and notifies
// subscribers exactly once per Update.
type Manager struct {
	config  ManagerConfig
	tracker *track.Tracker
	mapper  *mapping.Mapper
	pools   *pool.Manager

	current      State
	gestureStart time.Time
	subscribers  []func(State)

	mu sync.Mutex
}

// NewManager creates a state manager. The mapper may be nil, in which case
// MapToScene always uses the legacy fallback.
func NewManager(config ManagerConfig, pools *pool.Manager, mapper *mapping.Mapper) *Manager {
	if pools == nil {
		pools = pool.NewManager()
	}
	pools.Register(observationPool, observationPoolSize,
		func() any { return &track.Observation{} },
		func(obj any) {
			if obs, ok := obj.(*track.Observation); ok {
				obs.Clear()
			}
		},
	)

	return &Manager{
		config:  config,
		tracker: track.NewTracker(config.Tracker),
		mapper:  mapper,
		pools:   pools,
		current: notTracking(time.Now()),
	}
}

// Update is the single per-frame entry point. Absent landmarks or a no-hand
// classification produce the canonical not-tracking state and still drive
// the tracker's dropout handling; otherwise the hand's secondary attributes
// are derived from the landmarks, the tracker runs, and the merged state
// becomes current. Subscribers are notified synchronously, after the state
// is finalized.
func (m *Manager) Update(landmarks *detector.HandLandmarks, g gesture.Result, now time.Time) State {
	m.mu.Lock()

	var state State
	if landmarks == nil || g.Kind == gesture.KindNoHand {
		m.tracker.Update(nil, now)
		state = notTracking(now)
	} else {
		state = m.observe(landmarks, g, now)
	}

	if !state.Tracking || !m.current.Tracking || state.Gesture != m.current.Gesture {
		m.gestureStart = now
	}
	m.current = state

	subscribers := make([]func(State), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, notify := range subscribers {
		notify(state)
	}
	return state
}

// observe runs one tracked frame through the pool and tracker and merges
// the outputs. Caller holds the lock.
func (m *Manager) observe(landmarks *detector.HandLandmarks, g gesture.Result, now time.Time) State {
	obs := m.acquireObservation()
	obs.Landmarks = landmarks
	obs.Gesture = g
	obs.Center = landmarks.Center()
	obs.FingerSpread = landmarks.FingerSpread()
	obs.PinchDistance = landmarks.PinchDistance()
	obs.Pinched = obs.PinchDistance < m.config.PinchThreshold
	orientation := landmarks.EstimateOrientation()
	obs.Orientation = &orientation

	result := m.tracker.Update(obs, now)

	spread := obs.FingerSpread
	pinchDistance := obs.PinchDistance
	pinched := obs.Pinched
	m.pools.Release(obs)

	if !result.Tracking {
		return notTracking(now)
	}

	smoothed := result.Smoothed
	state := State{
		Tracking:          result.Tracking,
		Gesture:           g.Kind,
		Confidence:        g.Confidence,
		Position:          result.Position,
		SmoothedPosition:  &smoothed,
		PredictedPosition: result.Predicted,
		Velocity:          result.Velocity,
		FingerSpread:      spread,
		Pinched:           pinched,
		PinchDistance:     pinchDistance,
		Orientation:       &orientation,
		Quality:           result.Quality,
		Landmarks:         landmarks,
		Timestamp:         now.UnixMilli(),
	}

	// Secondary attributes lag the raw values so finger flutter and wrist
	// wobble do not ripple through downstream consumers.
	if m.current.Tracking {
		f := m.config.SmoothingFactor
		state.FingerSpread = f*m.current.FingerSpread + (1-f)*spread
		if m.current.Orientation != nil {
			state.Orientation = &detector.Orientation{
				Pitch: f*m.current.Orientation.Pitch + (1-f)*orientation.Pitch,
				Yaw:   f*m.current.Orientation.Yaw + (1-f)*orientation.Yaw,
				Roll:  f*m.current.Orientation.Roll + (1-f)*orientation.Roll,
			}
		}
	}
	return state
}

func (m *Manager) acquireObservation() *track.Observation {
	obj, err := m.pools.Get(observationPool)
	if err == nil {
		if obs, ok := obj.(*track.Observation); ok {
			return obs
		}
	}
	return &track.Observation{}
}

// Current returns the most recent state.
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers a callback invoked synchronously with every finalized
// state, once per Update.
func (m *Manager) Subscribe(notify func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, notify)
}

// GestureStable reports whether the current gesture has been held with
// sufficient confidence for at least minDuration.
func (m *Manager) GestureStable(minDuration time.Duration, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current.Tracking {
		return false
	}
	if m.current.Confidence < m.config.StableConfidence {
		return false
	}
	return now.Sub(m.gestureStart) >= minDuration
}

// MapToScene converts a camera-space position to scene coordinates. It
// prefers an initialized mapper whose result is valid and otherwise falls
// back to a fixed proportional mapping that cannot fail.
func (m *Manager) MapToScene(pos detector.Point3D, confidence float64) mapping.Mapped {
	if m.mapper != nil && m.mapper.Initialized() {
		out := m.mapper.Map(pos, confidence)
		if out.Valid {
			return out
		}
	}
	return legacyMap(pos, confidence)
}

// legacyMap is the calibration-free fallback: a straight proportional map
// of a 640x480 frame onto the default scene box.
func legacyMap(pos detector.Point3D, confidence float64) mapping.Mapped {
	scene := mapping.DefaultMapperConfig()
	nx := pos.X/640 - 0.5
	ny := pos.Y/480 - 0.5

	quality := confidence
	if quality < 0 {
		quality = 0
	} else if quality > 1 {
		quality = 1
	}

	return mapping.Mapped{
		Position: detector.Point3D{
			X: nx * scene.SceneWidth,
			Y: -ny * scene.SceneHeight,
			Z: -pos.Z * scene.SceneDepth,
		},
		Quality: quality,
		Valid:   true,
		Meta:    mapping.Meta{Mode: mapping.ModeLegacy, Scale: 1.0},
	}
}

// Reset clears the tracker and returns the manager to the not-tracking
// state.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.Reset()
	m.current = notTracking(time.Now())
	m.gestureStart = time.Time{}
}
