// Package hand maintains the authoritative per-frame hand state: classifier,
// tracker and mapper output merged into one record, with secondary-attribute
// smoothing and subscriber notification.
package hand

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/track"
)

// State is one frame's hand state. A new value is produced per Update; the
// previous value is retained by the Manager for delta smoothing and
// gesture-duration queries.
type State struct {
	Tracking          bool                    `json:"tracking"`
	Gesture           gesture.Kind            `json:"gesture"`
	Confidence        float64                 `json:"confidence"`
	Position          detector.Point3D        `json:"position"`
	SmoothedPosition  *detector.Point3D       `json:"smoothed_position,omitempty"`
	PredictedPosition *detector.Point3D       `json:"predicted_position,omitempty"`
	Velocity          track.Velocity          `json:"velocity"`
	FingerSpread      float64                 `json:"finger_spread"`
	Pinched           bool                    `json:"pinched"`
	PinchDistance     float64                 `json:"pinch_distance"`
	Orientation       *detector.Orientation   `json:"orientation,omitempty"`
	Quality           track.Quality           `json:"quality"`
	Landmarks         *detector.HandLandmarks `json:"landmarks,omitempty"`
	Timestamp         int64                   `json:"timestamp"`
}

// notTracking is the canonical state for frames with no usable hand.
func notTracking(now time.Time) State {
	return State{
		Gesture:   gesture.KindNoHand,
		Timestamp: now.UnixMilli(),
	}
}
