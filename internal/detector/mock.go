package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	hands []HandLandmarks
	err   error
	mu    sync.Mutex
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Fixture geometry. Hands are built in camera pixel space around a caller
// supplied palm center, sized like a hand at typical webcam distance:
// knuckle row ~80px above the wrist, finger segments ~28px.
const (
	fixtureSegment = 28.0 // knuckle-to-knuckle finger segment length
	fixtureReach   = 78.0 // knuckle-to-tip distance when extended
	fixtureCurl    = 16.0 // knuckle-to-tip distance when curled
)

// handPose describes which fingers are extended in a fixture.
type handPose struct {
	thumb  bool
	index  bool
	middle bool
	ring   bool
	pinky  bool
}

// fingerJoints is the (base knuckle, mid joint, second joint, tip) index
// quadruple for each of the four fingers.
var fingerJoints = [4][4]int{
	{IndexMCP, IndexPIP, IndexDIP, IndexTip},
	{MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip},
	{RingMCP, RingPIP, RingDIP, RingTip},
	{PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip},
}

// buildHand constructs a right hand at palm center (x, y), fingers pointing
// up in image coordinates (toward smaller Y), with each finger extended or
// curled per pose. Extended tips sit well past the 1.2x knuckle-ratio used
// by extension checks; curled tips sit well inside it.
func buildHand(x, y float64, pose handPose) HandLandmarks {
	lm := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	lm.Points[Wrist] = Point3D{X: x, Y: y + 80, Z: 0}

	// Knuckle row, index on the +X side for a right hand facing the camera.
	baseX := []float64{x + 36, x + 12, x - 12, x - 36}
	baseY := []float64{y, y - 4, y, y + 4}
	extended := []bool{pose.index, pose.middle, pose.ring, pose.pinky}

	for f, joints := range fingerJoints {
		base := Point3D{X: baseX[f], Y: baseY[f], Z: 0}
		lm.Points[joints[0]] = base
		lm.Points[joints[1]] = Point3D{X: base.X, Y: base.Y - fixtureSegment, Z: -0.02}

		if extended[f] {
			lm.Points[joints[2]] = Point3D{X: base.X, Y: base.Y - fixtureSegment*2, Z: -0.03}
			lm.Points[joints[3]] = Point3D{X: base.X, Y: base.Y - fixtureReach, Z: -0.03}
		} else {
			// Folded: tip drops back toward the palm.
			lm.Points[joints[2]] = Point3D{X: base.X + 6, Y: base.Y - 10, Z: -0.05}
			lm.Points[joints[3]] = Point3D{X: base.X + 8, Y: base.Y + fixtureCurl - 3, Z: -0.04}
		}
	}

	// Thumb on the +X side of the palm.
	lm.Points[ThumbCMC] = Point3D{X: x + 48, Y: y + 52, Z: 0}
	thumbBase := Point3D{X: x + 62, Y: y + 32, Z: 0}
	lm.Points[ThumbMCP] = thumbBase
	if pose.thumb {
		lm.Points[ThumbIP] = Point3D{X: thumbBase.X + 18, Y: thumbBase.Y - 24, Z: 0.01}
		lm.Points[ThumbTip] = Point3D{X: thumbBase.X + 34, Y: thumbBase.Y - 48, Z: 0.01}
	} else {
		lm.Points[ThumbIP] = Point3D{X: thumbBase.X - 8, Y: thumbBase.Y - 28, Z: -0.02}
		lm.Points[ThumbTip] = Point3D{X: thumbBase.X - 16, Y: thumbBase.Y - 12, Z: -0.04}
	}

	return lm
}

// OpenPalmLandmarks returns a hand with all five fingers extended,
// palm centered at (x, y) in pixels.
func OpenPalmLandmarks(x, y float64) HandLandmarks {
	return buildHand(x, y, handPose{thumb: true, index: true, middle: true, ring: true, pinky: true})
}

// FistLandmarks returns a hand with all five fingers curled.
func FistLandmarks(x, y float64) HandLandmarks {
	return buildHand(x, y, handPose{})
}

// PointLandmarks returns a hand with only the index finger extended.
func PointLandmarks(x, y float64) HandLandmarks {
	return buildHand(x, y, handPose{index: true})
}

// VictoryLandmarks returns a hand with index and middle fingers extended.
func VictoryLandmarks(x, y float64) HandLandmarks {
	return buildHand(x, y, handPose{index: true, middle: true})
}

// ThumbsUpLandmarks returns a hand with only the thumb extended.
func ThumbsUpLandmarks(x, y float64) HandLandmarks {
	return buildHand(x, y, handPose{thumb: true})
}

// RockOnLandmarks returns a hand with index and pinky extended, middle and
// ring curled.
func RockOnLandmarks(x, y float64) HandLandmarks {
	return buildHand(x, y, handPose{index: true, pinky: true})
}

// PinchLandmarks returns a hand whose thumb and index tips are gap pixels
// apart, with the remaining fingers curled.
func PinchLandmarks(x, y, gap float64) HandLandmarks {
	lm := buildHand(x, y, handPose{thumb: true, index: true})
	indexTip := lm.Points[IndexTip]
	lm.Points[ThumbTip] = Point3D{X: indexTip.X + gap, Y: indexTip.Y, Z: indexTip.Z}
	return lm
}

// OKSignLandmarks returns a hand whose thumb and index tips touch in a ring
// while the middle, ring and pinky fingers stay extended. The index curls to
// meet the thumb, so it does not count as extended.
func OKSignLandmarks(x, y float64) HandLandmarks {
	lm := buildHand(x, y, handPose{thumb: true, middle: true, ring: true, pinky: true})
	ring := Point3D{X: x + 40, Y: y - 24, Z: -0.02}
	lm.Points[IndexTip] = ring
	lm.Points[ThumbTip] = Point3D{X: ring.X + 6, Y: ring.Y + 2, Z: ring.Z}
	return lm
}
