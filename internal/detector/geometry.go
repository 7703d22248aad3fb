package detector

import "math"

// Orientation describes the hand's attitude in degrees. Pitch tilts the
// fingers toward or away from the camera, yaw turns the palm left or right,
// roll rotates the hand within the image plane.
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Center returns the palm centroid: the mean of the wrist and the five
// finger base knuckles. More stable under finger motion than a full-hand
// centroid.
func (h *HandLandmarks) Center() Point3D {
	indices := []int{Wrist, ThumbMCP, IndexMCP, MiddleMCP, RingMCP, PinkyMCP}

	var c Point3D
	for _, i := range indices {
		c.X += h.Points[i].X
		c.Y += h.Points[i].Y
		c.Z += h.Points[i].Z
	}
	n := float64(len(indices))
	c.X /= n
	c.Y /= n
	c.Z /= n
	return c
}

// TipCentroid returns the centroid of the five fingertips. Used as the
// anchor point for gesture-focused tracking, since it moves earlier and
// farther than the palm during gesture transitions.
func (h *HandLandmarks) TipCentroid() Point3D {
	tips := []int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}

	var c Point3D
	for _, i := range tips {
		c.X += h.Points[i].X
		c.Y += h.Points[i].Y
		c.Z += h.Points[i].Z
	}
	n := float64(len(tips))
	c.X /= n
	c.Y /= n
	c.Z /= n
	return c
}

// FingerSpread returns how far apart the four fingers are held, as the mean
// distance between adjacent fingertips divided by the hand scale (wrist to
// middle knuckle). Roughly 0.3 for fingers together and 0.9 fully fanned.
func (h *HandLandmarks) FingerSpread() float64 {
	scale := Distance2D(h.Points[Wrist], h.Points[MiddleMCP])
	if scale < 1e-10 {
		return 0
	}

	pairs := [][2]int{
		{IndexTip, MiddleTip},
		{MiddleTip, RingTip},
		{RingTip, PinkyTip},
	}
	var sum float64
	for _, p := range pairs {
		sum += Distance2D(h.Points[p[0]], h.Points[p[1]])
	}
	return sum / float64(len(pairs)) / scale
}

// PinchDistance returns the thumb-tip to index-tip distance in pixels.
func (h *HandLandmarks) PinchDistance() float64 {
	return Distance2D(h.Points[ThumbTip], h.Points[IndexTip])
}

// EstimateOrientation derives pitch, yaw and roll from two palm axes: the
// wrist-to-middle-knuckle forward axis and the index-to-pinky cross axis.
// Depth comes from the normalized Z channel, so pitch and yaw are relative
// measures rather than camera-calibrated angles.
func (h *HandLandmarks) EstimateOrientation() Orientation {
	wrist := h.Points[Wrist]
	middle := h.Points[MiddleMCP]
	index := h.Points[IndexMCP]
	pinky := h.Points[PinkyMCP]

	forward := Point3D{
		X: middle.X - wrist.X,
		Y: middle.Y - wrist.Y,
		Z: middle.Z - wrist.Z,
	}
	cross := Point3D{
		X: pinky.X - index.X,
		Y: pinky.Y - index.Y,
		Z: pinky.Z - index.Z,
	}

	scale := Distance2D(wrist, middle)
	if scale < 1e-10 {
		return Orientation{}
	}

	// Z is normalized depth; bring it to the same magnitude as the planar
	// axes before taking angles against them.
	forwardPlane := math.Hypot(forward.X, forward.Y)
	crossPlane := math.Hypot(cross.X, cross.Y)

	const deg = 180 / math.Pi
	return Orientation{
		Pitch: math.Atan2(forward.Z*scale, forwardPlane) * deg,
		Yaw:   math.Atan2(cross.Z*scale, crossPlane) * deg,
		Roll:  math.Atan2(cross.Y, cross.X) * deg,
	}
}
