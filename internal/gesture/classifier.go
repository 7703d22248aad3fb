// Package gesture provides rule-based hand gesture classification and
// gesture sequence detection.
package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// Kind identifies a classified hand pose.
type Kind string

const (
	KindOpenHand   Kind = "open_hand"
	KindClosedFist Kind = "closed_fist"
	KindPinch      Kind = "pinch"
	KindPoint      Kind = "point"
	KindVictory    Kind = "victory"
	KindThumbsUp   Kind = "thumbs_up"
	KindRockOn     Kind = "rock_on"
	KindOKSign     Kind = "ok_sign"
	// KindNoHand is the absence state: no hand in frame, or no detector
	// matched. It is a normal result, never an error.
	KindNoHand Kind = "no_hand"
)

// ValidKind reports whether s names a classifiable pose. The absence state
// is not a valid combo sequence element.
func ValidKind(s string) bool {
	switch Kind(s) {
	case KindOpenHand, KindClosedFist, KindPinch, KindPoint,
		KindVictory, KindThumbsUp, KindRockOn, KindOKSign:
		return true
	}
	return false
}

// Result is the outcome of classifying one frame's landmarks.
type Result struct {
	Kind       Kind               `json:"kind"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details,omitempty"`
}

const (
	// extensionRatio separates an extended finger from a curled one: the
	// knuckle-to-tip distance must exceed this multiple of the
	// knuckle-to-middle-joint distance.
	extensionRatio = 1.2

	// pinchThreshold is the thumb-to-index tip distance in pixels below
	// which a pinch registers.
	pinchThreshold = 30.0

	// pinchFalloff converts pinch distance to confidence: 1 - d/falloff.
	pinchFalloff = 100.0

	// smoothedConfidenceCap bounds the confidence of temporally smoothed
	// results so a run of identical frames never reads as certainty.
	smoothedConfidenceCap = 0.95
)

// ClassifierConfig holds tunables for the classifier's temporal smoothing.
type ClassifierConfig struct {
	// WindowSize is the number of recent raw results kept for majority
	// smoothing.
	WindowSize int

	// MinSamples is the number of samples required before smoothing kicks
	// in; below it raw results pass through.
	MinSamples int
}

// DefaultClassifierConfig returns the standard smoothing window.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		WindowSize: 5,
		MinSamples: 3,
	}
}

type rawSample struct {
	kind       Kind
	confidence float64
}

// Classifier turns 21-point hand landmarks into a gesture Result. Each call
// evaluates a fixed set of pose detectors and smooths the winner over a
// short sliding window so single-frame flickers do not surface.
type Classifier struct {
	config ClassifierConfig
	window []rawSample
}

// NewClassifier creates a Classifier with the given config.
func NewClassifier(config ClassifierConfig) *Classifier {
	if config.WindowSize < 1 {
		config.WindowSize = 1
	}
	if config.MinSamples < 1 {
		config.MinSamples = 1
	}
	return &Classifier{
		config: config,
		window: make([]rawSample, 0, config.WindowSize),
	}
}

// Classify evaluates one frame of landmarks and returns the smoothed gesture.
// A nil or short landmark list returns {KindNoHand, 0} immediately without
// touching the smoothing window.
func (c *Classifier) Classify(points []detector.Point3D) Result {
	if len(points) < detector.NumLandmarks {
		return Result{Kind: KindNoHand, Confidence: 0}
	}

	fingers := extensionState(points)
	details := map[string]float64{
		"extended_fingers": float64(fingers.extendedCount()),
		"pinch_distance":   detector.Distance2D(points[detector.ThumbTip], points[detector.IndexTip]),
	}

	// Evaluate every detector; the highest confidence wins, with the more
	// specific pose preferred on an exact tie (OK sign over plain pinch).
	raw := Result{Kind: KindNoHand, Confidence: 0}
	for _, d := range poseDetectors {
		conf, ok := d.match(points, fingers)
		if !ok {
			continue
		}
		conf = clamp01(conf)
		details[string(d.kind)] = conf
		if conf > raw.Confidence {
			raw.Kind = d.kind
			raw.Confidence = conf
		}
	}
	raw.Details = details

	c.push(rawSample{kind: raw.Kind, confidence: raw.Confidence})
	if len(c.window) < c.config.MinSamples {
		return raw
	}
	return c.smoothed(details)
}

// Reset clears the smoothing window.
func (c *Classifier) Reset() {
	c.window = c.window[:0]
}

func (c *Classifier) push(s rawSample) {
	if len(c.window) == c.config.WindowSize {
		copy(c.window, c.window[1:])
		c.window[len(c.window)-1] = s
		return
	}
	c.window = append(c.window, s)
}

// smoothed returns the most frequent kind in the window, with ties broken
// toward the most recent sample, and the mean confidence of its samples.
func (c *Classifier) smoothed(details map[string]float64) Result {
	counts := make(map[Kind]int, len(c.window))
	for _, s := range c.window {
		counts[s.kind]++
	}

	best := c.window[len(c.window)-1].kind
	bestCount := counts[best]
	for i := len(c.window) - 1; i >= 0; i-- {
		if k := c.window[i].kind; counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}

	var sum float64
	for _, s := range c.window {
		if s.kind == best {
			sum += s.confidence
		}
	}
	conf := sum / float64(bestCount)
	if conf > smoothedConfidenceCap {
		conf = smoothedConfidenceCap
	}

	return Result{Kind: best, Confidence: conf, Details: details}
}

// fingerState holds the per-finger extension flags for one frame.
type fingerState struct {
	thumb  bool
	index  bool
	middle bool
	ring   bool
	pinky  bool
}

func (f fingerState) extendedCount() int {
	n := 0
	for _, ext := range []bool{f.thumb, f.index, f.middle, f.ring, f.pinky} {
		if ext {
			n++
		}
	}
	return n
}

func (f fingerState) bentCount() int {
	return 5 - f.extendedCount()
}

// extensionState computes which fingers are extended. A finger is extended
// when its knuckle-to-tip distance exceeds extensionRatio times its
// knuckle-to-middle-joint distance; the thumb uses MCP/IP/tip.
func extensionState(points []detector.Point3D) fingerState {
	ext := func(base, mid, tip int) bool {
		toTip := detector.Distance2D(points[base], points[tip])
		toMid := detector.Distance2D(points[base], points[mid])
		return toTip > extensionRatio*toMid
	}

	return fingerState{
		thumb:  ext(detector.ThumbMCP, detector.ThumbIP, detector.ThumbTip),
		index:  ext(detector.IndexMCP, detector.IndexPIP, detector.IndexTip),
		middle: ext(detector.MiddleMCP, detector.MiddlePIP, detector.MiddleTip),
		ring:   ext(detector.RingMCP, detector.RingPIP, detector.RingTip),
		pinky:  ext(detector.PinkyMCP, detector.PinkyPIP, detector.PinkyTip),
	}
}

type poseDetector struct {
	kind  Kind
	match func(points []detector.Point3D, f fingerState) (float64, bool)
}

// poseDetectors lists every recognizer in evaluation order. Order matters
// only for exact confidence ties, where the earlier entry wins.
var poseDetectors = []poseDetector{
	{KindOpenHand, matchOpenHand},
	{KindClosedFist, matchClosedFist},
	{KindOKSign, matchOKSign},
	{KindPinch, matchPinch},
	{KindPoint, matchPoint},
	{KindVictory, matchVictory},
	{KindThumbsUp, matchThumbsUp},
	{KindRockOn, matchRockOn},
}

func matchOpenHand(_ []detector.Point3D, f fingerState) (float64, bool) {
	ext := f.extendedCount()
	if ext < 3 {
		return 0, false
	}
	return float64(ext) / 5, true
}

func matchClosedFist(_ []detector.Point3D, f fingerState) (float64, bool) {
	bent := f.bentCount()
	if bent < 4 {
		return 0, false
	}
	return float64(bent) / 5, true
}

func matchPinch(points []detector.Point3D, _ fingerState) (float64, bool) {
	d := detector.Distance2D(points[detector.ThumbTip], points[detector.IndexTip])
	if d >= pinchThreshold {
		return 0, false
	}
	return math.Max(0, 1-d/pinchFalloff), true
}

func matchOKSign(points []detector.Point3D, f fingerState) (float64, bool) {
	if !f.middle || !f.ring || !f.pinky {
		return 0, false
	}
	return matchPinch(points, f)
}

func matchPoint(_ []detector.Point3D, f fingerState) (float64, bool) {
	if !f.index {
		return 0, false
	}
	bent := 0
	for _, b := range []bool{!f.thumb, !f.middle, !f.ring, !f.pinky} {
		if b {
			bent++
		}
	}
	if bent < 2 {
		return 0, false
	}
	return float64(bent) / 4, true
}

func matchVictory(_ []detector.Point3D, f fingerState) (float64, bool) {
	if !f.index || !f.middle {
		return 0, false
	}
	bent := 0
	for _, b := range []bool{!f.thumb, !f.ring, !f.pinky} {
		if b {
			bent++
		}
	}
	if bent < 1 {
		return 0, false
	}
	return 0.5 + float64(bent)/6, true
}

func matchThumbsUp(_ []detector.Point3D, f fingerState) (float64, bool) {
	if !f.thumb {
		return 0, false
	}
	bent := 0
	for _, b := range []bool{!f.index, !f.middle, !f.ring, !f.pinky} {
		if b {
			bent++
		}
	}
	if bent < 3 {
		return 0, false
	}
	return float64(bent) / 4, true
}

func matchRockOn(_ []detector.Point3D, f fingerState) (float64, bool) {
	if !f.index || !f.pinky || f.middle || f.ring {
		return 0, false
	}
	conf := 0.85
	if !f.thumb {
		conf += 0.05
	}
	return conf, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
