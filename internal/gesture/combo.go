package gesture

import (
	"time"
)

// Combo is an ordered gesture sequence that triggers an action when
// performed within its timeout. Read-only at runtime.
type Combo struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Sequence []Kind        `json:"sequence"`
	Timeout  time.Duration `json:"timeout"`
}

// HistoryEntry records one gesture observed by the sequence detector.
type HistoryEntry struct {
	Kind       Kind
	Confidence float64
	Timestamp  time.Time
}

// SequenceMatch describes how far a gesture sequence has progressed against
// a target sequence.
type SequenceMatch struct {
	Partial  bool
	Complete bool
	Progress float64
}

// MatchSequence compares a current gesture sequence against a target combo
// sequence. Complete means element-wise equality; Partial means current is a
// strict prefix of target. Progress is the matched prefix length over the
// target length.
func MatchSequence(current, target []Kind) SequenceMatch {
	if len(target) == 0 {
		return SequenceMatch{Complete: len(current) == 0, Progress: 1}
	}

	matched := 0
	for matched < len(current) && matched < len(target) && current[matched] == target[matched] {
		matched++
	}

	m := SequenceMatch{Progress: float64(matched) / float64(len(target))}
	if matched == len(current) && matched == len(target) {
		m.Complete = true
	} else if matched == len(current) && matched < len(target) {
		m.Partial = true
	}
	return m
}

// ComboConfig holds tunables for the sequence detector.
type ComboConfig struct {
	// Window is how long a gesture stays in the sliding history before it
	// is purged.
	Window time.Duration
}

// DefaultComboConfig returns the standard 3 second history window.
func DefaultComboConfig() ComboConfig {
	return ComboConfig{
		Window: 3 * time.Second,
	}
}

// ComboDetector consumes the stream of classified gestures and matches it
// against a library of combo sequences. Detection is optimistic: the first
// gesture of a combo activates it immediately, and each further gesture must
// match the next step. A mismatching gesture tries to open a different combo
// before the active one is failed.
type ComboDetector struct {
	config  ComboConfig
	combos  []*Combo
	history []HistoryEntry

	active      *Combo
	activeStart time.Time
	matched     int

	// OnDetected fires when a combo's first gesture arrives, OnCompleted
	// when its full sequence has been performed, OnFailed when it is
	// abandoned or times out. All callbacks run synchronously inside Add.
	OnDetected  func(*Combo)
	OnCompleted func(*Combo)
	OnFailed    func(*Combo)
}

// NewComboDetector creates a detector with the given config and an empty
// combo library.
func NewComboDetector(config ComboConfig) *ComboDetector {
	if config.Window <= 0 {
		config.Window = DefaultComboConfig().Window
	}
	return &ComboDetector{
		config: config,
	}
}

// SetCombos replaces the combo library. Any in-progress combo is discarded
// without firing callbacks.
func (d *ComboDetector) SetCombos(combos []*Combo) {
	d.combos = combos
	d.active = nil
	d.matched = 0
	d.history = nil
}

// Combos returns the current combo library.
func (d *ComboDetector) Combos() []*Combo {
	return d.combos
}

// Active returns the combo currently in progress, or nil.
func (d *ComboDetector) Active() *Combo {
	return d.active
}

// Progress returns how much of the active combo has been performed, in
// [0,1]. Zero when no combo is active.
func (d *ComboDetector) Progress() float64 {
	if d.active == nil || len(d.active.Sequence) == 0 {
		return 0
	}
	return float64(d.matched) / float64(len(d.active.Sequence))
}

// History returns the entries currently inside the sliding window.
func (d *ComboDetector) History() []HistoryEntry {
	return d.history
}

// Add records one classified gesture at the given time and advances combo
// matching. It returns the combo in progress after this gesture, or nil.
func (d *ComboDetector) Add(kind Kind, confidence float64, now time.Time) *Combo {
	d.purge(now)
	d.history = append(d.history, HistoryEntry{
		Kind:       kind,
		Confidence: confidence,
		Timestamp:  now,
	})

	// A combo that has outlived its own timeout is failed before the new
	// gesture is considered.
	if d.active != nil && now.Sub(d.activeStart) > d.active.Timeout {
		d.fail()
	}

	if d.active == nil {
		d.start(kind, now)
		return d.active
	}

	if kind == d.active.Sequence[d.matched] {
		d.matched++
		if d.matched == len(d.active.Sequence) {
			d.complete()
		}
		return d.active
	}

	// Mismatch: the gesture may open a different combo. Only when no combo
	// starts with it does the active combo fail.
	failed := d.active
	d.active = nil
	d.matched = 0
	d.start(kind, now)
	if d.active == nil {
		if d.OnFailed != nil {
			d.OnFailed(failed)
		}
		return nil
	}
	return d.active
}

// Reset clears history and any in-progress combo without firing callbacks.
func (d *ComboDetector) Reset() {
	d.history = nil
	d.active = nil
	d.matched = 0
}

// purge drops history entries older than the sliding window.
func (d *ComboDetector) purge(now time.Time) {
	cutoff := now.Add(-d.config.Window)
	keep := 0
	for _, e := range d.history {
		if !e.Timestamp.Before(cutoff) {
			d.history[keep] = e
			keep++
		}
	}
	d.history = d.history[:keep]
}

// start scans the library for a combo opening with kind and activates it.
func (d *ComboDetector) start(kind Kind, now time.Time) {
	for _, c := range d.combos {
		if len(c.Sequence) == 0 || c.Sequence[0] != kind {
			continue
		}
		d.active = c
		d.activeStart = now
		d.matched = 1
		if d.OnDetected != nil {
			d.OnDetected(c)
		}
		if d.matched == len(c.Sequence) {
			d.complete()
		}
		return
	}
}

func (d *ComboDetector) complete() {
	c := d.active
	d.active = nil
	d.matched = 0
	d.history = nil
	if d.OnCompleted != nil {
		d.OnCompleted(c)
	}
}

func (d *ComboDetector) fail() {
	c := d.active
	d.active = nil
	d.matched = 0
	if d.OnFailed != nil {
		d.OnFailed(c)
	}
}

// DefaultCombos returns the built-in combo library.
func DefaultCombos() []*Combo {
	return []*Combo{
		{
			ID:       "power_up",
			Name:     "Power Up",
			Sequence: []Kind{KindClosedFist, KindVictory, KindThumbsUp},
			Timeout:  3 * time.Second,
		},
		{
			ID:       "grab_toss",
			Name:     "Grab and Toss",
			Sequence: []Kind{KindPinch, KindOpenHand},
			Timeout:  2 * time.Second,
		},
		{
			ID:       "focus_frame",
			Name:     "Focus Frame",
			Sequence: []Kind{KindOKSign, KindPoint},
			Timeout:  2500 * time.Millisecond,
		},
	}
}
