package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/store"
	"gocv.io/x/gocv"
)

// newPipelineState mirrors the loop-local state runPipeline starts with.
func newPipelineState() *pipelineState {
	return &pipelineState{
		lastMotionTime: time.Now(),
		lastFed:        gesture.KindNoHand,
	}
}

// holdHand feeds count frames of the same landmarks through the frame
// observer, advancing time by 33ms per frame (roughly 30 FPS).
func holdHand(app *App, lm detector.HandLandmarks, ps *pipelineState, now *time.Time, count int) hand.State {
	var state hand.State
	for i := 0; i < count; i++ {
		state = app.observeDetections([]detector.HandLandmarks{lm}, ps, *now)
		*now = now.Add(33 * time.Millisecond)
	}
	return state
}

func TestApp_New(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := New(Config{PluginDir: t.TempDir(), MotionThresh: 0.05})
	defer app.Stop()

	if app.Camera() == nil {
		t.Error("Camera() returned nil")
	}
	if app.MotionDetector() == nil {
		t.Error("MotionDetector() returned nil")
	}
	if app.Hands() == nil {
		t.Error("Hands() returned nil")
	}
	if app.Mapper() == nil {
		t.Error("Mapper() returned nil")
	}
	if app.Combos() == nil {
		t.Error("Combos() returned nil")
	}
	if app.PluginManager() == nil {
		t.Error("PluginManager() returned nil")
	}
	if app.Detector() == nil {
		t.Error("Detector() returned nil")
	}

	// Tracking starts disabled; the entry point enables it once everything
	// is wired
	if app.IsEnabled() {
		t.Error("tracking should be disabled initially")
	}

	app.SetEnabled(true)
	if !app.IsEnabled() {
		t.Error("tracking should be enabled after SetEnabled(true)")
	}
}

func TestApp_LoadCombos(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	if err := s.Combos().EnsureDefaults(DefaultStoreCombos()); err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}

	app := New(Config{Store: s, PluginDir: tmpDir})
	defer app.Stop()

	if err := app.LoadCombos(); err != nil {
		t.Fatalf("LoadCombos() error = %v", err)
	}

	combos := app.Combos().Combos()
	if len(combos) != 3 {
		t.Fatalf("loaded %d combos, want 3", len(combos))
	}

	byID := make(map[string]*gesture.Combo)
	for _, c := range combos {
		byID[c.ID] = c
	}

	powerUp, ok := byID["power_up"]
	if !ok {
		t.Fatal("power_up combo not loaded")
	}

	wantSequence := []gesture.Kind{gesture.KindClosedFist, gesture.KindVictory, gesture.KindThumbsUp}
	if len(powerUp.Sequence) != len(wantSequence) {
		t.Fatalf("power_up sequence length = %d, want %d", len(powerUp.Sequence), len(wantSequence))
	}
	for i, k := range wantSequence {
		if powerUp.Sequence[i] != k {
			t.Errorf("power_up sequence[%d] = %s, want %s", i, powerUp.Sequence[i], k)
		}
	}
	if powerUp.Timeout != 3*time.Second {
		t.Errorf("power_up timeout = %v, want 3s", powerUp.Timeout)
	}
}

func TestApp_GestureFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := New(Config{PluginDir: t.TempDir(), MotionThresh: 0.05})
	defer app.Stop()

	ps := newPipelineState()
	now := time.Now()

	// A held open palm becomes a tracked open_hand state
	state := holdHand(app, detector.OpenPalmLandmarks(320, 240), ps, &now, 10)

	if !state.Tracking {
		t.Fatal("expected tracking after a held open palm")
	}
	if state.Gesture != gesture.KindOpenHand {
		t.Errorf("gesture = %s, want %s", state.Gesture, gesture.KindOpenHand)
	}
	if state.SmoothedPosition == nil {
		t.Error("expected a smoothed position while tracking")
	}
	if state.Quality.Overall <= 0 {
		t.Errorf("quality = %f, want > 0", state.Quality.Overall)
	}

	// Absent detections drop tracking immediately
	state = app.observeDetections(nil, ps, now)
	if state.Tracking {
		t.Error("expected tracking lost on an absent frame")
	}
	if state.Gesture != gesture.KindNoHand {
		t.Errorf("gesture = %s, want %s", state.Gesture, gesture.KindNoHand)
	}
}

func TestApp_ComboCompletion_ExecutesAction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	if err := s.Combos().EnsureDefaults(DefaultStoreCombos()); err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}

	// Plugin that records the request it receives to a file
	pluginDir := filepath.Join(tmpDir, "plugins")
	recorderDir := filepath.Join(pluginDir, "recorder")
	if err := os.MkdirAll(recorderDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}

	outPath := filepath.Join(tmpDir, "request.json")
	scriptContent := "#!/bin/sh\ncat > " + outPath + "\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(recorderDir, "recorder.sh"), []byte(scriptContent), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	manifest := `{"name":"recorder","version":"1.0.0","executable":"recorder.sh","actions":["record"]}`
	if err := os.WriteFile(filepath.Join(recorderDir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	// Bind the recorder to the grab_toss combo
	err = s.Actions().Create(&store.Action{
		ID:         "test-binding",
		ComboID:    "grab_toss",
		PluginName: "recorder",
		ActionName: "record",
		Config:     json.RawMessage(`{"target":"scene"}`),
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("failed to create action: %v", err)
	}

	app := New(Config{Store: s, PluginDir: pluginDir, MotionThresh: 0.05})
	defer app.Stop()

	if err := app.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}
	if err := app.LoadCombos(); err != nil {
		t.Fatalf("LoadCombos() error = %v", err)
	}

	// Completion normally dispatches asynchronously; run it inline so the
	// test can assert on the plugin's output
	var completed *gesture.Combo
	app.Combos().OnCompleted = func(c *gesture.Combo) {
		completed = c
		app.executeCombo(c)
	}

	ps := newPipelineState()
	now := time.Now()

	// Perform grab_toss: a held pinch followed by a held open palm
	holdHand(app, detector.PinchLandmarks(320, 240, 10), ps, &now, 12)
	holdHand(app, detector.OpenPalmLandmarks(320, 240), ps, &now, 15)

	if completed == nil {
		t.Fatal("combo did not complete")
	}
	if completed.ID != "grab_toss" {
		t.Fatalf("completed combo = %s, want grab_toss", completed.ID)
	}

	// The plugin received the request over stdin and wrote it out
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("plugin did not record the request: %v", err)
	}

	var req struct {
		Action  string          `json:"action"`
		Combo   string          `json:"combo"`
		Gesture string          `json:"gesture"`
		Config  json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("failed to decode recorded request: %v", err)
	}

	if req.Action != "record" {
		t.Errorf("action = %q, want %q", req.Action, "record")
	}
	if req.Combo != "grab_toss" {
		t.Errorf("combo = %q, want %q", req.Combo, "grab_toss")
	}
	if req.Gesture != "open_hand" {
		t.Errorf("gesture = %q, want %q", req.Gesture, "open_hand")
	}

	var config map[string]string
	if err := json.Unmarshal(req.Config, &config); err != nil {
		t.Fatalf("failed to decode forwarded config: %v", err)
	}
	if config["target"] != "scene" {
		t.Errorf("config target = %q, want %q", config["target"], "scene")
	}
}

func TestApp_ComboFeed_OncePerHeldGesture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := New(Config{PluginDir: t.TempDir(), MotionThresh: 0.05})
	defer app.Stop()

	app.Combos().SetCombos(gesture.DefaultCombos())

	ps := newPipelineState()
	now := time.Now()

	// Holding the first gesture of power_up for many frames must record it
	// exactly once: the combo stays at one matched step
	holdHand(app, detector.FistLandmarks(320, 240), ps, &now, 30)

	active := app.Combos().Active()
	if active == nil {
		t.Fatal("expected an active combo after a held fist")
	}
	if active.ID != "power_up" {
		t.Errorf("active combo = %s, want power_up", active.ID)
	}
	if got := app.Combos().Progress(); got != 1.0/3.0 {
		t.Errorf("progress = %f, want %f", got, 1.0/3.0)
	}

	if entries := app.Combos().History(); len(entries) != 1 {
		t.Errorf("history length = %d, want 1 (one entry per held gesture)", len(entries))
	}
}

func TestApp_IdleActiveSwitching(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := New(Config{PluginDir: t.TempDir(), MotionThresh: 1.0})
	defer app.Stop()

	mockCam := capture.NewMockCamera(nil, false)
	app.camera = mockCam

	ps := newPipelineState()
	now := time.Now()

	black := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer white.Close()
	white.SetTo(gocv.NewScalar(255, 255, 255, 0))

	// First frame only establishes the motion baseline
	if _, changed := app.gateMotion(&black, ps, now); changed {
		t.Error("baseline frame should not switch modes")
	}
	if ps.activeMode {
		t.Error("should still be idle after the baseline frame")
	}

	// A full-frame change switches to active capture
	fps, changed := app.gateMotion(&white, ps, now)
	if !changed || fps != ActiveFPS {
		t.Fatalf("gateMotion() = (%d, %v), want (%d, true)", fps, changed, ActiveFPS)
	}
	if !ps.activeMode {
		t.Error("expected active mode after motion")
	}
	if got := mockCam.FPS(); got != ActiveFPS {
		t.Errorf("camera FPS = %d, want %d", got, ActiveFPS)
	}

	// A static frame inside the idle timeout stays active
	if _, changed := app.gateMotion(&white, ps, now.Add(500*time.Millisecond)); changed {
		t.Error("should stay active inside the idle timeout")
	}

	// Quiet past the timeout drops back to idle and clears the hand state
	fps, changed = app.gateMotion(&white, ps, now.Add(3*time.Second))
	if !changed || fps != IdleFPS {
		t.Fatalf("gateMotion() = (%d, %v), want (%d, true)", fps, changed, IdleFPS)
	}
	if ps.activeMode {
		t.Error("expected idle mode after the quiet period")
	}
	if got := mockCam.FPS(); got != IdleFPS {
		t.Errorf("camera FPS = %d, want %d", got, IdleFPS)
	}
	if app.Hands().Current().Tracking {
		t.Error("idle transition should clear the tracked hand state")
	}
}

func TestApp_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := New(Config{PluginDir: t.TempDir(), MotionThresh: 0.05})
	app.camera = capture.NewMockCamera(nil, true)
	app.SetDetector(detector.NewMockDetector())

	if err := app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Start again is a no-op
	if err := app.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if !app.Camera().IsOpen() {
		t.Error("camera should be open after Start")
	}
	if got := app.Camera().FPS(); got != IdleFPS {
		t.Errorf("camera FPS = %d, want %d (idle)", got, IdleFPS)
	}
	if !app.Mapper().Initialized() {
		t.Error("mapper should be initialized from the camera dimensions")
	}

	app.Stop()

	if app.Camera().IsOpen() {
		t.Error("camera should be closed after Stop")
	}
}
