package app

import (
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/plugin"
)

// pipelineState carries the loop-local detection state between frames.
type pipelineState struct {
	activeMode     bool
	lastMotionTime time.Time
	lastFed        gesture.Kind
}

// runPipeline is the main tracking loop that processes frames from the
// camera. It manages the state transitions between idle and active modes
// based on motion detection.
//
// Pipeline logic:
// 1. Start in idle mode (IdleFPS)
// 2. On motion detected, switch to active mode (ActiveFPS)
// 3. Run hand detection and gesture classification
// 4. Merge the frame into the hand state via the state manager
// 5. Feed held gesture changes to the combo sequence detector
// 6. After 2s no motion, switch back to idle mode and clear the hand state
func (a *App) runPipeline(stopCh <-chan struct{}) {
	ps := &pipelineState{
		lastMotionTime: time.Now(),
		lastFed:        gesture.KindNoHand,
	}

	// Frame interval based on current FPS
	frameInterval := time.Second / time.Duration(IdleFPS)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// Skip processing if tracking is disabled
			if !a.IsEnabled() {
				continue
			}

			// Read a frame from the camera
			frame, err := a.camera.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			if fps, changed := a.gateMotion(frame, ps, time.Now()); changed {
				ticker.Reset(time.Second / time.Duration(fps))
			}

			// Skip detection while idle
			if !ps.activeMode {
				frame.Close()
				continue
			}

			a.observeFrame(frame, ps, time.Now())
		}
	}
}

// gateMotion runs motion detection on the frame and switches between the
// idle and active capture rates. It returns the new FPS when the mode
// changed so the caller can retime its loop.
func (a *App) gateMotion(frame *gocv.Mat, ps *pipelineState, now time.Time) (int, bool) {
	motionDetected, _ := a.motion.Detect(frame)

	if motionDetected {
		ps.lastMotionTime = now

		if !ps.activeMode {
			ps.activeMode = true
			a.camera.SetFPS(ActiveFPS)
			log.Println("Switched to active mode")
			return ActiveFPS, true
		}
		return 0, false
	}

	if ps.activeMode && now.Sub(ps.lastMotionTime) > time.Duration(IdleTimeoutMs)*time.Millisecond {
		ps.activeMode = false
		ps.lastFed = gesture.KindNoHand
		a.camera.SetFPS(IdleFPS)

		// Going idle means the scene is asleep: downstream consumers see the
		// hand disappear rather than a frozen last state.
		a.hands.Update(nil, gesture.Result{Kind: gesture.KindNoHand}, now)
		a.classifier.Reset()

		log.Println("Switched to idle mode")
		return IdleFPS, true
	}
	return 0, false
}

// observeFrame runs hand detection on the frame and closes it, then feeds
// the result through classification and state assembly.
func (a *App) observeFrame(frame *gocv.Mat, ps *pipelineState, now time.Time) {
	d := a.Detector()
	if d == nil {
		frame.Close()
		return
	}

	detections, err := d.Detect(frame)
	frame.Close() // Done with the frame

	if err != nil {
		log.Printf("Error detecting hands: %v", err)
		detections = nil
	}

	a.observeDetections(detections, ps, now)
}

// observeDetections classifies the detected hand (or records its absence),
// produces the frame's authoritative hand state, and advances combo
// matching. Detection is configured for a single hand, so only the first
// hand is considered.
func (a *App) observeDetections(detections []detector.HandLandmarks, ps *pipelineState, now time.Time) hand.State {
	if len(detections) == 0 {
		ps.lastFed = gesture.KindNoHand
		return a.hands.Update(nil, gesture.Result{Kind: gesture.KindNoHand}, now)
	}

	landmarks := &detections[0]
	result := a.classifier.Classify(landmarks.Points[:])
	state := a.hands.Update(landmarks, result, now)

	a.advanceCombos(state, ps, now)
	return state
}

// advanceCombos feeds the sequence detector exactly once per held gesture.
// A gesture counts once it has been stable for GestureHoldMs; repeats of
// the same gesture do not re-fire, and a tracking dropout re-arms the
// current gesture.
func (a *App) advanceCombos(state hand.State, ps *pipelineState, now time.Time) {
	if !state.Tracking || state.Gesture == gesture.KindNoHand {
		ps.lastFed = gesture.KindNoHand
		return
	}
	if state.Gesture == ps.lastFed {
		return
	}
	if !a.hands.GestureStable(time.Duration(GestureHoldMs)*time.Millisecond, now) {
		return
	}

	a.combos.Add(state.Gesture, state.Confidence, now)
	ps.lastFed = state.Gesture
}

// executeCombo looks up the action bindings for a completed combo and runs
// each enabled one through its plugin.
func (a *App) executeCombo(combo *gesture.Combo) {
	if a.config.Store == nil {
		return
	}

	actions, err := a.config.Store.Actions().ListByComboID(combo.ID)
	if err != nil {
		log.Printf("Failed to load actions for combo %s: %v", combo.Name, err)
		return
	}

	// The request carries the gesture that finished the sequence
	gestureName := ""
	if n := len(combo.Sequence); n > 0 {
		gestureName = string(combo.Sequence[n-1])
	}

	for _, action := range actions {
		if !action.Enabled {
			continue
		}

		plug, err := a.pluginMgr.Get(action.PluginName)
		if err != nil {
			log.Printf("Plugin %s not found for combo %s: %v", action.PluginName, combo.Name, err)
			continue
		}

		req := &plugin.Request{
			Action:  action.ActionName,
			Combo:   combo.ID,
			Gesture: gestureName,
			Config:  action.Config,
		}

		resp, err := a.pluginExec.Execute(plug, req)
		if err != nil {
			log.Printf("Failed to execute %s/%s: %v", action.PluginName, action.ActionName, err)
			continue
		}
		if !resp.Success {
			log.Printf("Action %s/%s failed: %s", action.PluginName, action.ActionName, resp.Error)
			continue
		}

		log.Printf("Executed %s/%s for combo %s", action.PluginName, action.ActionName, combo.Name)
	}
}
