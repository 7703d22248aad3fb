// Package app provides the main application logic for the Mudra hand tracking system.
package app

import (
	"log"
	"sync"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/mapping"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/pool"
	"github.com/ayusman/mudra/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate during active tracking.
	ActiveFPS = 30
	// IdleTimeoutMs is the time in milliseconds to wait before switching back to idle mode.
	IdleTimeoutMs = 2000
	// GestureHoldMs is how long a gesture must be held before it is recorded
	// as a combo sequence element.
	GestureHoldMs = 200
)

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	PluginDir    string
	CameraID     int
	MotionThresh float64
}

// App is the main application that orchestrates the hand tracking pipeline:
// capture, detection, gesture classification, state assembly, combo matching
// and action execution.
type App struct {
	config     Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	detector   detector.Detector
	classifier *gesture.Classifier
	combos     *gesture.ComboDetector
	pools      *pool.Manager
	mapper     *mapping.Mapper
	hands      *hand.Manager
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor
	enabled    bool
	mu         sync.RWMutex
	stopCh     chan struct{}
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	motionThreshold := config.MotionThresh
	if motionThreshold <= 0 {
		motionThreshold = 1.0 // Default threshold: 1% pixel change
	}

	var settings mapping.SettingsStore
	if config.Store != nil {
		settings = config.Store.Settings()
	}

	pools := pool.NewManager()
	mapper := mapping.NewMapper(mapping.DefaultMapperConfig(), settings)

	a := &App{
		config:     config,
		camera:     capture.NewCamera(config.CameraID),
		motion:     capture.NewMotionDetector(motionThreshold),
		classifier: gesture.NewClassifier(gesture.DefaultClassifierConfig()),
		combos:     gesture.NewComboDetector(gesture.DefaultComboConfig()),
		pools:      pools,
		mapper:     mapper,
		hands:      hand.NewManager(hand.DefaultManagerConfig(), pools, mapper),
		pluginMgr:  plugin.NewManager(config.PluginDir),
		pluginExec: plugin.NewExecutor(5000), // 5 second timeout for plugin execution
		enabled:    false,
	}

	a.combos.OnDetected = func(c *gesture.Combo) {
		log.Printf("Combo started: %s", c.Name)
	}
	a.combos.OnCompleted = func(c *gesture.Combo) {
		log.Printf("Combo completed: %s", c.Name)
		go a.executeCombo(c)
	}

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		a.detector = mp
		log.Println("Using MediaPipe hand detection")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		a.detector = detector.NewMockDetector()
	}

	return a
}

// SetEnabled enables or disables hand tracking.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether hand tracking is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the hand detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// LoadCombos loads combo definitions from the database into the sequence
// detector.
func (a *App) LoadCombos() error {
	if a.config.Store == nil {
		return nil
	}

	stored, err := a.config.Store.Combos().List()
	if err != nil {
		return err
	}

	combos := make([]*gesture.Combo, 0, len(stored))
	for _, c := range stored {
		combos = append(combos, storeComboToGesture(c))
	}
	a.combos.SetCombos(combos)

	log.Printf("Loaded %d combos from database", len(combos))
	return nil
}

// storeComboToGesture converts a store.Combo into the sequence detector's
// combo record.
func storeComboToGesture(c *store.Combo) *gesture.Combo {
	sequence := make([]gesture.Kind, len(c.Sequence))
	for i, s := range c.Sequence {
		sequence[i] = gesture.Kind(s)
	}
	return &gesture.Combo{
		ID:       c.ID,
		Name:     c.Name,
		Sequence: sequence,
		Timeout:  c.Timeout,
	}
}

// gestureComboToStore converts a sequence detector combo into its stored
// form.
func gestureComboToStore(c *gesture.Combo) *store.Combo {
	sequence := make([]string, len(c.Sequence))
	for i, k := range c.Sequence {
		sequence[i] = string(k)
	}
	return &store.Combo{
		ID:       c.ID,
		Name:     c.Name,
		Sequence: sequence,
		Timeout:  c.Timeout,
	}
}

// DefaultStoreCombos returns the built-in combo library in its stored form,
// for seeding a fresh database.
func DefaultStoreCombos() []*store.Combo {
	defaults := gesture.DefaultCombos()
	combos := make([]*store.Combo, 0, len(defaults))
	for _, c := range defaults {
		combos = append(combos, gestureComboToStore(c))
	}
	return combos
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// Start begins the tracking pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	// Open the camera
	if err := a.camera.Open(); err != nil {
		return err
	}

	// Set initial FPS to idle mode
	a.camera.SetFPS(IdleFPS)

	// The rendering surface starts at the camera resolution until a client
	// reports its real size over the state stream. Initialize also loads any
	// persisted calibration.
	w, h := a.camera.Dims()
	video := mapping.Dims{Width: w, Height: h}
	if err := a.mapper.Initialize(video, video); err != nil {
		log.Printf("Mapper initialization failed: %v", err)
	}

	// Create stop channel and start the pipeline
	a.stopCh = make(chan struct{})
	go a.runPipeline(a.stopCh)

	log.Println("Tracking pipeline started")
	return nil
}

// Stop halts the tracking pipeline and releases resources.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Signal the pipeline to stop
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}

	// Close the camera
	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	// Close motion detector
	a.motion.Close()

	// Close the hand detector if set
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}

	log.Println("Tracking pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// MotionDetector returns the motion detector instance.
func (a *App) MotionDetector() *capture.MotionDetector {
	return a.motion
}

// Hands returns the hand state manager.
func (a *App) Hands() *hand.Manager {
	return a.hands
}

// Mapper returns the coordinate mapper.
func (a *App) Mapper() *mapping.Mapper {
	return a.mapper
}

// Combos returns the gesture sequence detector.
func (a *App) Combos() *gesture.ComboDetector {
	return a.combos
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}
