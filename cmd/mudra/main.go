package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
)

func main() {
	fmt.Println("Mudra - Hand Tracking Pipeline")

	// Initialize the store
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dataDir := filepath.Join(homeDir, ".mudra")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "mudra.db")
	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	// Seed the built-in combo library on first run
	if err := st.Combos().EnsureDefaults(app.DefaultStoreCombos()); err != nil {
		log.Fatalf("Failed to seed default combos: %v", err)
	}

	pluginDir := findPluginDir(dataDir)
	if pluginDir != "" {
		fmt.Printf("Loading plugins from: %s\n", pluginDir)
	}

	a := app.New(app.Config{
		Store:     st,
		PluginDir: pluginDir,
		CameraID:  cameraDevice(st),
	})

	if err := a.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}
	if err := a.LoadCombos(); err != nil {
		log.Fatalf("Failed to load combos: %v", err)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start tracking pipeline: %v", err)
	}
	defer a.Stop()
	a.SetEnabled(true)

	// Configure and start server
	cfg := server.Config{
		Store:  st,
		Hands:  a.Hands(),
		Mapper: a.Mapper(),
	}

	srv := server.New(cfg)

	addr := ":8080"
	fmt.Printf("Starting server on %s\n", addr)
	if err := srv.ListenAndServe(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// cameraDevice reads the capture device index from settings, defaulting to
// device 0.
func cameraDevice(st *store.Store) int {
	v, err := st.Settings().Get("camera.device")
	if err != nil || v == "" {
		return 0
	}

	id, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid camera.device setting %q, using device 0", v)
		return 0
	}
	return id
}

// findPluginDir searches for the plugin directory in common locations.
// It checks: "plugins", "../plugins", the executable's directory, and
// ~/.mudra/plugins. Returns the first existing directory or empty string
// if none found.
func findPluginDir(dataDir string) string {
	execDir := ""
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"plugins",
		"../plugins",
		filepath.Join(execDir, "plugins"),
		filepath.Join(dataDir, "plugins"),
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	return ""
}
