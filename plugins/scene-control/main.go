// Package main provides a scene control plugin.
// It translates completed gesture combos into scene commands that the
// renderer consumes from the response payload.
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Combo   string          `json:"combo"`
	Gesture string          `json:"gesture"`
	Config  json.RawMessage `json:"config"`
	Params  json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SceneCommand is the renderer-facing instruction produced by an action.
type SceneCommand struct {
	Command string          `json:"command"`
	Combo   string          `json:"combo,omitempty"`
	Shape   string          `json:"shape,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// SpawnConfig defines the per-binding configuration for spawn-object.
type SpawnConfig struct {
	Shape string `json:"shape"`
}

// actionHandler builds the scene command for a specific action.
type actionHandler func(req *Request) (*SceneCommand, error)

// actionHandlers maps action names to their handler functions.
var actionHandlers = map[string]actionHandler{
	"pulse":         pulse,
	"spawn-object":  spawnObject,
	"clear-scene":   clearScene,
	"toggle-trails": toggleTrails,
	"reset-view":    resetView,
}

func main() {
	// Read request from stdin
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	// Look up the handler for the action
	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	// Build the scene command
	command, err := handler(&req)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	data, err := json.Marshal(command)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("failed to encode scene command: %v", err))
		return
	}

	// Write success response with the command payload
	writeSuccessResponse(data)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response carrying the scene command.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// pulse emits a highlight pulse at the current hand position.
func pulse(req *Request) (*SceneCommand, error) {
	return &SceneCommand{
		Command: "pulse",
		Combo:   req.Combo,
		Params:  req.Params,
	}, nil
}

// spawnObject places a new object into the scene. The bound action's config
// selects the shape; the default is a cube.
func spawnObject(req *Request) (*SceneCommand, error) {
	shape := "cube"
	if len(req.Config) > 0 {
		var cfg SpawnConfig
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.Shape != "" {
			shape = cfg.Shape
		}
	}

	return &SceneCommand{
		Command: "spawn",
		Combo:   req.Combo,
		Shape:   shape,
		Params:  req.Params,
	}, nil
}

// clearScene removes all spawned objects.
func clearScene(req *Request) (*SceneCommand, error) {
	return &SceneCommand{
		Command: "clear",
		Combo:   req.Combo,
	}, nil
}

// toggleTrails toggles motion trails on the tracked hand cursor.
func toggleTrails(req *Request) (*SceneCommand, error) {
	return &SceneCommand{
		Command: "toggle-trails",
		Combo:   req.Combo,
	}, nil
}

// resetView restores the default scene camera.
func resetView(req *Request) (*SceneCommand, error) {
	return &SceneCommand{
		Command: "reset-view",
		Combo:   req.Combo,
	}, nil
}
