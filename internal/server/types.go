package server

// RPC request/response types for client-server communication. Query bodies
// are the service package types; only the server's own messages live here.

// PingResponse identifies a running server.
type PingResponse struct {
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version"`
	BuildID string  `json:"build_id"`
	PID     int     `json:"pid"`
	Root    string  `json:"root"`
}

// ReparseRequest names the file to reparse
type ReparseRequest struct {
	File string `json:"file"`
}

// ShutdownRequest requests server shutdown
type ShutdownRequest struct {
	Force bool `json:"force,omitempty"`
}

// ShutdownResponse confirms shutdown
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
