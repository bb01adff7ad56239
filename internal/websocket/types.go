package websocket

import (
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection summarizes one file's analysis pass.
	EventTypeDetection EventType = "detection"
	// EventTypeBulkProgress reports per-file progress of a bulk run.
	EventTypeBulkProgress EventType = "bulk_progress"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	SessionID string      `json:"session_id,omitempty"`
}

// DetectionEvent summarizes one analysis pass. It carries per-kind counts
// only; detection previews and raw token text never reach the dashboard.
type DetectionEvent struct {
	File            string         `json:"file"`
	Pages           int            `json:"pages"`
	TotalDetections int            `json:"total_detections"`
	ByKind          map[string]int `json:"by_kind"`
	PresetID        string         `json:"preset_id"`
	ProcessingMS    float64        `json:"processing_ms"`
}

// BulkProgressEvent reports one file completing inside a bulk run.
type BulkProgressEvent struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	ActiveSessions  int     `json:"active_sessions"`
	TotalFiles      int64   `json:"total_files"`
	TotalDetections int64   `json:"total_detections"`
}

// ConnectionEvent describes a client connecting or disconnecting.
type ConnectionEvent struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// SubscriptionRequest lets a client narrow which event types it receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// ClientMessage is an inbound message from a dashboard client.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
