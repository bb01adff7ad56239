package history

import "time"

// Session is one analyze/apply/bulk run.
type Session struct {
	ID         string     `db:"id" json:"id"`
	PresetID   string     `db:"preset_id" json:"preset_id"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	TotalFiles int        `db:"total_files" json:"total_files"`
	Successful int        `db:"successful" json:"successful"`
	Failed     int        `db:"failed" json:"failed"`
}

// Record is the outcome for one file in a session. Confidence buckets
// count detections at >=0.8 (high), >=0.5 (medium), and below (low).
type Record struct {
	ID             int64     `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	FileName       string    `db:"file_name" json:"file_name"`
	FileSize       int64     `db:"file_size" json:"file_size"`
	FileType       string    `db:"file_type" json:"file_type"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	ProcessingMS   float64   `db:"processing_ms" json:"processing_ms"`
	Status         string    `db:"status" json:"status"` // ok or failed
	DetectionCount int       `db:"detection_count" json:"detection_count"`
	AvgConfidence  float64   `db:"avg_confidence" json:"avg_confidence"`
	HighConfidence int       `db:"high_confidence" json:"high_confidence"`
	MedConfidence  int       `db:"med_confidence" json:"med_confidence"`
	LowConfidence  int       `db:"low_confidence" json:"low_confidence"`
	RedactionCount int       `db:"redaction_count" json:"redaction_count"`
	PresetName     string    `db:"preset_name" json:"preset_name"`
	Error          string    `db:"error" json:"error,omitempty"`
}

// Stats aggregates across all stored sessions.
type Stats struct {
	TotalSessions   int64   `db:"total_sessions" json:"total_sessions"`
	TotalFiles      int64   `db:"total_files" json:"total_files"`
	TotalDetections int64   `db:"total_detections" json:"total_detections"`
	TotalRedactions int64   `db:"total_redactions" json:"total_redactions"`
	AvgDetections   float64 `db:"avg_detections" json:"avg_detections_per_file"`
	AvgConfidence   float64 `db:"avg_confidence" json:"avg_confidence"`
	HighConfidence  int64   `db:"high_confidence" json:"high_confidence"`
	MedConfidence   int64   `db:"med_confidence" json:"med_confidence"`
	LowConfidence   int64   `db:"low_confidence" json:"low_confidence"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}
