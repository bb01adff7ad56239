// Package report exports session history as JSON, CSV, or Parquet.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/veil-sh/veil/internal/bulk"
	"github.com/veil-sh/veil/internal/history"
)

// Export is the top-level JSON document.
type Export struct {
	Sessions   []*history.Session `json:"sessions"`
	Records    []*history.Record  `json:"records"`
	Stats      *history.Stats     `json:"stats"`
	ExportedAt time.Time          `json:"exportedAt"`
}

// csvColumns is the fixed flattened column set. Order is part of the
// format contract; append-only.
var csvColumns = []string{
	"session_id", "file_name", "file_size", "file_type", "timestamp",
	"processing_ms", "status", "detection_count", "avg_confidence",
	"high_confidence", "med_confidence", "low_confidence",
	"redaction_count", "preset_name", "error",
}

// WriteJSON writes the export document as indented JSON.
func WriteJSON(w io.Writer, export *Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteCSV writes the flattened per-record rows with a header line.
func WriteCSV(w io.Writer, records []*history.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.SessionID,
			r.FileName,
			strconv.FormatInt(r.FileSize, 10),
			r.FileType,
			r.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.ProcessingMS, 'f', 2, 64),
			r.Status,
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.AvgConfidence, 'f', 4, 64),
			strconv.Itoa(r.HighConfidence),
			strconv.Itoa(r.MedConfidence),
			strconv.Itoa(r.LowConfidence),
			strconv.Itoa(r.RedactionCount),
			r.PresetName,
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// BuildRecord flattens one bulk file outcome into a history record.
func BuildRecord(sessionID, presetName string, file string, size int64, res *bulk.FileResult, runErr error) *history.Record {
	record := &history.Record{
		SessionID:  sessionID,
		FileName:   filepath.Base(file),
		FileSize:   size,
		FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), "."),
		Timestamp:  time.Now().UTC(),
		PresetName: presetName,
		Status:     "ok",
	}

	if runErr != nil {
		record.Status = "failed"
		record.Error = runErr.Error()
		return record
	}

	record.ProcessingMS = float64(res.Duration.Microseconds()) / 1000

	if res.Analysis != nil {
		record.DetectionCount = len(res.Analysis.Detections)
		var sum float64
		for _, d := range res.Analysis.Detections {
			sum += d.Confidence
			switch {
			case d.Confidence >= 0.8:
				record.HighConfidence++
			case d.Confidence >= 0.5:
				record.MedConfidence++
			default:
				record.LowConfidence++
			}
		}
		if record.DetectionCount > 0 {
			record.AvgConfidence = sum / float64(record.DetectionCount)
		}
	}

	if res.Apply != nil {
		record.RedactionCount = len(res.Apply.Report)
	}

	return record
}
