package report

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/veil-sh/veil/internal/history"
)

// parquetRecord mirrors the CSV column set for columnar export.
type parquetRecord struct {
	SessionID      string  `parquet:"session_id"`
	FileName       string  `parquet:"file_name"`
	FileSize       int64   `parquet:"file_size"`
	FileType       string  `parquet:"file_type"`
	Timestamp      int64   `parquet:"timestamp"` // unix milliseconds
	ProcessingMS   float64 `parquet:"processing_ms"`
	Status         string  `parquet:"status"`
	DetectionCount int32   `parquet:"detection_count"`
	AvgConfidence  float64 `parquet:"avg_confidence"`
	HighConfidence int32   `parquet:"high_confidence"`
	MedConfidence  int32   `parquet:"med_confidence"`
	LowConfidence  int32   `parquet:"low_confidence"`
	RedactionCount int32   `parquet:"redaction_count"`
	PresetName     string  `parquet:"preset_name"`
	Error          string  `parquet:"error"`
}

// WriteParquet writes the flattened per-record rows as a Parquet file.
func WriteParquet(w io.Writer, records []*history.Record) error {
	writer := parquet.NewGenericWriter[parquetRecord](w)

	rows := make([]parquetRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, parquetRecord{
			SessionID:      r.SessionID,
			FileName:       r.FileName,
			FileSize:       r.FileSize,
			FileType:       r.FileType,
			Timestamp:      r.Timestamp.UnixMilli(),
			ProcessingMS:   r.ProcessingMS,
			Status:         r.Status,
			DetectionCount: int32(r.DetectionCount),
			AvgConfidence:  r.AvgConfidence,
			HighConfidence: int32(r.HighConfidence),
			MedConfidence:  int32(r.MedConfidence),
			LowConfidence:  int32(r.LowConfidence),
			RedactionCount: int32(r.RedactionCount),
			PresetName:     r.PresetName,
			Error:          r.Error,
		})
	}

	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
