package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ImportError reports malformed JSON during preset import, with line and
// field detail where the decoder provides it.
type ImportError struct {
	Line    int
	Field   string
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	switch {
	case e.Line > 0 && e.Field != "":
		return fmt.Sprintf("preset import failed at line %d, field %q: %s", e.Line, e.Field, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("preset import failed at line %d: %s", e.Line, e.Message)
	case e.Field != "":
		return fmt.Sprintf("preset import failed at field %q: %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("preset import failed: %s", e.Message)
	}
}

func (e *ImportError) Unwrap() error { return e.Err }

// Import parses and validates one preset document. Malformed JSON yields
// an ImportError; a well-formed document with a bad schema yields the
// underlying ValidationError.
func Import(data []byte) (*Preset, error) {
	var p Preset
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, importError(data, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Export serializes a preset for storage or download.
func Export(p *Preset) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize preset %s: %w", p.ID, err)
	}
	return data, nil
}

// importError extracts line/field detail from json decoder errors.
func importError(data []byte, err error) *ImportError {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &ImportError{
			Line:    lineAt(data, syn.Offset),
			Message: syn.Error(),
			Err:     err,
		}
	}

	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return &ImportError{
			Line:    lineAt(data, typ.Offset),
			Field:   typ.Field,
			Message: typ.Error(),
			Err:     err,
		}
	}

	return &ImportError{Message: err.Error(), Err: err}
}

func lineAt(data []byte, offset int64) int {
	if offset <= 0 || offset > int64(len(data)) {
		return 0
	}
	return bytes.Count(data[:offset], []byte("\n")) + 1
}
