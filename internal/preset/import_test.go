package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veil-sh/veil/internal/detect"
)

func TestImportValid(t *testing.T) {
	doc := []byte(`{
		"id": "office",
		"name": "Office scans",
		"enabled_kinds": ["EMAIL", "PAN", "SSN"],
		"style_map": {"EMAIL": "blur"},
		"confidence_threshold": 0.6,
		"custom_patterns": [
			{"id": "emp", "pattern": "EMP-\\d{4}", "kind": "OTHER", "confidence": 0.9}
		]
	}`)

	p, err := Import(doc)
	require.NoError(t, err)
	assert.Equal(t, "office", p.ID)
	assert.Equal(t, []detect.DetectionKind{detect.KindEmail, detect.KindPAN, detect.KindSSN}, p.EnabledKinds)
	assert.Len(t, p.CustomPatterns, 1)
}

func TestImportMalformedJSON(t *testing.T) {
	doc := []byte("{\n  \"id\": \"x\",\n  \"enabled_kinds\": [\"EMAIL\",]\n}")

	_, err := Import(doc)
	require.Error(t, err)

	var ierr *ImportError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 3, ierr.Line, "error should carry the offending line")
}

func TestImportWrongType(t *testing.T) {
	doc := []byte("{\n  \"id\": \"x\",\n  \"confidence_threshold\": \"high\"\n}")

	_, err := Import(doc)
	require.Error(t, err)

	var ierr *ImportError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "confidence_threshold", ierr.Field)
	assert.Equal(t, 3, ierr.Line)
}

func TestImportUnknownField(t *testing.T) {
	doc := []byte(`{"id": "x", "enabled_kinds": ["EMAIL"], "bogus": true}`)

	_, err := Import(doc)
	require.Error(t, err)
	var ierr *ImportError
	assert.ErrorAs(t, err, &ierr)
}

func TestImportInvalidSchema(t *testing.T) {
	// Well-formed JSON with a bad schema surfaces the validation error,
	// not an import error.
	doc := []byte(`{"id": "x", "enabled_kinds": ["BOGUS"]}`)

	_, err := Import(doc)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExportImportRoundTrip(t *testing.T) {
	p := userPreset("round")
	data, err := Export(p)
	require.NoError(t, err)

	got, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.EnabledKinds, got.EnabledKinds)
	assert.Equal(t, p.ConfidenceThreshold, got.ConfidenceThreshold)
}
