package preset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/redact"
)

func userPreset(id string) *Preset {
	return &Preset{
		ID:                  id,
		Name:                "Test preset",
		EnabledKinds:        []detect.DetectionKind{detect.KindEmail, detect.KindPAN},
		StyleMap:            map[detect.DetectionKind]redact.Style{detect.KindEmail: redact.StyleBlur},
		ConfidenceThreshold: 0.6,
	}
}

func TestBuiltIns(t *testing.T) {
	builtins := BuiltIns()
	require.NotEmpty(t, builtins)

	ids := make(map[string]bool)
	for _, b := range builtins {
		assert.True(t, b.BuiltIn, "preset %s must be flagged built-in", b.ID)
		assert.NoError(t, b.Validate(), "built-in %s must validate", b.ID)
		assert.False(t, ids[b.ID], "duplicate built-in id %s", b.ID)
		ids[b.ID] = true
	}

	assert.True(t, ids["standard"])
	assert.True(t, ids["developer"])
	assert.True(t, ids["strict"])
	assert.True(t, ids["financial"])
}

func TestDeveloperPresetScope(t *testing.T) {
	// The developer preset targets credentials and document numbers, not
	// names or faces.
	store := NewMemoryStore()
	p, err := store.Get(context.Background(), "developer")
	require.NoError(t, err)

	policy := p.Policy()
	for _, k := range []detect.DetectionKind{
		detect.KindEmail, detect.KindPhone, detect.KindPAN, detect.KindJWT,
		detect.KindAPIKey, detect.KindIBAN, detect.KindSSN, detect.KindPassport,
	} {
		assert.True(t, policy.Enabled[k], "kind %s should be enabled", k)
	}
	assert.False(t, policy.Enabled[detect.KindName])
	assert.False(t, policy.Enabled[detect.KindFace])
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("SaveAndGet", func(t *testing.T) {
		p := userPreset("mine")
		require.NoError(t, store.Save(ctx, p))
		assert.Equal(t, 1, p.Version)

		got, err := store.Get(ctx, "mine")
		require.NoError(t, err)
		assert.Equal(t, "mine", got.ID)
		assert.False(t, got.BuiltIn)
	})

	t.Run("VersionIncrements", func(t *testing.T) {
		p := userPreset("mine")
		require.NoError(t, store.Save(ctx, p))
		assert.Equal(t, 2, p.Version)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("BuiltInWriteRejected", func(t *testing.T) {
		p := userPreset("standard")
		assert.ErrorIs(t, store.Save(ctx, p), ErrBuiltIn)
		assert.ErrorIs(t, store.Delete(ctx, "strict"), ErrBuiltIn)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "mine"))
		_, err := store.Get(ctx, "mine")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "mine"), ErrNotFound)
	})

	t.Run("InvalidRejected", func(t *testing.T) {
		p := userPreset("bad")
		p.ConfidenceThreshold = 1.5
		err := store.Save(ctx, p)
		require.Error(t, err)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("CloneIsolation", func(t *testing.T) {
		p := userPreset("iso")
		require.NoError(t, store.Save(ctx, p))
		got, err := store.Get(ctx, "iso")
		require.NoError(t, err)
		got.EnabledKinds[0] = detect.KindOther

		again, err := store.Get(ctx, "iso")
		require.NoError(t, err)
		assert.Equal(t, detect.KindEmail, again.EnabledKinds[0], "mutating a returned preset must not affect the store")
	})
}

func TestFileStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	t.Run("BuiltInsAvailable", func(t *testing.T) {
		p, err := store.Get(ctx, "standard")
		require.NoError(t, err)
		assert.True(t, p.BuiltIn)
	})

	t.Run("SaveRoundTrip", func(t *testing.T) {
		p := userPreset("office")
		p.CustomPatterns = []CustomPattern{
			{ID: "emp", Pattern: `EMP-\d{4}`, Kind: detect.KindOther, Confidence: 0.9},
		}
		require.NoError(t, store.Save(ctx, p))

		got, err := store.Get(ctx, "office")
		require.NoError(t, err)
		assert.Equal(t, p.EnabledKinds, got.EnabledKinds)
		assert.Len(t, got.CustomPatterns, 1)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("List", func(t *testing.T) {
		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, len(BuiltIns())+1)
	})

	t.Run("BuiltInWriteRejected", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, userPreset("financial")), ErrBuiltIn)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "office"))
		_, err := store.Get(ctx, "office")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPresetValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Preset)
		field  string
	}{
		{"EmptyID", func(p *Preset) { p.ID = "" }, "id"},
		{"BadThreshold", func(p *Preset) { p.ConfidenceThreshold = -0.1 }, "confidence_threshold"},
		{"NoKinds", func(p *Preset) { p.EnabledKinds = nil }, "enabled_kinds"},
		{"UnknownKind", func(p *Preset) { p.EnabledKinds = []detect.DetectionKind{"BOGUS"} }, "enabled_kinds"},
		{"UnknownStyle", func(p *Preset) {
			p.StyleMap = map[detect.DetectionKind]redact.Style{detect.KindEmail: "sparkle"}
		}, "style_map"},
		{"BadPattern", func(p *Preset) {
			p.CustomPatterns = []CustomPattern{{ID: "x", Pattern: "(", Kind: detect.KindOther, Confidence: 0.5}}
		}, "custom_patterns"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := userPreset("v")
			tc.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	assert.NoError(t, userPreset("v").Validate())
}
