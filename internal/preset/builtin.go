package preset

import (
	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/redact"
)

// BuiltIns returns the read-only seed presets. Stores reject writes to
// these ids.
func BuiltIns() []*Preset {
	return []*Preset{
		{
			ID:      "standard",
			Name:    "Standard",
			BuiltIn: true,
			EnabledKinds: []detect.DetectionKind{
				detect.KindFace, detect.KindEmail, detect.KindPhone,
				detect.KindPAN, detect.KindIBAN, detect.KindSSN,
				detect.KindPassport, detect.KindJWT, detect.KindAPIKey,
				detect.KindBarcode,
			},
			ConfidenceThreshold: 0.5,
		},
		{
			ID:      "developer",
			Name:    "Developer",
			BuiltIn: true,
			EnabledKinds: []detect.DetectionKind{
				detect.KindEmail, detect.KindPhone, detect.KindPAN,
				detect.KindJWT, detect.KindAPIKey, detect.KindIBAN,
				detect.KindSSN, detect.KindPassport,
			},
			StyleMap: map[detect.DetectionKind]redact.Style{
				detect.KindJWT:    redact.StyleLabel,
				detect.KindAPIKey: redact.StyleLabel,
			},
			Defaults:            redact.Config{Label: "SECRET"},
			ConfidenceThreshold: 0.5,
		},
		{
			ID:      "strict",
			Name:    "Strict",
			BuiltIn: true,
			EnabledKinds: []detect.DetectionKind{
				detect.KindFace, detect.KindEmail, detect.KindPhone,
				detect.KindPAN, detect.KindIBAN, detect.KindSSN,
				detect.KindPassport, detect.KindJWT, detect.KindAPIKey,
				detect.KindBarcode, detect.KindName, detect.KindAddress,
				detect.KindOther,
			},
			ConfidenceThreshold: 0.3,
		},
		{
			ID:      "financial",
			Name:    "Financial",
			BuiltIn: true,
			EnabledKinds: []detect.DetectionKind{
				detect.KindPAN, detect.KindIBAN, detect.KindSSN,
			},
			StyleMap: map[detect.DetectionKind]redact.Style{
				detect.KindPAN:  redact.StyleBox,
				detect.KindIBAN: redact.StyleBox,
				detect.KindSSN:  redact.StyleBox,
			},
			ConfidenceThreshold: 0.7,
		},
	}
}
