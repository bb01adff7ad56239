package vision

// Region is one detected face or barcode in pixel coordinates.
type Region struct {
	Label      string  `json:"label"` // "face" or "barcode"
	Confidence float64 `json:"confidence"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
}

// Config contains detector backend configuration
type Config struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	ModelPath     string  `yaml:"model_path" mapstructure:"model_path"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}
