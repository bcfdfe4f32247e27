package config

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/soocke/score-split-go/domain/match"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SCORESPLIT_"

// Config holds runtime configuration for detection, recognition, frame
// sources and outputs. Fields are loaded from a JSON file, then overridden
// by SCORESPLIT_* environment variables and finally by command-line flags.
type Config struct {
	Debug     bool   `json:"debug" env:"DEBUG"`
	LogLevel  string `json:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" env:"LOG_FORMAT"` // "", "json" or "text"

	SplitsPath string `json:"splits_path" env:"SPLITS_PATH"`

	// Detection parameters
	Threshold        float64 `json:"threshold" env:"THRESHOLD"`
	Method           string  `json:"method" env:"METHOD"`
	Stride           int     `json:"stride" env:"STRIDE"`
	Refine           bool    `json:"refine" env:"REFINE"`
	TriggerCacheSize int     `json:"trigger_cache_size" env:"TRIGGER_CACHE_SIZE"`

	// Recognition
	TessdataPrefix   string  `json:"tessdata_prefix" env:"TESSDATA_PREFIX"`
	OCRLanguage      string  `json:"ocr_language" env:"OCR_LANGUAGE"`
	OCRWhitelist     string  `json:"ocr_whitelist" env:"OCR_WHITELIST"`
	OCRMinConfidence float64 `json:"ocr_min_confidence" env:"OCR_MIN_CONFIDENCE"`

	// Frame source: "screen", "video", "dir" or "files"
	Source            string  `json:"source" env:"SOURCE"`
	Input             string  `json:"input" env:"INPUT"`
	FPS               float64 `json:"fps" env:"FPS"`
	StartSeconds      float64 `json:"start_seconds" env:"START_SECONDS"`
	CaptureIntervalMs int     `json:"capture_interval_ms" env:"CAPTURE_INTERVAL_MS"`

	// Screen selection rectangle; zero width captures the full screen.
	SelectionX int `json:"selection_x" env:"SELECTION_X"`
	SelectionY int `json:"selection_y" env:"SELECTION_Y"`
	SelectionW int `json:"selection_w" env:"SELECTION_W"`
	SelectionH int `json:"selection_h" env:"SELECTION_H"`

	ResultsDB        string `json:"results_db" env:"RESULTS_DB"`
	MetricsAddr      string `json:"metrics_addr" env:"METRICS_ADDR"`
	FailureWarnAfter int    `json:"failure_warn_after" env:"FAILURE_WARN_AFTER"`
}

// Sources lists the accepted Source values.
var Sources = []string{"screen", "video", "dir", "files"}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:             false,
		LogLevel:          "info",
		SplitsPath:        "splits.ssplt",
		Threshold:         0.95,
		Method:            match.CCorrNormed.String(),
		Stride:            1,
		Refine:            true,
		TriggerCacheSize:  16,
		OCRLanguage:       "eng",
		OCRWhitelist:      "0123456789",
		OCRMinConfidence:  0,
		Source:            "screen",
		FPS:               2,
		StartSeconds:      0,
		CaptureIntervalMs: 250,
		ResultsDB:         defaultResultsDB(),
		MetricsAddr:       "",
		FailureWarnAfter:  10,
	}
}

func defaultResultsDB() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scoresplit", "results.db")
	}
	return "results.db"
}

// Validate clamps/normalizes values to safe ranges. It returns an error only
// for values that cannot be repaired.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		c.Threshold = 0.95
	}
	if _, err := match.ParseMethod(c.Method); err != nil {
		return err
	}
	if c.Stride <= 0 {
		c.Stride = 1
	}
	if c.TriggerCacheSize <= 0 {
		c.TriggerCacheSize = 16
	}
	if c.OCRLanguage == "" {
		c.OCRLanguage = "eng"
	}
	if c.OCRMinConfidence < 0 || c.OCRMinConfidence > 100 {
		c.OCRMinConfidence = 0
	}
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = "screen"
	}
	known := false
	for _, s := range Sources {
		if c.Source == s {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown source %q (want one of %s)", c.Source, strings.Join(Sources, ", "))
	}
	if c.FPS <= 0 || c.FPS > 120 {
		c.FPS = 2
	}
	if c.StartSeconds < 0 {
		c.StartSeconds = 0
	}
	if c.CaptureIntervalMs < 0 {
		c.CaptureIntervalMs = 250
	}
	if c.SelectionW < 0 || c.SelectionH < 0 {
		c.SelectionW, c.SelectionH = 0, 0
	}
	if c.FailureWarnAfter <= 0 {
		c.FailureWarnAfter = 10
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		c.LogFormat = ""
	}
	return nil
}

// MatchMethod returns the parsed correlation method.
func (c *Config) MatchMethod() match.Method {
	m, _ := match.ParseMethod(c.Method)
	return m
}

// Selection returns the screen selection or nil for full screen capture.
func (c *Config) Selection() *image.Rectangle {
	if c.SelectionW <= 0 || c.SelectionH <= 0 {
		return nil
	}
	r := image.Rect(c.SelectionX, c.SelectionY, c.SelectionX+c.SelectionW, c.SelectionY+c.SelectionH)
	return &r
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			dec := json.NewDecoder(f)
			if err := dec.Decode(cfg); err != nil {
				return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SCORESPLIT_* variables that are set.
func ApplyEnv(c *Config) error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scoresplit", "config.json")
	}
	return "scoresplit.json"
}
