package booth

import (
	"fmt"
	"image"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tstromberg/stripbooth/pkg/capture"
	"github.com/tstromberg/stripbooth/pkg/compose"
	"github.com/tstromberg/stripbooth/pkg/selection"
)

// Size is a width and height in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (s Size) Point() image.Point {
	return image.Pt(s.Width, s.Height)
}

// AutotagConfig controls AI keyword suggestions for saved strips.
type AutotagConfig struct {
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key. Tagging is off when it is unset.
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey returns the configured key, or empty.
func (a AutotagConfig) APIKey() string {
	if a.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.APIKeyEnv)
}

// Config is the booth configuration, usually read from a YAML file.
type Config struct {
	ThemesDir  string `yaml:"themes_dir"`
	ResultDir  string `yaml:"result_dir"`
	ArchiveDir string `yaml:"archive_dir"`
	LedgerPath string `yaml:"ledger_path"`
	FontPath   string `yaml:"font_path"`
	Label      string `yaml:"label"`
	// Color is the initial strip background.
	Color string `yaml:"color"`

	Countdown       int           `yaml:"countdown"`
	Tick            time.Duration `yaml:"tick"`
	Flash           time.Duration `yaml:"flash"`
	PreviewInterval time.Duration `yaml:"preview_interval"`
	ShotSize        Size          `yaml:"shot_size"`
	PreviewSize     Size          `yaml:"preview_size"`
	MaxMissedFrames int           `yaml:"max_missed_frames"`

	Camera   int    `yaml:"camera"`
	Listen   string `yaml:"listen"`
	BaseURL  string `yaml:"base_url"`
	PrintPDF bool   `yaml:"print_pdf"`
	// SaveShots keeps every shot of a session in the archive, not only the strip.
	SaveShots bool          `yaml:"save_shots"`
	Autotag   AutotagConfig `yaml:"autotag"`
}

// DefaultConfig returns the settings of a stock booth.
func DefaultConfig() Config {
	cc := capture.DefaultConfig()
	return Config{
		ThemesDir:       "frames",
		ResultDir:       "result",
		FontPath:        compose.DefaultFontPath,
		Label:           compose.DefaultLabel,
		Color:           selection.Palette[0].Name,
		Countdown:       cc.CountdownDuration,
		Tick:            cc.TickInterval,
		Flash:           cc.FlashDuration,
		PreviewInterval: cc.PreviewInterval,
		ShotSize:        Size{cc.ShotSize.X, cc.ShotSize.Y},
		PreviewSize:     Size{cc.PreviewSize.X, cc.PreviewSize.Y},
		MaxMissedFrames: cc.MaxMissedFrames,
		Autotag:         AutotagConfig{APIKeyEnv: "GOOGLE_AI_API_KEY"},
	}
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	bs, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read: %w", err)
	}
	if err := yaml.Unmarshal(bs, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate reports settings the booth cannot run with.
func (c Config) Validate() error {
	if c.ResultDir == "" {
		return fmt.Errorf("result_dir is required")
	}
	if c.ThemesDir == "" {
		return fmt.Errorf("themes_dir is required")
	}
	if c.Countdown < 0 {
		return fmt.Errorf("countdown must not be negative: %d", c.Countdown)
	}
	if c.Tick <= 0 || c.Flash < 0 || c.PreviewInterval <= 0 {
		return fmt.Errorf("tick and preview_interval must be positive, flash not negative")
	}
	if c.ShotSize.Width <= 0 || c.ShotSize.Height <= 0 || c.PreviewSize.Width <= 0 || c.PreviewSize.Height <= 0 {
		return fmt.Errorf("shot_size and preview_size must be positive")
	}
	if c.MaxMissedFrames < 0 {
		return fmt.Errorf("max_missed_frames must not be negative: %d", c.MaxMissedFrames)
	}
	if _, err := selection.ParseColor(c.Color); err != nil {
		return err
	}
	return nil
}

// CaptureConfig returns the sequencer settings.
func (c Config) CaptureConfig() capture.Config {
	cc := capture.DefaultConfig()
	cc.CountdownDuration = c.Countdown
	cc.TickInterval = c.Tick
	cc.FlashDuration = c.Flash
	cc.PreviewInterval = c.PreviewInterval
	cc.ShotSize = c.ShotSize.Point()
	cc.PreviewSize = c.PreviewSize.Point()
	cc.MaxMissedFrames = c.MaxMissedFrames
	return cc
}
