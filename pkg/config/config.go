// Package config loads the JSON configuration of a rolling-grid session.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// maxFileSize bounds the size of a config file.
const maxFileSize = 1 * 1024 * 1024

// Config describes the window geometry, meshing and persistence settings
// of a session.
type Config struct {
	// Window geometry
	Dims    [3]int     `json:"dims"`
	Res     int        `json:"res"`
	BBoxMin [3]float64 `json:"bbox_min"`
	BBoxMax [3]float64 `json:"bbox_max"`

	// Fusion and meshing
	Trunc        float64 `json:"trunc"`
	Iso          float64 `json:"iso"`
	Color        bool    `json:"color"`
	ExportFormat string  `json:"export_format"`

	// Persistence
	SaveEvicted bool   `json:"save_evicted"`
	SaveDir     string `json:"save_dir"`
	SavePrefix  string `json:"save_prefix"`
	GlobalPose  bool   `json:"global_pose"`
	SaveBBox    bool   `json:"save_bbox"`
	Colors      int    `json:"colors"`
	CatalogPath string `json:"catalog_path,omitempty"`

	// Engine
	EvalTimeout string `json:"eval_timeout"` // duration string like "10s"
	Verbose     bool   `json:"verbose"`
}

// Default returns the configuration used when no file is given: a 4×4×4
// window of 16³ blocks spanning a 4 m cube centred on the origin.
func Default() *Config {
	return &Config{
		Dims:         [3]int{4, 4, 4},
		Res:          16,
		BBoxMin:      [3]float64{-2, -2, -2},
		BBoxMax:      [3]float64{2, 2, 2},
		Trunc:        0.1,
		Iso:          0,
		ExportFormat: "stl",
		SaveDir:      ".",
		SavePrefix:   "grid",
		GlobalPose:   true,
		Colors:       255,
		EvalTimeout:  "10s",
	}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Fields omitted from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	for i, n := range c.Dims {
		if n <= 0 {
			return fmt.Errorf("dims[%d] must be positive, got %d", i, n)
		}
	}
	if total := c.Dims[0] * c.Dims[1] * c.Dims[2]; total > grid.MaxBlocks {
		return fmt.Errorf("dims %v hold %d blocks (max %d)", c.Dims, total, grid.MaxBlocks)
	}
	if c.Res < 2 {
		return fmt.Errorf("res must be at least 2, got %d", c.Res)
	}
	for i := 0; i < 3; i++ {
		if c.BBoxMax[i] <= c.BBoxMin[i] {
			return fmt.Errorf("bbox_max[%d] (%g) must exceed bbox_min[%d] (%g)", i, c.BBoxMax[i], i, c.BBoxMin[i])
		}
	}
	if c.Trunc < 0 {
		return fmt.Errorf("trunc must be non-negative, got %g", c.Trunc)
	}
	if c.Colors <= 0 || c.Colors > 65535 {
		return fmt.Errorf("colors must be between 1 and 65535, got %d", c.Colors)
	}
	if c.SavePrefix == "" {
		return fmt.Errorf("save_prefix must not be empty")
	}
	if c.EvalTimeout != "" {
		if _, err := time.ParseDuration(c.EvalTimeout); err != nil {
			return fmt.Errorf("invalid eval_timeout '%s': %w", c.EvalTimeout, err)
		}
	}
	return nil
}

// GridDims returns the window lattice size.
func (c *Config) GridDims() grid.Dims {
	return grid.Dims{W: c.Dims[0], H: c.Dims[1], D: c.Dims[2]}
}

// BBox returns the initial window bounds.
func (c *Config) BBox() sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: c.BBoxMin[0], Y: c.BBoxMin[1], Z: c.BBoxMin[2]},
		Max: v3.Vec{X: c.BBoxMax[0], Y: c.BBoxMax[1], Z: c.BBoxMax[2]},
	}
}

// Timeout returns the script evaluation timeout, or zero when unset.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.EvalTimeout)
	if err != nil {
		return 0
	}
	return d
}

// SavePath returns the record path prefix for saves.
func (c *Config) SavePath() string {
	return filepath.Join(c.SaveDir, c.SavePrefix)
}

// NewWindow returns an empty window with the configured geometry.
func (c *Config) NewWindow(r grid.Residency) (*grid.Window, error) {
	return grid.New(c.GridDims(), c.Res, c.BBox(), r)
}
