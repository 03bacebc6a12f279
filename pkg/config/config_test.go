package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/rollgrid/pkg/grid"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, grid.Dims{W: 4, H: 4, D: 4}, cfg.GridDims())
	assert.Equal(t, 10*time.Second, cfg.Timeout())

	w, err := cfg.NewWindow(grid.Device)
	require.NoError(t, err)
	assert.Equal(t, v3.Vec{X: 1, Y: 1, Z: 1}, w.BlockSize())
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "grid.json", `{"dims": [2, 3, 4], "res": 8, "save_prefix": "scan"}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, grid.Dims{W: 2, H: 3, D: 4}, cfg.GridDims())
	assert.Equal(t, 8, cfg.Res)
	assert.Equal(t, filepath.Join(".", "scan"), cfg.SavePath())
	assert.Equal(t, Default().BBoxMax, cfg.BBoxMax)
	assert.Equal(t, "stl", cfg.ExportFormat)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name, file, body, msg string
	}{
		{"extension", "grid.yaml", `{}`, ".json extension"},
		{"syntax", "grid.json", `{"res":`, "parse"},
		{"dims", "grid.json", `{"dims": [0, 1, 1]}`, "dims[0]"},
		{"capacity", "grid.json", `{"dims": [64, 64, 2]}`, "max 4096"},
		{"res", "grid.json", `{"res": 1}`, "res"},
		{"bbox", "grid.json", `{"bbox_min": [0, 0, 0], "bbox_max": [1, 0, 1]}`, "bbox_max[1]"},
		{"trunc", "grid.json", `{"trunc": -1}`, "trunc"},
		{"timeout", "grid.json", `{"eval_timeout": "soon"}`, "eval_timeout"},
		{"prefix", "grid.json", `{"save_prefix": ""}`, "save_prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadMissingAndLarge(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	big := `{"save_dir": "` + strings.Repeat("a", maxFileSize) + `"}`
	_, err = Load(writeConfig(t, "big.json", big))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
