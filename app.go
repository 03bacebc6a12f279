package main

import (
	"github.com/chazu/rollgrid/pkg/config"
	"github.com/chazu/rollgrid/pkg/engine"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/chazu/rollgrid/pkg/monitoring"
	"github.com/chazu/rollgrid/pkg/session"
)

// App runs rollgrid scripts and converts their output to JSON-friendly
// values.
type App struct {
	cfg    *config.Config
	engine *engine.Engine
}

// MeshData is the JSON-serializable mesh format.
type MeshData struct {
	Name     string    `json:"name"`
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	Colors   []float32 `json:"colors,omitempty"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of one script run.
type EvalResult struct {
	Mesh     *MeshData       `json:"mesh,omitempty"`
	Report   *session.Report `json:"report,omitempty"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp creates an App whose scripts run against sessions built from cfg.
// A nil cfg uses config.Default.
func NewApp(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	return &App{cfg: cfg, engine: engine.NewEngine(cfg)}
}

// Evaluate runs source and returns the final mesh, the session report and
// any errors.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	res, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, bad config).
		monitoring.Logf("Evaluate fatal error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}

	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	result.Report = res.Report
	for _, w := range res.Report.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: w})
	}
	if !res.Mesh.IsEmpty() {
		result.Mesh = meshData(res.Mesh)
	}
	return result
}

func meshData(m *kernel.Mesh) *MeshData {
	return &MeshData{
		Name:     m.Name,
		Vertices: m.Vertices,
		Normals:  m.Normals,
		Indices:  m.Indices,
		Colors:   m.Colors,
	}
}
