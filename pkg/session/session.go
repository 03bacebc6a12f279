// Package session runs the per-frame cycle of a rolling grid: shift the
// window, page out what rolled away, evict it, fuse new observations and
// extract the surface on demand.
package session

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/chazu/rollgrid/pkg/catalog"
	"github.com/chazu/rollgrid/pkg/config"
	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/chazu/rollgrid/pkg/kernel/sdfx"
	"github.com/chazu/rollgrid/pkg/monitoring"
	"github.com/chazu/rollgrid/pkg/pxm"
	"github.com/chazu/rollgrid/pkg/roll"
	"github.com/chazu/rollgrid/pkg/tessellate"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Session owns a device window, its optional colour window and the
// collaborators that act on them. It is not safe for concurrent use.
type Session struct {
	cfg      *config.Config
	window   *grid.Window
	color    *grid.Window
	fuser    kernel.Fuser
	exporter kernel.Exporter
	resetter kernel.Resetter

	catalog     *catalog.Catalog
	ownsCatalog bool
	id          string

	frames   int
	evicted  int
	saved    int
	fused    int
	mesh     *kernel.Mesh
	warnings []string
}

// Option configures a Session.
type Option func(*Session)

// WithFuser replaces the default sdfx fuser.
func WithFuser(f kernel.Fuser) Option { return func(s *Session) { s.fuser = f } }

// WithExporter replaces the default STL exporter.
func WithExporter(e kernel.Exporter) Option { return func(s *Session) { s.exporter = e } }

// WithResetter replaces the default block resetter.
func WithResetter(r kernel.Resetter) Option { return func(s *Session) { s.resetter = r } }

// WithCatalog records every saved record in c. The caller keeps ownership
// of c.
func WithCatalog(c *catalog.Catalog) Option { return func(s *Session) { s.catalog = c } }

// RollReport summarises one shift.
type RollReport struct {
	Shift   grid.Index3 `json:"shift"`
	Flagged int         `json:"flagged"`
	Saved   int         `json:"saved"`
	Evicted int         `json:"evicted"`
}

// Report summarises the session state.
type Report struct {
	Session      string            `json:"session,omitempty"`
	Frames       int               `json:"frames"`
	ActiveBlocks int               `json:"active_blocks"`
	Evicted      int               `json:"evicted"`
	Saved        int               `json:"saved"`
	Fused        int               `json:"fused"`
	BBox         sdf.Box3          `json:"bbox"`
	LocalShift   grid.Index3       `json:"local_shift"`
	GlobalShift  grid.Index3       `json:"global_shift"`
	Mesh         *kernel.MeshStats `json:"mesh,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// New creates a session with an empty window built from cfg. When
// cfg.CatalogPath is set and no catalog was passed, the session opens and
// owns one.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	w, err := cfg.NewWindow(grid.Device)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{cfg: cfg, window: w}
	for _, opt := range opts {
		opt(s)
	}
	if s.fuser == nil {
		s.fuser = sdfx.NewFuser(cfg.Trunc)
	}
	if s.exporter == nil {
		s.exporter = sdfx.NewExporter()
	}
	if s.resetter == nil {
		s.resetter = kernel.DefaultResetter
	}
	if cfg.Color {
		s.color = w.Mirror(grid.Device)
	}

	if s.catalog == nil && cfg.CatalogPath != "" {
		c, err := catalog.Open(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		s.catalog, s.ownsCatalog = c, true
	}
	if s.catalog != nil {
		id, err := s.catalog.NewSession(w.Dims, w.Res)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("session: %w", err)
		}
		s.id = id
	}
	monitoring.Debugf("[session] new %s window, res %d, bbox %v", w.Dims, w.Res, w.BBox)
	return s, nil
}

// Resume switches the catalog to an earlier session so Load finds its
// records. The earlier session must have the same window geometry.
func (s *Session) Resume(id string) error {
	if s.catalog == nil {
		return fmt.Errorf("session: resume %s: no catalog", id)
	}
	dims, res, err := s.catalog.UseSession(id)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if dims != s.window.Dims || res != s.window.Res {
		return fmt.Errorf("session: resume %s: %w: %s/%d vs %s/%d", id, grid.ErrDimsMismatch, dims, res, s.window.Dims, s.window.Res)
	}
	s.id = id
	return nil
}

// Window returns the device window.
func (s *Session) Window() *grid.Window { return s.window }

// Color returns the colour window, or nil when colour is disabled.
func (s *Session) Color() *grid.Window { return s.color }

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config { return s.cfg }

// ID returns the catalog session id, or "" without a catalog.
func (s *Session) ID() string { return s.id }

func (s *Session) recorder() pxm.Recorder {
	if s.catalog == nil {
		return nil
	}
	return s.catalog
}

func (s *Session) warnf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	s.warnings = append(s.warnings, msg)
	monitoring.Logf("[session] warning: %s", msg)
}

// Roll shifts the window by shift blocks. Slots whose content rolled out
// are saved first when SaveEvicted is configured, then reset and freed.
// Save failures are returned after eviction has completed.
func (s *Session) Roll(shift grid.Index3) (RollReport, error) {
	rep := RollReport{Shift: shift}
	s.frames++
	if shift.IsZero() {
		return rep, nil
	}

	roll.UpdateShift(s.window, shift)
	table := roll.ComputeEvictionTable(s.window, shift)
	rep.Flagged = table.Count()
	if s.color != nil {
		roll.UpdateShift(s.color, shift)
	}

	var saveErr error
	if s.cfg.SaveEvicted && !table.Empty() {
		n, err := pxm.SaveWindow(s.cfg.SavePath(), s.window, table.Reset, table, pxm.Options{
			GlobalPose: s.cfg.GlobalPose,
			SaveBBox:   s.cfg.SaveBBox,
			Colors:     s.cfg.Colors,
			Recorder:   s.recorder(),
		})
		switch {
		case errors.Is(err, pxm.ErrEmptyWindow):
			s.warnf("roll %s: nothing to save", shift)
		case err != nil:
			saveErr = fmt.Errorf("session: save evicted: %w", err)
		}
		rep.Saved = n
		s.saved += n
	}

	rep.Evicted = roll.ResetAndFree(s.window, table, s.resetter)
	if s.color != nil {
		roll.ResetAndFree(s.color, table, s.resetter)
	}
	s.evicted += rep.Evicted
	monitoring.Debugf("[session] roll %s: %d flagged, %d saved, %d evicted", shift, rep.Flagged, rep.Saved, rep.Evicted)
	return rep, saveErr
}

// MoveTo rolls the window so that the block containing p is central.
func (s *Session) MoveTo(p v3.Vec) (RollReport, error) {
	return s.Roll(roll.ShiftForPosition(s.window, p))
}

// Fuse writes an observation into the window.
func (s *Session) Fuse(shape sdf.SDF3) (int, error) {
	n, err := s.fuser.Fuse(s.window, shape)
	if err != nil {
		return n, fmt.Errorf("session: fuse: %w", err)
	}
	s.fused += n
	return n, nil
}

// Paint sets the colour of every resident voxel within the truncation band
// of shape to intensity. It is a no-op without a colour window.
func (s *Session) Paint(shape sdf.SDF3, intensity float32) int {
	if s.color == nil {
		return 0
	}
	band := s.cfg.Trunc
	if band <= 0 {
		vs := s.window.VoxelSize()
		band = math.Max(vs.X, math.Max(vs.Y, vs.Z))
	}
	addr := s.window.Addr()
	painted := 0
	for idx := 0; idx < s.window.TotalBlocks(); idx++ {
		if !s.window.IsActive(idx) {
			continue
		}
		b := s.color.Allocate(idx)
		o := s.window.SlotVoxelOrigin(addr.Unflat(idx))
		for z := 0; z < b.D; z++ {
			for y := 0; y < b.H; y++ {
				for x := 0; x < b.W; x++ {
					p := s.window.VoxelPosition(o.X+x, o.Y+y, o.Z+z)
					if math.Abs(shape.Evaluate(p)) <= band {
						b.Set(x, y, z, intensity)
						painted++
					}
				}
			}
		}
	}
	return painted
}

// Mesh extracts the current surface.
func (s *Session) Mesh() *kernel.Mesh {
	s.mesh = tessellate.ExtractMesh(s.window, s.color, tessellate.Options{Iso: s.cfg.Iso, Name: s.cfg.SavePrefix})
	return s.mesh
}

// Export extracts the surface and writes it to path. An empty format uses
// the configured one.
func (s *Session) Export(path, format string) (*kernel.Mesh, error) {
	if format == "" {
		format = s.cfg.ExportFormat
	}
	m, err := tessellate.Extract(s.window, s.color, tessellate.Options{Iso: s.cfg.Iso, Name: s.cfg.SavePrefix}, s.exporter, path, format)
	if m != nil {
		s.mesh = m
	}
	if err != nil {
		return m, fmt.Errorf("session: %w", err)
	}
	return m, nil
}

// Save writes every resident block under SaveDir/prefix, named by global
// position so a later Load can place them in a moved window.
func (s *Session) Save(prefix string) (int, error) {
	mask := make([]bool, s.window.TotalBlocks())
	for i := range mask {
		mask[i] = true
	}
	n, err := pxm.SaveWindow(filepath.Join(s.cfg.SaveDir, prefix), s.window, mask, nil, pxm.Options{
		GlobalPose: true,
		SaveBBox:   s.cfg.SaveBBox,
		Colors:     s.cfg.Colors,
		Recorder:   s.recorder(),
	})
	s.saved += n
	if errors.Is(err, pxm.ErrEmptyWindow) {
		s.warnf("save %s: window is empty", prefix)
		return 0, nil
	}
	if err != nil {
		return n, fmt.Errorf("session: save: %w", err)
	}
	return n, nil
}

// Load replaces the window with the records saved under SaveDir/prefix.
// With a catalog the record list comes from the current session's
// entries; otherwise the directory is listed. On failure the window is
// left unchanged.
func (s *Session) Load(prefix string) error {
	files, err := s.recordFiles(prefix)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	if err := pxm.LoadWindow(s.cfg.SaveDir, files, prefix+"-"+pxm.BBMarker, s.window); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if s.color != nil {
		s.color = s.window.Mirror(grid.Device)
		for i := range s.color.Blocks {
			s.color.Blocks[i].Free()
		}
	}
	s.mesh = nil
	return nil
}

func (s *Session) recordFiles(prefix string) ([]string, error) {
	if s.catalog == nil {
		return pxm.ListRecords(s.cfg.SaveDir, prefix)
	}
	all, err := s.catalog.Files(s.id)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range all {
		if strings.HasPrefix(f, prefix+"-") {
			files = append(files, f)
		}
	}
	return files, nil
}

// Report returns a snapshot of the session state.
func (s *Session) Report() *Report {
	r := &Report{
		Session:      s.id,
		Frames:       s.frames,
		ActiveBlocks: s.window.ActiveCount(),
		Evicted:      s.evicted,
		Saved:        s.saved,
		Fused:        s.fused,
		BBox:         s.window.BBox,
		LocalShift:   s.window.LocalShift,
		GlobalShift:  s.window.GlobalShift,
		Warnings:     append([]string(nil), s.warnings...),
	}
	if s.mesh != nil {
		st := s.mesh.Stats()
		r.Mesh = &st
	}
	return r
}

// LastMesh returns the most recently extracted mesh, or nil.
func (s *Session) LastMesh() *kernel.Mesh { return s.mesh }

// Close releases the catalog if the session opened it.
func (s *Session) Close() error {
	if s.ownsCatalog && s.catalog != nil {
		err := s.catalog.Close()
		s.catalog = nil
		return err
	}
	return nil
}
