package pxm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/monitoring"
	"github.com/chazu/rollgrid/pkg/roll"
)

// BBMarker tags bounding-box record names.
const BBMarker = "BB"

// Kind classifies a written record.
type Kind string

const (
	KindBlock     Kind = "block"
	KindWindowBox Kind = "window-bbox"
	KindBlockBox  Kind = "block-bbox"
)

// Record describes one file written by a save.
type Record struct {
	Path   string
	Kind   Kind
	Slot   grid.Index3
	Global grid.Index3
}

// Recorder is told about every record a save writes.
type Recorder interface {
	RecordBlock(rec Record) error
}

// Options controls SaveWindow.
type Options struct {
	// GlobalPose names block records path-gx-gy-gz-lx-ly-lz instead of
	// path-lx-ly-lz.
	GlobalPose bool
	// SaveBBox writes path-BB-gx-gy-gz for each saved block unless that
	// file already exists.
	SaveBBox bool
	// Colors is the colour count written to record headers.
	Colors int
	// Recorder, if set, is told about every record written.
	Recorder Recorder
}

func (o Options) colors() int {
	if o.Colors <= 0 {
		return DefaultColors
	}
	return o.Colors
}

// WindowBox returns the bounding-box record of w, including its shift
// state.
func WindowBox(w *grid.Window) BoxRecord {
	return BoxRecord{Box: w.BBox, Local: w.LocalShift, Global: w.GlobalShift, HasShift: true}
}

// RecordGlobal returns the global coordinate used to name the record of
// slot idx. On an axis flagged in rolled it is the window's global shift
// on that axis, the edge the window rolled to; elsewhere it is the slot's
// current global coordinate.
func RecordGlobal(w *grid.Window, idx int, rolled *roll.EvictionTable) grid.Index3 {
	addr := w.Addr()
	g := addr.Global(addr.Unflat(idx))
	if rolled == nil {
		return g
	}
	flags := rolled.Rolled(idx)
	for a := 0; a < 3; a++ {
		if flags[a] {
			g = g.WithAxis(a, w.GlobalShift.Axis(a))
		}
	}
	return g
}

// PriorGlobal returns the global block coordinate that the content of
// slot idx had before the shift recorded in rolled. On axes that did not
// wrap it equals the slot's current global coordinate. Recorders receive
// it as Record.Global.
func PriorGlobal(w *grid.Window, idx int, rolled *roll.EvictionTable) grid.Index3 {
	addr := w.Addr()
	slot := addr.Unflat(idx)
	g := addr.Global(slot)
	if rolled == nil {
		return g
	}
	p := addr.Logical(slot)
	flags := rolled.Rolled(idx)
	for a := 0; a < 3; a++ {
		if !flags[a] {
			continue
		}
		s := rolled.Shift.Axis(a)
		old := grid.Mod(p.Axis(a)+s, w.Dims.Axis(a)) + w.GlobalShift.Axis(a) - s
		g = g.WithAxis(a, old)
	}
	return g
}

// SaveWindow writes every active slot of w whose mask entry is set. A
// device window is snapshotted to a host mirror first. When rolled is the
// eviction table of the shift just applied, names use RecordGlobal while
// the Recorder is given the content's PriorGlobal. The window
// bounding box is always written to path-BB. Per-slot failures are
// collected and returned together; the pass continues past them. An empty
// window is reported with ErrEmptyWindow and nothing is written.
func SaveWindow(path string, w *grid.Window, mask []bool, rolled *roll.EvictionTable, opts Options) (int, error) {
	if w.ActiveCount() == 0 {
		monitoring.Logf("[SaveWindow] cannot save model for empty window %s", path)
		return 0, ErrEmptyWindow
	}
	host := w
	if w.Residency != grid.Host {
		host = w.Mirror(grid.Host)
	}

	bbName := path + "-" + BBMarker
	if err := WriteBBoxFile(bbName, WindowBox(host)); err != nil {
		return 0, fmt.Errorf("pxm: save window: %w", err)
	}
	var errs []error
	errs = append(errs, record(opts.Recorder, Record{Path: bbName, Kind: KindWindowBox, Global: host.GlobalShift}))

	addr := host.Addr()
	saved := 0
	for idx := 0; idx < host.TotalBlocks(); idx++ {
		if idx >= len(mask) || !mask[idx] || !host.IsActive(idx) {
			continue
		}
		slot := addr.Unflat(idx)
		g := RecordGlobal(host, idx, rolled)
		prior := PriorGlobal(host, idx, rolled)

		var name string
		if opts.GlobalPose {
			name = fmt.Sprintf("%s-%d-%d-%d-%d-%d-%d", path, g.X, g.Y, g.Z, slot.X, slot.Y, slot.Z)
		} else {
			name = fmt.Sprintf("%s-%d-%d-%d", path, slot.X, slot.Y, slot.Z)
		}
		if err := WriteBlockFile(name, &host.Blocks[idx], opts.colors()); err != nil {
			errs = append(errs, fmt.Errorf("slot %s: %w", slot, err))
			continue
		}
		saved++
		monitoring.Debugf("[SaveWindow] slot %s global %s (content %s) -> %s", slot, g, prior, name)
		errs = append(errs, record(opts.Recorder, Record{Path: name, Kind: KindBlock, Slot: slot, Global: prior}))

		if opts.SaveBBox {
			errs = append(errs, saveBlockBox(path, host, g, opts.Recorder))
		}
	}
	monitoring.Logf("[SaveWindow] saved %d blocks to %s", saved, path)
	return saved, errors.Join(errs...)
}

func saveBlockBox(path string, w *grid.Window, g grid.Index3, rec Recorder) error {
	name := fmt.Sprintf("%s-%s-%d-%d-%d", path, BBMarker, g.X, g.Y, g.Z)
	if _, err := os.Stat(name); !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := WriteBBoxFile(name, BoxRecord{Box: w.GlobalBlockBox(g)}); err != nil {
		return fmt.Errorf("block box %s: %w", g, err)
	}
	return record(rec, Record{Path: name, Kind: KindBlockBox, Global: g})
}

func record(r Recorder, rec Record) error {
	if r == nil {
		return nil
	}
	return r.RecordBlock(rec)
}

// SaveAll writes path-BB and one path-<flat index> record per active slot.
// Like SaveWindow it continues past per-slot failures and returns them
// together.
func SaveAll(path string, w *grid.Window) (int, error) {
	if w.ActiveCount() == 0 {
		monitoring.Logf("[SaveAll] cannot save model for empty window %s", path)
		return 0, ErrEmptyWindow
	}
	host := w.Mirror(grid.Host)
	if err := WriteBBoxFile(path+"-"+BBMarker, WindowBox(host)); err != nil {
		return 0, fmt.Errorf("pxm: save all: %w", err)
	}
	var errs []error
	saved := 0
	for idx := 0; idx < host.TotalBlocks(); idx++ {
		if !host.IsActive(idx) {
			continue
		}
		name := path + "-" + strconv.Itoa(idx)
		if err := WriteBlockFile(name, &host.Blocks[idx], DefaultColors); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", idx, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// ListRecords returns the names in dir that start with prefix followed by
// a dash, sorted.
func ListRecords(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pxm: list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix+"-") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// IsBBoxName reports whether name is a bounding-box record name.
func IsBBoxName(name string) bool {
	for _, part := range strings.Split(filepath.Base(name), "-") {
		if part == BBMarker {
			return true
		}
	}
	return false
}

// TrailingInts returns the dash-separated integers ending name, in order.
// A negative number appears as an empty component before its digits, so
// "scan-1--2-3" yields [1 -2 3].
func TrailingInts(name string) []int {
	parts := strings.Split(filepath.Base(name), "-")
	var rev []int
	negated := false
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p == "" {
			if len(rev) == 0 || negated {
				break
			}
			rev[len(rev)-1] = -rev[len(rev)-1]
			negated = true
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			break
		}
		rev = append(rev, n)
		negated = false
	}
	out := make([]int, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

// SlotForName resolves a block record name to a slot of w. Six trailing
// integers are a global then local triple; the global coordinate is used
// when useGlobal is set. Three to five are a local triple. One or two end
// in a flat index. The second result is false when the record's global
// block lies outside w.
func SlotForName(name string, w *grid.Window, useGlobal bool) (int, bool, error) {
	ints := TrailingInts(name)
	addr := w.Addr()
	n := len(ints)
	switch {
	case n >= 6:
		if useGlobal {
			g := grid.Index3{X: ints[n-6], Y: ints[n-5], Z: ints[n-4]}
			slot, ok := addr.SlotOfGlobal(g)
			if !ok {
				return 0, false, nil
			}
			return addr.Flat(slot), true, nil
		}
		fallthrough
	case n >= 3:
		slot := grid.Index3{X: ints[n-3], Y: ints[n-2], Z: ints[n-1]}
		if !addr.Contains(slot) {
			return 0, false, fmt.Errorf("%w: %s: slot %s outside %s", ErrBadRecord, name, slot, w.Dims)
		}
		return addr.Flat(slot), true, nil
	case n >= 1:
		idx := ints[n-1]
		if idx < 0 || idx >= w.TotalBlocks() {
			return 0, false, fmt.Errorf("%w: %s: index %d outside %s", ErrBadRecord, name, idx, w.Dims)
		}
		return idx, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s: no block index", ErrBadRecord, name)
	}
}

// LoadWindow reads the bounding-box record dir/bbFile and every block
// record in files into dst. Bounding-box records among files are skipped.
// Records are assembled in a host window first; any failure aborts the
// load and leaves dst untouched.
func LoadWindow(dir string, files []string, bbFile string, dst *grid.Window) error {
	rec, err := ReadBBoxFile(filepath.Join(dir, bbFile))
	if err != nil {
		return fmt.Errorf("pxm: load: %w", err)
	}
	host, err := grid.New(dst.Dims, dst.Res, rec.Box, grid.Host)
	if err != nil {
		return fmt.Errorf("pxm: load: %w", err)
	}
	if rec.HasShift {
		for a := 0; a < 3; a++ {
			n := dst.Dims.Axis(a)
			if l := rec.Local.Axis(a); l < 0 || l >= n || l != grid.Mod(rec.Global.Axis(a), n) {
				return fmt.Errorf("pxm: load: %w: shift %s/%s does not fit %s", ErrBadRecord, rec.Local, rec.Global, dst.Dims)
			}
		}
		host.LocalShift, host.GlobalShift = rec.Local, rec.Global
	}

	loaded, skipped := 0, 0
	for _, name := range files {
		if name == bbFile || IsBBoxName(name) {
			continue
		}
		idx, ok, err := SlotForName(name, host, rec.HasShift)
		if err != nil {
			return fmt.Errorf("pxm: load: %w", err)
		}
		if !ok {
			skipped++
			monitoring.Debugf("[LoadWindow] %s lies outside the window, skipped", name)
			continue
		}
		b, err := ReadBlockFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("pxm: load: cannot read block %s with index %d: %w", name, idx, err)
		}
		if b.W != host.Res || b.H != host.Res || b.D != host.Res {
			return fmt.Errorf("pxm: load: %s: %w: block %dx%dx%d, window resolution %d",
				name, grid.ErrDimsMismatch, b.W, b.H, b.D, host.Res)
		}
		host.Blocks[idx] = b
		loaded++
	}

	if err := dst.CopyFrom(host); err != nil {
		return fmt.Errorf("pxm: load: %w", err)
	}
	monitoring.Logf("[LoadWindow] loaded %d blocks (%d skipped), bbox min %v max %v", loaded, skipped, rec.Box.Min, rec.Box.Max)
	return nil
}
