// Package roll translates a grid.Window in whole-block steps. A shift moves
// the bounding box and advances the address space; the slots whose content
// rolled out of the window are reported in an EvictionTable, which the
// evictor consumes to reclaim them.
package roll

import (
	"math"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/monitoring"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// UpdateShift translates w by shift blocks: the bounding box moves by
// exactly shift block widths per axis and the local and global shifts
// advance by the same amount. A zero shift is a no-op.
func UpdateShift(w *grid.Window, shift grid.Index3) {
	if shift.IsZero() {
		return
	}
	monitoring.Debugf("[UpdateShift] new shift for current frame is %s; updating bbox", shift)

	bs := w.BlockSize()
	if shift.X != 0 {
		d := float64(shift.X) * bs.X
		w.BBox.Min.X += d
		w.BBox.Max.X += d
		monitoring.Debugf("[UpdateShift] shift x:%d (index), %f (m), bbox x now [%f, %f]", shift.X, d, w.BBox.Min.X, w.BBox.Max.X)
	}
	if shift.Y != 0 {
		d := float64(shift.Y) * bs.Y
		w.BBox.Min.Y += d
		w.BBox.Max.Y += d
		monitoring.Debugf("[UpdateShift] shift y:%d (index), %f (m), bbox y now [%f, %f]", shift.Y, d, w.BBox.Min.Y, w.BBox.Max.Y)
	}
	if shift.Z != 0 {
		d := float64(shift.Z) * bs.Z
		w.BBox.Min.Z += d
		w.BBox.Max.Z += d
		monitoring.Debugf("[UpdateShift] shift z:%d (index), %f (m), bbox z now [%f, %f]", shift.Z, d, w.BBox.Min.Z, w.BBox.Max.Z)
	}

	w.GlobalShift = w.GlobalShift.Add(shift)
	for a := 0; a < 3; a++ {
		n := w.Dims.Axis(a)
		w.LocalShift = w.LocalShift.WithAxis(a, grid.Mod(w.LocalShift.Axis(a)+shift.Axis(a), n))
	}
}

// EvictionTable flags, per slot, whether the slot's content rolled out of
// the window during one shift, and on which axes. Tables are built fresh
// for every shift and never reused.
type EvictionTable struct {
	Shift grid.Index3
	Reset []bool
	X     []bool
	Y     []bool
	Z     []bool
}

// Len returns the number of slots covered.
func (t *EvictionTable) Len() int { return len(t.Reset) }

// Count returns the number of slots flagged for reset.
func (t *EvictionTable) Count() int {
	n := 0
	for _, r := range t.Reset {
		if r {
			n++
		}
	}
	return n
}

// AxisCount returns the number of slots flagged on axis a.
func (t *EvictionTable) AxisCount(a int) int {
	n := 0
	for _, f := range t.axis(a) {
		if f {
			n++
		}
	}
	return n
}

// Empty reports whether no slot is flagged.
func (t *EvictionTable) Empty() bool { return t.Count() == 0 }

// Rolled returns the per-axis flags of slot idx.
func (t *EvictionTable) Rolled(idx int) [3]bool {
	if idx < 0 || idx >= len(t.Reset) {
		return [3]bool{}
	}
	return [3]bool{t.X[idx], t.Y[idx], t.Z[idx]}
}

func (t *EvictionTable) axis(a int) []bool {
	switch a {
	case 0:
		return t.X
	case 1:
		return t.Y
	default:
		return t.Z
	}
}

// ComputeEvictionTable flags the slots vacated by shift. It must run after
// UpdateShift has committed the same shift to w. For a positive shift s on
// an axis with local shift l, slots in [l-s, l) (mod n) are vacated; for a
// negative shift the band is [l, l+|s|). A shift of a full axis or more
// vacates every slot.
func ComputeEvictionTable(w *grid.Window, shift grid.Index3) *EvictionTable {
	total := w.TotalBlocks()
	t := &EvictionTable{
		Shift: shift,
		Reset: make([]bool, total),
		X:     make([]bool, total),
		Y:     make([]bool, total),
		Z:     make([]bool, total),
	}
	if shift.IsZero() {
		return t
	}

	addr := w.Addr()
	for idx := 0; idx < total; idx++ {
		slot := addr.Unflat(idx)
		for a := 0; a < 3; a++ {
			if vacated(slot.Axis(a), w.LocalShift.Axis(a), shift.Axis(a), w.Dims.Axis(a)) {
				t.axis(a)[idx] = true
				t.Reset[idx] = true
			}
		}
	}
	monitoring.Debugf("[ComputeEvictionTable] shift %s flags %d of %d slots", shift, t.Count(), total)
	return t
}

func vacated(c, l, s, n int) bool {
	switch {
	case s == 0:
		return false
	case s >= n || -s >= n:
		return true
	case s > 0:
		return grid.Mod(c-(l-s), n) < s
	default:
		return grid.Mod(c-l, n) < -s
	}
}

// ShiftForPosition returns the block shift that brings the block containing
// p to the centre of the window. It is zero while p stays in the central
// block.
func ShiftForPosition(w *grid.Window, p v3.Vec) grid.Index3 {
	bs := w.BlockSize()
	rel := p.Sub(w.BBox.Min)
	q := [3]float64{rel.X / bs.X, rel.Y / bs.Y, rel.Z / bs.Z}
	var out grid.Index3
	for a := 0; a < 3; a++ {
		block := int(math.Floor(q[a]))
		out = out.WithAxis(a, block-w.Dims.Axis(a)/2)
	}
	return out
}
