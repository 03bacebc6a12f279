package roll

import (
	"testing"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWindow(t *testing.T, dims grid.Dims, res int) *grid.Window {
	t.Helper()
	box := sdf.Box3{Max: v3.Vec{X: float64(dims.W), Y: float64(dims.H), Z: float64(dims.D)}}
	w, err := grid.New(dims, res, box, grid.Device)
	require.NoError(t, err)
	return w
}

func fillAll(w *grid.Window) {
	for i := range w.Blocks {
		w.Allocate(i).Fill(1)
	}
}

func TestZeroShiftIsNoop(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 4, H: 4, D: 4}, 2)
	before := w.BBox

	UpdateShift(w, grid.Index3{})
	assert.Equal(t, before, w.BBox)
	assert.True(t, w.LocalShift.IsZero())
	assert.True(t, w.GlobalShift.IsZero())

	table := ComputeEvictionTable(w, grid.Index3{})
	assert.True(t, table.Empty())
	assert.Equal(t, w.TotalBlocks(), table.Len())
}

func TestPositiveShiftOneAxis(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 4, H: 4, D: 4}, 2)
	shift := grid.Index3{X: 1}

	UpdateShift(w, shift)
	assert.InDelta(t, 1.0, w.BBox.Min.X, 1e-12, "bbox moves exactly one block width")
	assert.InDelta(t, 5.0, w.BBox.Max.X, 1e-12)
	assert.InDelta(t, 0.0, w.BBox.Min.Y, 1e-12)
	assert.Equal(t, grid.Index3{X: 1}, w.LocalShift)
	assert.Equal(t, grid.Index3{X: 1}, w.GlobalShift)

	table := ComputeEvictionTable(w, shift)
	assert.Equal(t, 16, table.Count())
	assert.Equal(t, 16, table.AxisCount(0))
	assert.Equal(t, 0, table.AxisCount(1))

	addr := w.Addr()
	for idx := 0; idx < table.Len(); idx++ {
		slot := addr.Unflat(idx)
		assert.Equal(t, slot.X == 0, table.Reset[idx], "slot %s", slot)
	}
}

func TestNegativeShiftIsSymmetric(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 4, H: 4, D: 4}, 2)
	shift := grid.Index3{Y: -1}

	UpdateShift(w, shift)
	assert.InDelta(t, -1.0, w.BBox.Min.Y, 1e-12)
	assert.Equal(t, grid.Index3{Y: 3}, w.LocalShift)
	assert.Equal(t, grid.Index3{Y: -1}, w.GlobalShift)

	table := ComputeEvictionTable(w, shift)
	assert.Equal(t, 16, table.Count())
	addr := w.Addr()
	for idx := 0; idx < table.Len(); idx++ {
		slot := addr.Unflat(idx)
		// The vacated slot now holds logical position 0.
		assert.Equal(t, slot.Y == 3, table.Reset[idx], "slot %s", slot)
		if table.Reset[idx] {
			assert.Equal(t, 0, addr.Logical(slot).Y)
		}
	}
}

func TestShiftBandCounts(t *testing.T) {
	dims := grid.Dims{W: 5, H: 3, D: 4}
	tests := []struct {
		name  string
		shift grid.Index3
		want  int
	}{
		{"x+2", grid.Index3{X: 2}, 2 * 3 * 4},
		{"x-3", grid.Index3{X: -3}, 3 * 3 * 4},
		{"y+1", grid.Index3{Y: 1}, 5 * 1 * 4},
		{"z-2", grid.Index3{Z: -2}, 5 * 3 * 2},
		{"full axis", grid.Index3{X: 5}, 5 * 3 * 4},
		{"beyond axis", grid.Index3{Z: -9}, 5 * 3 * 4},
		{"two axes", grid.Index3{X: 1, Y: 1}, 1*3*4 + 5*1*4 - 1*1*4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWindow(t, dims, 2)
			// Start from an already rolled state so bands wrap.
			w.LocalShift = grid.Index3{X: 3, Y: 1, Z: 2}
			w.GlobalShift = grid.Index3{X: 3, Y: 1, Z: 2}
			UpdateShift(w, tt.shift)
			table := ComputeEvictionTable(w, tt.shift)
			assert.Equal(t, tt.want, table.Count())
		})
	}
}

func TestLocalShiftTracksGlobal(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 3, H: 4, D: 5}, 2)
	steps := []grid.Index3{{X: 1}, {X: -4, Y: 2}, {Z: 7}, {Y: -9, Z: -1}, {X: 2, Y: 2, Z: 2}}
	for _, s := range steps {
		UpdateShift(w, s)
		for a := 0; a < 3; a++ {
			n := w.Dims.Axis(a)
			assert.Equal(t, grid.Mod(w.GlobalShift.Axis(a), n), w.LocalShift.Axis(a))
		}
	}
	assert.Equal(t, grid.Index3{X: -1, Y: -5, Z: 8}, w.GlobalShift)
}

func TestEvictedSlotsHoldNewGlobals(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 4, H: 2, D: 2}, 2)
	shift := grid.Index3{X: 2}
	UpdateShift(w, shift)
	table := ComputeEvictionTable(w, shift)

	addr := w.Addr()
	for idx := 0; idx < table.Len(); idx++ {
		g := addr.Global(addr.Unflat(idx))
		// Globals 4 and 5 entered the window; their slots were vacated.
		assert.Equal(t, g.X >= 4, table.Reset[idx])
	}
}

func TestResetAndFree(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 4, H: 4, D: 4}, 2)
	fillAll(w)
	shift := grid.Index3{X: 1}
	UpdateShift(w, shift)
	table := ComputeEvictionTable(w, shift)

	resets := 0
	r := kernel.ResetFunc(func(b *grid.Block) {
		resets++
		b.Reset()
	})
	n := ResetAndFree(w, table, r)
	assert.Equal(t, 16, n)
	assert.Equal(t, 16, resets)
	assert.Equal(t, 48, w.ActiveCount())
	for idx := 0; idx < table.Len(); idx++ {
		if table.Reset[idx] {
			assert.False(t, w.IsActive(idx))
			assert.Equal(t, 0, w.Blocks[idx].W)
			assert.Nil(t, w.Blocks[idx].Data)
		}
	}

	// A second pass with the same table changes nothing.
	assert.Equal(t, 0, ResetAndFree(w, table, r))
	assert.Equal(t, 16, resets)
	assert.Equal(t, 48, w.ActiveCount())
}

func TestResetAndFreeSkipsInactive(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 2, H: 2, D: 2}, 2)
	w.Allocate(0).Fill(1)
	shift := grid.Index3{X: 2}
	UpdateShift(w, shift)
	table := ComputeEvictionTable(w, shift)
	require.Equal(t, 8, table.Count())

	assert.Equal(t, 1, ResetAndFree(w, table, nil))
	assert.Equal(t, 0, w.ActiveCount())
	assert.Equal(t, 0, ResetAndFree(w, nil, nil))
}

func TestRolled(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 2, H: 2, D: 2}, 2)
	shift := grid.Index3{X: 1, Z: -1}
	UpdateShift(w, shift)
	table := ComputeEvictionTable(w, shift)

	addr := w.Addr()
	idx := addr.Flat(grid.Index3{X: 0, Y: 0, Z: 1})
	assert.Equal(t, [3]bool{true, false, true}, table.Rolled(idx))
	assert.Equal(t, [3]bool{}, table.Rolled(-1))
}

func TestShiftForPosition(t *testing.T) {
	w := newWindow(t, grid.Dims{W: 4, H: 4, D: 4}, 2)

	// Central block along each axis is block 2 for n=4.
	assert.Equal(t, grid.Index3{}, ShiftForPosition(w, v3.Vec{X: 2.5, Y: 2.5, Z: 2.5}))
	assert.Equal(t, grid.Index3{X: 1}, ShiftForPosition(w, v3.Vec{X: 3.5, Y: 2.5, Z: 2.5}))
	assert.Equal(t, grid.Index3{Y: -2, Z: -3}, ShiftForPosition(w, v3.Vec{X: 2.5, Y: 0.5, Z: -0.5}))

	s := ShiftForPosition(w, v3.Vec{X: 3.5, Y: 2.5, Z: 2.5})
	UpdateShift(w, s)
	assert.Equal(t, grid.Index3{}, ShiftForPosition(w, v3.Vec{X: 3.5, Y: 2.5, Z: 2.5}))
}
