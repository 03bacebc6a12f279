package grid

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MaxBlocks is the largest lattice a window supports.
const MaxBlocks = 4096

// ErrDimsMismatch is returned when two windows or a window and a record do
// not share the same lattice and block resolution.
var ErrDimsMismatch = errors.New("grid: window geometry mismatch")

// Residency says which memory a window mirrors. Fusion and meshing work on
// Device windows; persistence reads and writes Host windows. The two are
// only ever related by a whole-window CopyFrom.
type Residency int

const (
	Device Residency = iota
	Host
)

func (r Residency) String() string {
	switch r {
	case Device:
		return "device"
	case Host:
		return "host"
	default:
		return "unknown"
	}
}

// Window is the rolling array of blocks covering BBox. Blocks is a fixed
// arena indexed by slot; a slot is resident when its block is active.
type Window struct {
	Dims        Dims
	Res         int
	BBox        sdf.Box3
	LocalShift  Index3
	GlobalShift Index3
	Residency   Residency
	Blocks      []Block
}

// New creates an empty window of dims blocks, each res voxels per axis.
func New(dims Dims, res int, bbox sdf.Box3, r Residency) (*Window, error) {
	if dims.W <= 0 || dims.H <= 0 || dims.D <= 0 {
		return nil, fmt.Errorf("grid: invalid lattice %s", dims)
	}
	if dims.Total() > MaxBlocks {
		return nil, fmt.Errorf("grid: lattice %s exceeds %d blocks", dims, MaxBlocks)
	}
	if res < 2 {
		return nil, fmt.Errorf("grid: block resolution %d too small", res)
	}
	size := bbox.Size()
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("grid: degenerate bounding box %v", bbox)
	}
	return &Window{
		Dims:      dims,
		Res:       res,
		BBox:      bbox,
		Residency: r,
		Blocks:    make([]Block, dims.Total()),
	}, nil
}

// Addr returns the address space for the window's current shift state.
func (w *Window) Addr() AddressSpace {
	return AddressSpace{Dims: w.Dims, Local: w.LocalShift, Shift: w.GlobalShift}
}

// TotalBlocks returns the number of slots.
func (w *Window) TotalBlocks() int { return len(w.Blocks) }

// IsValid reports whether the window has a usable lattice.
func (w *Window) IsValid() bool {
	return w != nil && w.Res > 0 && len(w.Blocks) == w.Dims.Total() && len(w.Blocks) > 0
}

// SameGeometry reports whether o has the same lattice and resolution.
func (w *Window) SameGeometry(o *Window) bool {
	return w != nil && o != nil && w.Dims == o.Dims && w.Res == o.Res
}

// IsActive reports whether slot idx holds an allocated block.
func (w *Window) IsActive(idx int) bool {
	if idx < 0 || idx >= len(w.Blocks) {
		return false
	}
	return w.Blocks[idx].Active()
}

// ActiveCount returns the number of resident blocks.
func (w *Window) ActiveCount() int {
	n := 0
	for i := range w.Blocks {
		if w.Blocks[i].Active() {
			n++
		}
	}
	return n
}

// Allocate returns the block in slot idx, allocating it if inactive.
func (w *Window) Allocate(idx int) *Block {
	b := &w.Blocks[idx]
	if !b.Active() {
		b.Init(w.Res, w.Res, w.Res)
	}
	return b
}

// FreeBlock releases the storage of slot idx.
func (w *Window) FreeBlock(idx int) {
	if idx >= 0 && idx < len(w.Blocks) {
		w.Blocks[idx].Free()
	}
}

// BlockSize returns the world extent of one block.
func (w *Window) BlockSize() v3.Vec {
	s := w.BBox.Size()
	return v3.Vec{
		X: s.X / float64(w.Dims.W),
		Y: s.Y / float64(w.Dims.H),
		Z: s.Z / float64(w.Dims.D),
	}
}

// VoxelSize returns the world spacing between adjacent samples.
func (w *Window) VoxelSize() v3.Vec {
	return w.BlockSize().DivScalar(float64(w.Res))
}

// VoxelExtent returns the number of logical voxels along each axis.
func (w *Window) VoxelExtent() Index3 {
	return Index3{w.Dims.W * w.Res, w.Dims.H * w.Res, w.Dims.D * w.Res}
}

// SlotVoxelOrigin returns the logical voxel coordinate of a slot's first
// sample.
func (w *Window) SlotVoxelOrigin(slot Index3) Index3 {
	return w.Addr().Logical(slot).Scale(w.Res)
}

// BlockBox returns the world bounds of the block held in slot.
func (w *Window) BlockBox(slot Index3) sdf.Box3 {
	return w.boxAt(w.Addr().Logical(slot))
}

// GlobalBlockBox returns the world bounds of global block g, which need not
// be resident.
func (w *Window) GlobalBlockBox(g Index3) sdf.Box3 {
	return w.boxAt(g.Sub(w.GlobalShift))
}

func (w *Window) boxAt(logical Index3) sdf.Box3 {
	bs := w.BlockSize()
	lo := w.BBox.Min.Add(bs.Mul(v3.Vec{X: float64(logical.X), Y: float64(logical.Y), Z: float64(logical.Z)}))
	return sdf.Box3{Min: lo, Max: lo.Add(bs)}
}

// locate resolves a logical voxel coordinate to its block and offset.
func (w *Window) locate(x, y, z int) (*Block, int, bool) {
	ext := w.VoxelExtent()
	if x < 0 || y < 0 || z < 0 || x >= ext.X || y >= ext.Y || z >= ext.Z {
		return nil, 0, false
	}
	slot := w.Addr().Slot(Index3{x / w.Res, y / w.Res, z / w.Res})
	b := &w.Blocks[w.Addr().Flat(slot)]
	if !b.Active() {
		return nil, 0, false
	}
	return b, b.Index(x%w.Res, y%w.Res, z%w.Res), true
}

// VoxelExists reports whether the logical voxel lies in a resident block.
func (w *Window) VoxelExists(x, y, z int) bool {
	_, _, ok := w.locate(x, y, z)
	return ok
}

// Voxel returns the sample at a logical voxel, or EmptyValue when the voxel
// does not exist.
func (w *Window) Voxel(x, y, z int) float32 {
	b, i, ok := w.locate(x, y, z)
	if !ok {
		return EmptyValue
	}
	return b.Data[i]
}

// SetVoxel writes a logical voxel, allocating its block if needed. It
// returns false when the coordinate is outside the window.
func (w *Window) SetVoxel(x, y, z int, v float32) bool {
	ext := w.VoxelExtent()
	if x < 0 || y < 0 || z < 0 || x >= ext.X || y >= ext.Y || z >= ext.Z {
		return false
	}
	slot := w.Addr().Slot(Index3{x / w.Res, y / w.Res, z / w.Res})
	b := w.Allocate(w.Addr().Flat(slot))
	b.Set(x%w.Res, y%w.Res, z%w.Res, v)
	return true
}

// VoxelPosition returns the world position of a logical voxel.
func (w *Window) VoxelPosition(x, y, z int) v3.Vec {
	return w.BBox.Min.Add(w.VoxelSize().Mul(v3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}))
}

// CopyFrom overwrites w with a full snapshot of src: bounds, shift state
// and every block. Block storage is never shared between the two.
func (w *Window) CopyFrom(src *Window) error {
	if !w.SameGeometry(src) {
		return fmt.Errorf("%w: %s/%d vs %s/%d", ErrDimsMismatch, w.Dims, w.Res, src.Dims, src.Res)
	}
	w.BBox = src.BBox
	w.LocalShift = src.LocalShift
	w.GlobalShift = src.GlobalShift
	for i := range w.Blocks {
		w.Blocks[i].CopyFrom(&src.Blocks[i])
	}
	return nil
}

// Mirror returns a deep copy of w with residency r.
func (w *Window) Mirror(r Residency) *Window {
	m := &Window{
		Dims:      w.Dims,
		Res:       w.Res,
		Residency: r,
		Blocks:    make([]Block, len(w.Blocks)),
	}
	// Geometry is identical by construction.
	_ = m.CopyFrom(w)
	return m
}
