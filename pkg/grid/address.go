package grid

import "fmt"

// Index3 is an integer lattice coordinate.
type Index3 struct {
	X, Y, Z int
}

func (a Index3) Add(b Index3) Index3 { return Index3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Index3) Sub(b Index3) Index3 { return Index3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Index3) Scale(k int) Index3  { return Index3{a.X * k, a.Y * k, a.Z * k} }

// IsZero reports whether all components are zero.
func (a Index3) IsZero() bool { return a.X == 0 && a.Y == 0 && a.Z == 0 }

// Axis returns component 0 (X), 1 (Y) or 2 (Z).
func (a Index3) Axis(i int) int {
	switch i {
	case 0:
		return a.X
	case 1:
		return a.Y
	default:
		return a.Z
	}
}

// WithAxis returns a copy with component i replaced by v.
func (a Index3) WithAxis(i, v int) Index3 {
	switch i {
	case 0:
		a.X = v
	case 1:
		a.Y = v
	default:
		a.Z = v
	}
	return a
}

func (a Index3) String() string { return fmt.Sprintf("(%d,%d,%d)", a.X, a.Y, a.Z) }

// Dims is the size of a window's block lattice.
type Dims struct {
	W, H, D int
}

// Total returns the number of slots in the lattice.
func (d Dims) Total() int { return d.W * d.H * d.D }

// Axis returns the lattice size along axis i.
func (d Dims) Axis(i int) int { return Index3{d.W, d.H, d.D}.Axis(i) }

func (d Dims) String() string { return fmt.Sprintf("%dx%dx%d", d.W, d.H, d.D) }

// Mod returns a modulo n in [0, n).
func Mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// AddressSpace maps between slot (local) coordinates, logical positions
// measured from the window's minimum corner, and unbounded global block
// coordinates. It is derived from a window's shift state and holds no
// storage of its own.
//
// Along an axis of size n with local shift l, slot s holds logical
// position (s - l) mod n, and its global coordinate is that position plus
// the global shift, kept in Shift.
type AddressSpace struct {
	Dims  Dims
	Local Index3
	Shift Index3
}

// Flat returns the arena index of a slot.
func (a AddressSpace) Flat(slot Index3) int {
	return slot.X + a.Dims.W*(slot.Y+a.Dims.H*slot.Z)
}

// Unflat is the inverse of Flat.
func (a AddressSpace) Unflat(i int) Index3 {
	x := i % a.Dims.W
	y := (i / a.Dims.W) % a.Dims.H
	z := i / (a.Dims.W * a.Dims.H)
	return Index3{x, y, z}
}

// Contains reports whether slot lies inside the lattice.
func (a AddressSpace) Contains(slot Index3) bool {
	return slot.X >= 0 && slot.X < a.Dims.W &&
		slot.Y >= 0 && slot.Y < a.Dims.H &&
		slot.Z >= 0 && slot.Z < a.Dims.D
}

// Logical returns the position of slot relative to the window minimum.
func (a AddressSpace) Logical(slot Index3) Index3 {
	var out Index3
	for i := 0; i < 3; i++ {
		n := a.Dims.Axis(i)
		out = out.WithAxis(i, Mod(slot.Axis(i)-a.Local.Axis(i), n))
	}
	return out
}

// Slot returns the slot holding a logical position.
func (a AddressSpace) Slot(logical Index3) Index3 {
	var out Index3
	for i := 0; i < 3; i++ {
		n := a.Dims.Axis(i)
		out = out.WithAxis(i, Mod(logical.Axis(i)+a.Local.Axis(i), n))
	}
	return out
}

// Global returns the global block coordinate of a slot.
func (a AddressSpace) Global(slot Index3) Index3 {
	return a.Logical(slot).Add(a.Shift)
}

// SlotOfGlobal returns the slot that holds global block g, if g lies in the
// window.
func (a AddressSpace) SlotOfGlobal(g Index3) (Index3, bool) {
	p := g.Sub(a.Shift)
	if !a.Contains(p) {
		return Index3{}, false
	}
	return a.Slot(p), true
}
