package grid

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Sample trilinearly interpolates the field at world point p. It returns
// NaN when any of the eight surrounding voxels is missing or p lies outside
// the window.
func (w *Window) Sample(p v3.Vec) float64 {
	return w.sample(p, false)
}

// SampleClamped is Sample with p clamped into the window's voxel range.
func (w *Window) SampleClamped(p v3.Vec) float64 {
	return w.sample(p, true)
}

func (w *Window) sample(p v3.Vec, clamp bool) float64 {
	vs := w.VoxelSize()
	ext := w.VoxelExtent()
	rel := p.Sub(w.BBox.Min)
	u := [3]float64{rel.X / vs.X, rel.Y / vs.Y, rel.Z / vs.Z}
	n := [3]int{ext.X, ext.Y, ext.Z}

	var base [3]int
	var frac [3]float64
	for a := 0; a < 3; a++ {
		c := u[a]
		hi := float64(n[a] - 1)
		if clamp {
			c = math.Max(0, math.Min(c, hi))
		}
		if math.IsNaN(c) || c < 0 || c > hi {
			return math.NaN()
		}
		i := int(math.Floor(c))
		f := c - float64(i)
		if i >= n[a]-1 {
			i = n[a] - 2
			f = 1
		}
		base[a], frac[a] = i, f
	}

	var acc float64
	for corner := 0; corner < 8; corner++ {
		dx, dy, dz := corner&1, (corner>>1)&1, (corner>>2)&1
		v, ok := w.sampleVoxel(base[0]+dx, base[1]+dy, base[2]+dz)
		if !ok {
			return math.NaN()
		}
		wx := 1 - frac[0]
		if dx == 1 {
			wx = frac[0]
		}
		wy := 1 - frac[1]
		if dy == 1 {
			wy = frac[1]
		}
		wz := 1 - frac[2]
		if dz == 1 {
			wz = frac[2]
		}
		acc += wx * wy * wz * float64(v)
	}
	return acc
}

func (w *Window) sampleVoxel(x, y, z int) (float32, bool) {
	b, i, ok := w.locate(x, y, z)
	if !ok {
		return 0, false
	}
	return b.Data[i], true
}

// BackwardDiff returns the backward finite-difference gradient of the
// field at p, one voxel step per axis. Components are NaN where a sample
// is unavailable.
func (w *Window) BackwardDiff(p v3.Vec) v3.Vec {
	vs := w.VoxelSize()
	v0 := w.Sample(p)
	return v3.Vec{
		X: (v0 - w.Sample(p.Sub(v3.Vec{X: vs.X}))) / vs.X,
		Y: (v0 - w.Sample(p.Sub(v3.Vec{Y: vs.Y}))) / vs.Y,
		Z: (v0 - w.Sample(p.Sub(v3.Vec{Z: vs.Z}))) / vs.Z,
	}
}
