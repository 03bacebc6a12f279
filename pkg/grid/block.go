package grid

import "math"

// EmptyValue marks a voxel with no observation. It is NaN so that any
// marching cube touching it is skipped.
var EmptyValue = float32(math.NaN())

// Block is a dense W×H×D array of SDF samples. A block with zero
// dimensions is inactive and owns no storage.
type Block struct {
	W, H, D int
	Data    []float32
}

// Active reports whether the block is allocated with nonzero dimensions.
func (b *Block) Active() bool {
	return b.W > 0 && b.H > 0 && b.D > 0 && len(b.Data) == b.W*b.H*b.D
}

// Init allocates storage for a w×h×d block filled with EmptyValue.
func (b *Block) Init(w, h, d int) {
	b.W, b.H, b.D = w, h, d
	b.Data = make([]float32, w*h*d)
	b.Reset()
}

// Index returns the offset of voxel (x, y, z) in Data.
func (b *Block) Index(x, y, z int) int {
	return x + b.W*(y+b.H*z)
}

func (b *Block) At(x, y, z int) float32     { return b.Data[b.Index(x, y, z)] }
func (b *Block) Set(x, y, z int, v float32) { b.Data[b.Index(x, y, z)] = v }

// Row returns the W samples of row y in depth slice z.
func (b *Block) Row(y, z int) []float32 {
	start := b.W * (y + b.H*z)
	return b.Data[start : start+b.W]
}

// Fill sets every sample to v.
func (b *Block) Fill(v float32) {
	for i := range b.Data {
		b.Data[i] = v
	}
}

// Reset fills the block with EmptyValue.
func (b *Block) Reset() { b.Fill(EmptyValue) }

// Free releases storage and zeroes the dimensions.
func (b *Block) Free() {
	b.Data = nil
	b.W, b.H, b.D = 0, 0, 0
}

// CopyFrom makes b a deep copy of src.
func (b *Block) CopyFrom(src *Block) {
	if !src.Active() {
		b.Free()
		return
	}
	if b.W != src.W || b.H != src.H || b.D != src.D || len(b.Data) != len(src.Data) {
		b.W, b.H, b.D = src.W, src.H, src.D
		b.Data = make([]float32, len(src.Data))
	}
	copy(b.Data, src.Data)
}
