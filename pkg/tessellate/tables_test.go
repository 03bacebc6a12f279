package tessellate

import (
	"math/bits"
	"testing"
)

func triangleCount(c int) int {
	n := 0
	for i := 0; triTable[c][i] != -1; i += 3 {
		n++
	}
	return n
}

func TestEdgeTableKnownEntries(t *testing.T) {
	tests := []struct {
		c    int
		want uint16
	}{
		{0x00, 0x000},
		{0xff, 0x000},
		{0x01, 0x109},
		{0x03, 0x30a},
		{0x0f, 0xf00},
		{0x80, 0x8c0},
	}
	for _, tt := range tests {
		if got := edgeTable[tt.c]; got != tt.want {
			t.Errorf("edgeTable[%#x] = %#x, want %#x", tt.c, got, tt.want)
		}
	}
}

func TestTriangleCounts(t *testing.T) {
	tests := []struct {
		c    int
		want int
	}{
		{0x00, 0},
		{0xff, 0},
		{0x01, 1},
		{0xfe, 1},
		{0x03, 2},
		{0x0f, 2},
		{0x05, 2}, // ambiguous face: corners 0 and 2 stay separate
		{0xa5, 4}, // checkerboard: four isolated corners
	}
	for _, tt := range tests {
		if got := triangleCount(tt.c); got != tt.want {
			t.Errorf("triangles(%#x) = %d, want %d", tt.c, got, tt.want)
		}
	}
}

func TestTablesAreConsistent(t *testing.T) {
	most := 0
	for c := 0; c < 256; c++ {
		if edgeTable[c] != edgeTable[255-c] {
			t.Errorf("complement of %#x crosses different edges", c)
		}

		used := uint16(0)
		n := triangleCount(c)
		for i := 0; i < 3*n; i++ {
			e := triTable[c][i]
			if e < 0 || e > 11 {
				t.Fatalf("case %#x: bad edge %d", c, e)
			}
			if edgeTable[c]&(1<<e) == 0 {
				t.Errorf("case %#x: triangle uses uncrossed edge %d", c, e)
			}
			used |= 1 << e
		}
		if used != edgeTable[c] {
			t.Errorf("case %#x: edges %#x crossed but %#x used", c, edgeTable[c], used)
		}
		if triTable[c][3*n] != -1 {
			t.Errorf("case %#x: missing terminator", c)
		}
		// Each closed loop of k edges fans into k-2 triangles.
		if want := bits.OnesCount16(edgeTable[c]) - 2*len(edgeLoops(c)); n != want {
			t.Errorf("case %#x: %d triangles, want %d", c, n, want)
		}
		if n > most {
			most = n
		}
	}
	if most != maxTriangles {
		t.Errorf("largest configuration has %d triangles, want %d", most, maxTriangles)
	}
}

func TestTrianglesFaceOutward(t *testing.T) {
	for c := 1; c < 255; c++ {
		for i := 0; triTable[c][i] != -1; i += 3 {
			a, b, d := int(triTable[c][i]), int(triTable[c][i+1]), int(triTable[c][i+2])
			pa := edgeMid(a)
			n := edgeMid(b).Sub(pa).Cross(edgeMid(d).Sub(pa))
			dir := outward(c, a).Add(outward(c, b)).Add(outward(c, d))
			if n.Dot(dir) <= 0 {
				t.Errorf("case %#x triangle %d winds inward", c, i/3)
			}
		}
	}
}

func TestEdgeOffset(t *testing.T) {
	tests := []struct {
		iso, v1, v2 float64
		want        float64
	}{
		{0, -1, 1, 0.5},
		{0, 0.25, 0.25, 0.5},
		{0.25, 0, 1, 0.25},
		{0, -3, 1, 0.75},
	}
	for _, tt := range tests {
		if got := edgeOffset(tt.iso, tt.v1, tt.v2); got != tt.want {
			t.Errorf("edgeOffset(%v, %v, %v) = %v, want %v", tt.iso, tt.v1, tt.v2, got, tt.want)
		}
	}
}
