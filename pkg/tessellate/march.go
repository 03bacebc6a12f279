package tessellate

import (
	"math"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MarchCube polygonises the cube whose minimum corner is logical voxel
// (x, y, z) and appends the result to m. The cube is skipped when any
// corner is missing or non-finite. A corner is inside when its value is
// at most iso. When color is a valid window with the same geometry as w,
// each vertex also carries a grey colour sampled from it. It returns the
// number of triangles appended.
func MarchCube(w, color *grid.Window, x, y, z int, iso float64, m *kernel.Mesh) int {
	var vals [8]float64
	var pos [8]v3.Vec
	for i, o := range cornerOffset {
		cx, cy, cz := x+o[0], y+o[1], z+o[2]
		if !w.VoxelExists(cx, cy, cz) {
			return 0
		}
		v := float64(w.Voxel(cx, cy, cz))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		vals[i] = v
		pos[i] = w.VoxelPosition(cx, cy, cz)
	}

	c := 0
	for i, v := range vals {
		if v <= iso {
			c |= 1 << i
		}
	}
	flags := edgeTable[c]
	if flags == 0 {
		return 0
	}

	useColor := color.IsValid() && color.SameGeometry(w)
	base := uint32(m.VertexCount())
	var vertex [12]uint32
	for e, ab := range edgeCorners {
		if flags&(1<<e) == 0 {
			continue
		}
		a, b := ab[0], ab[1]
		t := edgeOffset(iso, vals[a], vals[b])
		p := pos[a].Add(pos[b].Sub(pos[a]).MulScalar(t))
		n := surfaceNormal(w, p)

		vertex[e] = base
		base++
		m.Vertices = append(m.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
		m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
		if useColor {
			g := float32(color.SampleClamped(p))
			if math.IsNaN(float64(g)) {
				g = 0
			}
			m.Colors = append(m.Colors, g, g, g, 1)
		}
	}

	tris := 0
	for i := 0; triTable[c][i] != -1; i += 3 {
		m.Indices = append(m.Indices,
			vertex[triTable[c][i]],
			vertex[triTable[c][i+1]],
			vertex[triTable[c][i+2]])
		tris++
	}
	return tris
}

// edgeOffset returns where the iso-surface crosses the edge between values
// v1 and v2, as a fraction of the way from v1.
func edgeOffset(iso, v1, v2 float64) float64 {
	d := v2 - v1
	if d == 0 {
		return 0.5
	}
	return (iso - v1) / d
}

func surfaceNormal(w *grid.Window, p v3.Vec) v3.Vec {
	g := w.BackwardDiff(p)
	l := g.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return v3.Vec{}
	}
	return g.DivScalar(l)
}
