package tessellate_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/chazu/rollgrid/pkg/kernel/sdfx"
	"github.com/chazu/rollgrid/pkg/roll"
	"github.com/chazu/rollgrid/pkg/tessellate"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitWindow(t *testing.T, dims grid.Dims, res int, lo, hi float64) *grid.Window {
	t.Helper()
	box := sdf.Box3{Min: v3.Vec{X: lo, Y: lo, Z: lo}, Max: v3.Vec{X: hi, Y: hi, Z: hi}}
	w, err := grid.New(dims, res, box, grid.Device)
	require.NoError(t, err)
	return w
}

// singleCube returns a one-block window whose only full cube has the given
// corner values, indexed like the marching cubes corners.
func singleCube(t *testing.T, vals [8]float32) *grid.Window {
	t.Helper()
	w := unitWindow(t, grid.Dims{W: 1, H: 1, D: 1}, 2, 0, 1)
	offsets := [8][3]int{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}
	for i, o := range offsets {
		require.True(t, w.SetVoxel(o[0], o[1], o[2], vals[i]))
	}
	return w
}

func TestMarchCubeUniform(t *testing.T) {
	for _, v := range []float32{1, -1} {
		w := singleCube(t, [8]float32{v, v, v, v, v, v, v, v})
		m := &kernel.Mesh{}
		assert.Equal(t, 0, tessellate.MarchCube(w, nil, 0, 0, 0, 0, m))
		assert.True(t, m.IsEmpty())
	}
}

func TestMarchCubeSingleCorner(t *testing.T) {
	w := singleCube(t, [8]float32{-1, 1, 1, 1, 1, 1, 1, 1})
	m := &kernel.Mesh{}
	require.Equal(t, 1, tessellate.MarchCube(w, nil, 0, 0, 0, 0, m))
	assert.Equal(t, 3, m.VertexCount())
	assert.Equal(t, 1, m.TriangleCount())
	assert.False(t, m.HasColors())

	// Voxel spacing is 0.5; every crossing sits halfway along its edge.
	want := map[[3]float32]bool{{0.25, 0, 0}: true, {0, 0.25, 0}: true, {0, 0, 0.25}: true}
	for i := 0; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		assert.True(t, want[[3]float32{float32(v.X), float32(v.Y), float32(v.Z)}], "unexpected vertex %v", v)
	}

	// The face points away from the inside corner.
	f := m.Triangle(0)
	a, b, c := m.Vertex(int(f[0])), m.Vertex(int(f[1])), m.Vertex(int(f[2]))
	n := b.Sub(a).Cross(c.Sub(a))
	assert.Greater(t, n.Dot(v3.Vec{X: 1, Y: 1, Z: 1}), 0.0)
}

func TestMarchCubeOffsetUsesIso(t *testing.T) {
	w := singleCube(t, [8]float32{0, 1, 1, 1, 1, 1, 1, 1})
	m := &kernel.Mesh{}
	require.Equal(t, 1, tessellate.MarchCube(w, nil, 0, 0, 0, 0.25, m))
	for i := 0; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		// A quarter of the way along a 0.5 edge.
		assert.InDelta(t, 0.125, v.X+v.Y+v.Z, 1e-6)
	}
}

func TestMarchCubeSkipsMissingCorners(t *testing.T) {
	w := singleCube(t, [8]float32{-1, 1, 1, 1, 1, 1, 1, 1})
	m := &kernel.Mesh{}

	// The cube at (1,1,1) reaches past the window.
	assert.Equal(t, 0, tessellate.MarchCube(w, nil, 1, 1, 1, 0, m))

	w.SetVoxel(1, 1, 1, float32(math.NaN()))
	assert.Equal(t, 0, tessellate.MarchCube(w, nil, 0, 0, 0, 0, m))

	w.SetVoxel(1, 1, 1, float32(math.Inf(1)))
	assert.Equal(t, 0, tessellate.MarchCube(w, nil, 0, 0, 0, 0, m))
	assert.True(t, m.IsEmpty())
}

func TestMarchCubeColors(t *testing.T) {
	w := singleCube(t, [8]float32{-1, 1, 1, 1, 1, 1, 1, 1})
	color := w.Mirror(grid.Device)
	color.Blocks[0].Fill(0.5)

	m := &kernel.Mesh{}
	require.Equal(t, 1, tessellate.MarchCube(w, color, 0, 0, 0, 0, m))
	require.True(t, m.HasColors())
	for i := 0; i < m.VertexCount(); i++ {
		assert.Equal(t, []float32{0.5, 0.5, 0.5, 1}, m.Colors[4*i:4*i+4])
	}

	// A colour window of different geometry is ignored.
	other := unitWindow(t, grid.Dims{W: 2, H: 1, D: 1}, 2, 0, 1)
	m = &kernel.Mesh{}
	tessellate.MarchCube(w, other, 0, 0, 0, 0, m)
	assert.False(t, m.HasColors())

	// Unobserved colour samples become black.
	color.Blocks[0].Reset()
	m = &kernel.Mesh{}
	tessellate.MarchCube(w, color, 0, 0, 0, 0, m)
	require.True(t, m.HasColors())
	assert.Equal(t, []float32{0, 0, 0, 1}, m.Colors[0:4])
}

func fusedSphere(t *testing.T, radius float64) *grid.Window {
	t.Helper()
	w := unitWindow(t, grid.Dims{W: 2, H: 2, D: 2}, 4, -1, 1)
	s, err := sdfx.Sphere(v3.Vec{}, radius)
	require.NoError(t, err)
	_, err = sdfx.NewFuser(0.5).Fuse(w, s)
	require.NoError(t, err)
	require.Equal(t, 8, w.ActiveCount())
	return w
}

func TestExtractSphere(t *testing.T) {
	w := fusedSphere(t, 0.6)
	m := tessellate.ExtractMesh(w, nil, tessellate.Options{Name: "sphere"})

	require.False(t, m.IsEmpty())
	assert.Equal(t, "sphere", m.Name)
	assert.True(t, m.Finite())
	assert.Equal(t, m.VertexCount()*3, len(m.Normals))
	for _, idx := range m.Indices {
		assert.Less(t, int(idx), m.VertexCount())
	}

	outward, nonzero := 0, 0
	for i := 0; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		assert.InDelta(t, 0.6, v.Length(), 0.1)
		n := m.Normal(i)
		l := n.Length()
		if l == 0 {
			continue
		}
		assert.InDelta(t, 1.0, l, 1e-5)
		nonzero++
		if n.Dot(v) > 0 {
			outward++
		}
	}
	require.Greater(t, nonzero, 0)
	assert.GreaterOrEqual(t, float64(outward), 0.9*float64(nonzero))

	stats := m.Stats()
	assert.InDelta(t, 4*math.Pi*0.36, stats.Area, 0.5)
}

func TestExtractAcrossRolledSeam(t *testing.T) {
	w := fusedSphere(t, 0.6)
	before := tessellate.ExtractMesh(w, nil, tessellate.Options{})

	// The same logical content stored under a different local shift must
	// mesh identically.
	rolled := w.Mirror(grid.Device)
	rolled.LocalShift = grid.Index3{X: 1, Y: 1}
	for idx := range w.Blocks {
		slot := w.Addr().Unflat(idx)
		dst := rolled.Addr().Slot(w.Addr().Logical(slot))
		rolled.Blocks[rolled.Addr().Flat(dst)].CopyFrom(&w.Blocks[idx])
	}
	after := tessellate.ExtractMesh(rolled, nil, tessellate.Options{})
	assert.Equal(t, before.TriangleCount(), after.TriangleCount())
	assert.InDelta(t, before.Stats().Area, after.Stats().Area, 1e-6)
}

func TestExtractOpenBoundary(t *testing.T) {
	w := fusedSphere(t, 0.6)
	full := tessellate.ExtractMesh(w, nil, tessellate.Options{})

	shift := grid.Index3{X: 1}
	roll.UpdateShift(w, shift)
	table := roll.ComputeEvictionTable(w, shift)
	require.Equal(t, 4, roll.ResetAndFree(w, table, nil))

	half := tessellate.ExtractMesh(w, nil, tessellate.Options{})
	assert.True(t, half.Finite())
	assert.Less(t, half.TriangleCount(), full.TriangleCount())
}

func TestExtractEmptyWindow(t *testing.T) {
	w := unitWindow(t, grid.Dims{W: 2, H: 2, D: 2}, 4, -1, 1)
	assert.True(t, tessellate.ExtractMesh(w, nil, tessellate.Options{}).IsEmpty())
	assert.True(t, tessellate.ExtractMesh(nil, nil, tessellate.Options{}).IsEmpty())
}

type recordingExporter struct {
	path, format string
	mesh         *kernel.Mesh
	err          error
}

func (r *recordingExporter) Export(m *kernel.Mesh, path, format string) error {
	r.mesh, r.path, r.format = m, path, format
	return r.err
}

func (r *recordingExporter) Formats() []string { return []string{"stl"} }

func TestExtractExports(t *testing.T) {
	w := fusedSphere(t, 0.6)
	exp := &recordingExporter{}
	m, err := tessellate.Extract(w, nil, tessellate.Options{}, exp, "out.stl", "stl")
	require.NoError(t, err)
	assert.Same(t, m, exp.mesh)
	assert.Equal(t, "stl", exp.format)

	exp.err = errors.New("disk full")
	_, err = tessellate.Extract(w, nil, tessellate.Options{}, exp, "out.stl", "stl")
	assert.ErrorIs(t, err, exp.err)

	_, err = tessellate.Extract(w, nil, tessellate.Options{}, nil, "out.stl", "stl")
	assert.Error(t, err)

	empty := unitWindow(t, grid.Dims{W: 1, H: 1, D: 1}, 2, 0, 1)
	_, err = tessellate.Extract(empty, nil, tessellate.Options{}, exp, "out.stl", "stl")
	assert.Error(t, err)
}

func TestExtractWritesSTL(t *testing.T) {
	w := fusedSphere(t, 0.6)
	path := filepath.Join(t.TempDir(), "sphere.stl")
	_, err := tessellate.Extract(w, nil, tessellate.Options{}, sdfx.NewExporter(), path, "stl")
	require.NoError(t, err)
	assert.FileExists(t, path)
}
