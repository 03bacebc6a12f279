package kernel

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mesh is a triangle mesh accumulated across every block of a window.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, colors has 4 floats per vertex (rgba)
// or is empty, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Colors   []float32 `json:"colors,omitempty"`
	Indices  []uint32  `json:"indices"`
	Name     string    `json:"name"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// HasColors reports whether every vertex carries a colour.
func (m *Mesh) HasColors() bool {
	return len(m.Colors) > 0 && len(m.Colors)/4 == m.VertexCount()
}

// Vertex returns vertex i as a vector.
func (m *Mesh) Vertex(i int) v3.Vec {
	return v3.Vec{X: float64(m.Vertices[3*i]), Y: float64(m.Vertices[3*i+1]), Z: float64(m.Vertices[3*i+2])}
}

// Normal returns the normal of vertex i.
func (m *Mesh) Normal(i int) v3.Vec {
	return v3.Vec{X: float64(m.Normals[3*i]), Y: float64(m.Normals[3*i+1]), Z: float64(m.Normals[3*i+2])}
}

// Triangle returns the vertex indices of face i.
func (m *Mesh) Triangle(i int) [3]uint32 {
	return [3]uint32{m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]}
}

// Triangles returns the faces as sdfx triangles.
func (m *Mesh) Triangles() []*sdf.Triangle3 {
	out := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for i := 0; i < m.TriangleCount(); i++ {
		f := m.Triangle(i)
		out = append(out, &sdf.Triangle3{m.Vertex(int(f[0])), m.Vertex(int(f[1])), m.Vertex(int(f[2]))})
	}
	return out
}

// Finite reports whether every vertex coordinate is finite.
func (m *Mesh) Finite() bool {
	for _, c := range m.Vertices {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}

// MeshStats summarises a mesh for logs and reports.
type MeshStats struct {
	Vertices  int      `json:"vertices"`
	Triangles int      `json:"triangles"`
	Area      float64  `json:"area"`
	MeanEdge  float64  `json:"mean_edge"`
	Bounds    sdf.Box3 `json:"bounds"`
}

// Stats computes surface area, mean edge length and bounds.
func (m *Mesh) Stats() MeshStats {
	s := MeshStats{Vertices: m.VertexCount(), Triangles: m.TriangleCount()}
	if m.TriangleCount() == 0 {
		return s
	}

	areas := make([]float64, 0, m.TriangleCount())
	edges := make([]float64, 0, 3*m.TriangleCount())
	for i := 0; i < m.TriangleCount(); i++ {
		f := m.Triangle(i)
		a, b, c := m.Vertex(int(f[0])), m.Vertex(int(f[1])), m.Vertex(int(f[2]))
		areas = append(areas, 0.5*b.Sub(a).Cross(c.Sub(a)).Length())
		edges = append(edges, b.Sub(a).Length(), c.Sub(b).Length(), a.Sub(c).Length())
	}
	s.Area = floats.Sum(areas)
	s.MeanEdge = stat.Mean(edges, nil)

	xs := make([]float64, m.VertexCount())
	ys := make([]float64, m.VertexCount())
	zs := make([]float64, m.VertexCount())
	for i := range xs {
		v := m.Vertex(i)
		xs[i], ys[i], zs[i] = v.X, v.Y, v.Z
	}
	s.Bounds = sdf.Box3{
		Min: v3.Vec{X: floats.Min(xs), Y: floats.Min(ys), Z: floats.Min(zs)},
		Max: v3.Vec{X: floats.Max(xs), Y: floats.Max(ys), Z: floats.Max(zs)},
	}
	return s
}
