// Package sdfx implements the kernel capabilities using the
// github.com/deadsy/sdfx SDF-based CAD library: analytic observations are
// fused by sampling an sdf.SDF3, and meshes are exported through sdfx's
// STL writer or as a go3mf package.
package sdfx

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/hpinc/go3mf"
)

// Compile-time interface checks.
var (
	_ kernel.Fuser    = (*Fuser)(nil)
	_ kernel.Exporter = (*Exporter)(nil)
)

// Fuser samples an sdf.SDF3 into every window block its bounding box
// (grown by the truncation band) touches. Samples are clamped to
// [-Trunc, Trunc] and merged with existing samples by union (minimum).
type Fuser struct {
	Trunc float64
}

// NewFuser returns a Fuser with the given truncation distance. A
// non-positive trunc disables clamping.
func NewFuser(trunc float64) *Fuser {
	return &Fuser{Trunc: trunc}
}

// Fuse writes s into w and returns the number of voxels written.
func (f *Fuser) Fuse(w *grid.Window, s sdf.SDF3) (int, error) {
	if w == nil || s == nil {
		return 0, fmt.Errorf("sdfx: fuse: nil window or shape")
	}
	region := s.BoundingBox()
	if f.Trunc > 0 {
		pad := v3.Vec{X: f.Trunc, Y: f.Trunc, Z: f.Trunc}
		region = sdf.Box3{Min: region.Min.Sub(pad), Max: region.Max.Add(pad)}
	}

	addr := w.Addr()
	written := 0
	for idx := 0; idx < w.TotalBlocks(); idx++ {
		slot := addr.Unflat(idx)
		if !overlaps(w.BlockBox(slot), region) {
			continue
		}
		b := w.Allocate(idx)
		origin := w.SlotVoxelOrigin(slot)
		for z := 0; z < b.D; z++ {
			for y := 0; y < b.H; y++ {
				for x := 0; x < b.W; x++ {
					p := w.VoxelPosition(origin.X+x, origin.Y+y, origin.Z+z)
					d := s.Evaluate(p)
					if f.Trunc > 0 {
						d = math.Max(-f.Trunc, math.Min(f.Trunc, d))
					}
					old := b.At(x, y, z)
					if !math.IsNaN(float64(old)) && float64(old) < d {
						continue
					}
					b.Set(x, y, z, float32(d))
					written++
				}
			}
		}
	}
	return written, nil
}

func overlaps(a, b sdf.Box3) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// Exporter writes meshes as STL or 3MF. Neither format
// carries per-vertex normals or colours; normals are recomputed from the
// triangle winding.
type Exporter struct{}

// NewExporter returns an Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// Formats lists the supported export formats.
func (e *Exporter) Formats() []string {
	return []string{"stl", "3mf"}
}

// Export writes m to path. The format name is appended as an extension
// when path has none.
func (e *Exporter) Export(m *kernel.Mesh, path, format string) error {
	format = strings.ToLower(format)
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("sdfx: export %s: empty mesh", path)
	}
	if filepath.Ext(path) == "" {
		path = path + "." + format
	}
	switch format {
	case "stl":
		if err := render.SaveSTL(path, m.Triangles()); err != nil {
			return fmt.Errorf("sdfx: export %s: %w", path, err)
		}
		return nil
	case "3mf":
		if err := save3MF(path, m); err != nil {
			return fmt.Errorf("sdfx: export %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("sdfx: unsupported export format %q", format)
	}
}

// save3MF writes m as a single-object 3MF package. The mesh is already
// indexed, so vertices go in as-is.
func save3MF(path string, m *kernel.Mesh) error {
	var model go3mf.Model
	mesh := &go3mf.Mesh{}
	mesh.Vertices.Vertex = make([]go3mf.Point3D, m.VertexCount())
	for i := range mesh.Vertices.Vertex {
		mesh.Vertices.Vertex[i] = go3mf.Point3D{m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2]}
	}
	mesh.Triangles.Triangle = make([]go3mf.Triangle, m.TriangleCount())
	for i := range mesh.Triangles.Triangle {
		t := m.Triangle(i)
		mesh.Triangles.Triangle[i] = go3mf.Triangle{V1: t[0], V2: t[1], V3: t[2]}
	}

	obj := &go3mf.Object{Mesh: mesh}
	obj.ID = model.Resources.UnusedID()
	model.Resources.Objects = append(model.Resources.Objects, obj)
	model.Build.Items = append(model.Build.Items, &go3mf.Item{ObjectID: obj.ID})

	w, err := go3mf.CreateWriter(path)
	if err != nil {
		return err
	}
	if err := w.Encode(&model); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Sphere returns a sphere observation centred at c.
func Sphere(c v3.Vec, radius float64) (sdf.SDF3, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx: sphere: %w", err)
	}
	return sdf.Transform3D(s, sdf.Translate3d(c)), nil
}

// Box returns an axis-aligned box observation centred at c.
func Box(c, size v3.Vec) (sdf.SDF3, error) {
	s, err := sdf.Box3D(size, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: box: %w", err)
	}
	return sdf.Transform3D(s, sdf.Translate3d(c)), nil
}
