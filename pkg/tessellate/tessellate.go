// Package tessellate extracts a triangle mesh from the resident blocks of a
// rolling window with marching cubes. Cubes straddling two blocks are
// polygonised when both blocks are resident; missing neighbours leave the
// surface open.
package tessellate

import (
	"fmt"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/chazu/rollgrid/pkg/monitoring"
)

// Options controls extraction.
type Options struct {
	// Iso is the iso-level; values at or below it are inside.
	Iso float64
	// Name labels the resulting mesh.
	Name string
}

// ExtractMesh marches every voxel cell of every active block of w and
// returns one mesh for the whole window. color may be nil.
func ExtractMesh(w, color *grid.Window, opts Options) *kernel.Mesh {
	m := &kernel.Mesh{Name: opts.Name}
	if !w.IsValid() {
		return m
	}

	addr := w.Addr()
	blocks, tris := 0, 0
	for idx := 0; idx < w.TotalBlocks(); idx++ {
		if !w.IsActive(idx) {
			continue
		}
		blocks++
		o := w.SlotVoxelOrigin(addr.Unflat(idx))
		for z := 0; z < w.Res; z++ {
			for y := 0; y < w.Res; y++ {
				for x := 0; x < w.Res; x++ {
					tris += MarchCube(w, color, o.X+x, o.Y+y, o.Z+z, opts.Iso, m)
				}
			}
		}
	}
	monitoring.Debugf("[ExtractMesh] %d triangles, %d vertices from %d blocks", tris, m.VertexCount(), blocks)
	return m
}

// Extract builds the mesh of w and hands it to exp for writing.
func Extract(w, color *grid.Window, opts Options, exp kernel.Exporter, path, format string) (*kernel.Mesh, error) {
	if exp == nil {
		return nil, fmt.Errorf("tessellate: no exporter for %s", path)
	}
	m := ExtractMesh(w, color, opts)
	if m.IsEmpty() {
		return m, fmt.Errorf("tessellate: window produced no surface")
	}
	if err := exp.Export(m, path, format); err != nil {
		return m, fmt.Errorf("tessellate: export failed: %w", err)
	}
	monitoring.Logf("[Extract] wrote %d triangles to %s", m.TriangleCount(), path)
	return m, nil
}
