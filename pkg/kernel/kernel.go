// Package kernel defines the capabilities the rolling grid consumes but does
// not implement: resetting a block, fusing observations into the window, and
// exporting an assembled mesh. Implementations (sdfx) live behind these
// interfaces so the core depends only on their contracts.
package kernel

import (
	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/deadsy/sdfx/sdf"
)

// Resetter clears a block's SDF content to the empty sentinel.
type Resetter interface {
	ResetBlock(b *grid.Block)
}

// ResetFunc adapts a function to Resetter.
type ResetFunc func(b *grid.Block)

// ResetBlock calls f(b).
func (f ResetFunc) ResetBlock(b *grid.Block) { f(b) }

// DefaultResetter fills blocks with grid.EmptyValue.
var DefaultResetter Resetter = ResetFunc(func(b *grid.Block) { b.Reset() })

// Fuser writes observations into the resident window, allocating blocks
// as needed. It returns the number of voxels written.
type Fuser interface {
	Fuse(w *grid.Window, observation sdf.SDF3) (int, error)
}

// Exporter writes an assembled mesh to path in a named format.
type Exporter interface {
	Export(m *Mesh, path, format string) error
	Formats() []string
}
