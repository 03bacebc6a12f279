package roll

import (
	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/kernel"
	"github.com/chazu/rollgrid/pkg/monitoring"
)

// ResetAndFree reclaims every slot that t flags for reset and that is
// currently active: its content is reset through r, its storage released
// and its dimensions zeroed. Inactive or unflagged slots are untouched, so
// a second call with the same table does nothing. It returns the number of
// slots reclaimed.
func ResetAndFree(w *grid.Window, t *EvictionTable, r kernel.Resetter) int {
	if t == nil {
		return 0
	}
	if r == nil {
		r = kernel.DefaultResetter
	}
	n := 0
	for idx := 0; idx < w.TotalBlocks() && idx < t.Len(); idx++ {
		if !t.Reset[idx] || !w.IsActive(idx) {
			continue
		}
		r.ResetBlock(&w.Blocks[idx])
		w.FreeBlock(idx)
		n++
	}
	if n > 0 {
		monitoring.Debugf("[ResetAndFree] reclaimed %d slots", n)
	}
	return n
}
