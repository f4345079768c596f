// ABOUTME: Monotonic version stamps for versioned rollup and snapshot rows.
// ABOUTME: Stamps come from the clock but never repeat or go backwards within a process.
package pipeline

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

type versioner struct {
	mu    sync.Mutex
	clock clockwork.Clock
	last  int64
}

func newVersioner(clock clockwork.Clock) *versioner {
	return &versioner{clock: clock}
}

// next returns a version strictly greater than every version it returned before.
func (v *versioner) next() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.clock.Now().UnixNano()
	if now <= v.last {
		now = v.last + 1
	}
	v.last = now
	return now
}
