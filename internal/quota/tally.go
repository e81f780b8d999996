package quota

import (
	"sync"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// Key identifies one quota bucket.
type Key struct {
	StoreID int
	Period  string
	Type    model.InspectionType
}

// Tally counts submissions per bucket. Safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts map[Key]int
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[Key]int)}
}

// Add increments the count for k by n.
func (t *Tally) Add(k Key, n int) {
	t.mu.Lock()
	t.counts[k] += n
	t.mu.Unlock()
}

// Count returns the count for k.
func (t *Tally) Count(k Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[k]
}

// Snapshot returns a copy of every non-zero count.
func (t *Tally) Snapshot() map[Key]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Key]int, len(t.counts))
	for k, v := range t.counts {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
