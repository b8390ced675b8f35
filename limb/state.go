package limb

import "sync"

// Buffer is a fixed-length float vector shared between one worker and the
// orchestrator. The comm worker writes contraction readings into one, the
// control worker records forwarded actions into another; the orchestrator
// only ever reads snapshots. All access goes through the internal lock, so
// a snapshot is always a consistent full vector, never a torn write.
//
// A Buffer lives from Connect to ForceClose and is rebuilt fresh on every
// Connect, so a terminated holder can never leave it locked or stale across
// connections.
type Buffer struct {
	mu   sync.Mutex
	vals []float64
}

// NewBuffer returns a zero-filled buffer of length n.
func NewBuffer(n int) *Buffer {
	return &Buffer{vals: make([]float64, n)}
}

// Len returns the fixed vector length (the muscle count).
func (b *Buffer) Len() int {
	return len(b.vals)
}

// Write replaces the buffer contents. Short or long slices are clamped to
// the buffer length; the length fixed at Connect never changes.
func (b *Buffer) Write(vals []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.vals, vals)
}

// Snapshot copies the current contents under the lock.
func (b *Buffer) Snapshot() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.vals))
	copy(out, b.vals)
	return out
}
