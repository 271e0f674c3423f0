package broadcast

import "sync/atomic"

// Watermark tracks the highest action timestamp already applied for a
// room. Observing only strictly newer timestamps makes application
// idempotent and monotonic under duplicated or reordered delivery.
type Watermark struct {
	last atomic.Int64
}

// Observe advances the watermark if ts is strictly newer and reports
// whether the message should be applied.
func (w *Watermark) Observe(ts int64) bool {
	for {
		cur := w.last.Load()
		if ts <= cur {
			return false
		}
		if w.last.CompareAndSwap(cur, ts) {
			return true
		}
	}
}

// Last returns the highest applied timestamp.
func (w *Watermark) Last() int64 {
	return w.last.Load()
}

// Reset drops the watermark, used when local state is overwritten from
// a snapshot older than the live message stream.
func (w *Watermark) Reset() {
	w.last.Store(0)
}
