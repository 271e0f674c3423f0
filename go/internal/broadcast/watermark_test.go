package broadcast

import "testing"

func TestWatermark_DropsStaleAndDuplicate(t *testing.T) {
	var w Watermark

	if !w.Observe(100) {
		t.Fatal("first timestamp must be applied")
	}
	if w.Observe(100) {
		t.Fatal("duplicate timestamp must be dropped")
	}
	if w.Observe(50) {
		t.Fatal("stale timestamp must be dropped")
	}
	if !w.Observe(101) {
		t.Fatal("newer timestamp must be applied")
	}
	if got := w.Last(); got != 101 {
		t.Fatalf("Last() = %d, want 101", got)
	}
}

func TestWatermark_Reset(t *testing.T) {
	var w Watermark
	w.Observe(500)
	w.Reset()

	if !w.Observe(10) {
		t.Fatal("post-reset timestamp must be applied")
	}
}

func TestStamp_StrictlyMonotonic(t *testing.T) {
	b := &Broadcaster{}

	prev := int64(0)
	for i := 0; i < 1000; i++ {
		ts := b.Stamp()
		if ts <= prev {
			t.Fatalf("stamp %d not greater than previous %d", ts, prev)
		}
		prev = ts
	}
}
