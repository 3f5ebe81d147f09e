package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRecordEvent_AllOK(t *testing.T) {
	r := NewRecorder(nil)

	// Durations 10ms..100ms, all successful
	for i := 1; i <= 10; i++ {
		r.RecordEvent(time.Duration(i*10)*time.Millisecond, true)
	}

	snap := r.Snapshot(3)

	if snap.Connections != 3 {
		t.Errorf("Expected connections 3, got %d", snap.Connections)
	}
	if snap.EventsPerMinute != 10 {
		t.Errorf("Expected epm 10, got %d", snap.EventsPerMinute)
	}
	if snap.ErrorRate != 0 {
		t.Errorf("Expected error rate 0, got %v", snap.ErrorRate)
	}
	if snap.P95Ms != 100 {
		t.Errorf("Expected p95 100ms, got %v", snap.P95Ms)
	}
}

func TestRecordEvent_ErrorRate(t *testing.T) {
	r := NewRecorder(nil)

	for i := 0; i < 9; i++ {
		r.RecordEvent(10*time.Millisecond, true)
	}
	r.RecordEvent(10*time.Millisecond, false)

	snap := r.Snapshot(0)
	if snap.ErrorRate != 0.1 {
		t.Errorf("Expected error rate 0.1, got %v", snap.ErrorRate)
	}
}

func TestRecordEvent_EmptySnapshot(t *testing.T) {
	r := NewRecorder(nil)

	snap := r.Snapshot(0)
	if snap.EventsPerMinute != 0 || snap.ErrorRate != 0 || snap.P95Ms != 0 {
		t.Errorf("Expected zeroed snapshot, got %+v", snap)
	}
}

func TestRecordEvent_DurationBufferCap(t *testing.T) {
	r := NewRecorder(nil)

	// One slow sample first, then enough fast samples to evict it.
	r.RecordEvent(time.Second, true)
	for i := 0; i < maxDurationSamples; i++ {
		r.RecordEvent(time.Millisecond, true)
	}

	r.mu.Lock()
	n := len(r.durations)
	r.mu.Unlock()
	if n != maxDurationSamples {
		t.Errorf("Expected duration buffer capped at %d, got %d", maxDurationSamples, n)
	}

	snap := r.Snapshot(0)
	if snap.P95Ms != 1 {
		t.Errorf("Expected slow sample evicted, p95 1ms, got %v", snap.P95Ms)
	}
}

func TestSnapshot_PrunesOldTimestamps(t *testing.T) {
	r := NewRecorder(nil)

	current := time.Now()
	r.now = func() time.Time { return current }

	r.RecordEvent(time.Millisecond, true)
	r.RecordEvent(time.Millisecond, true)

	// Two more events recorded 90 seconds later
	current = current.Add(90 * time.Second)
	r.RecordEvent(time.Millisecond, true)
	r.RecordEvent(time.Millisecond, true)

	snap := r.Snapshot(0)
	if snap.EventsPerMinute != 2 {
		t.Errorf("Expected epm 2 after pruning, got %d", snap.EventsPerMinute)
	}
}

func TestErrorRate_Rounding(t *testing.T) {
	r := NewRecorder(nil)

	// 1 error in 3 events: 0.3333 after rounding to 4 decimals
	r.RecordEvent(time.Millisecond, false)
	r.RecordEvent(time.Millisecond, true)
	r.RecordEvent(time.Millisecond, true)

	snap := r.Snapshot(0)
	if snap.ErrorRate != 0.3333 {
		t.Errorf("Expected error rate 0.3333, got %v", snap.ErrorRate)
	}
}

func TestRecorder_ConcurrentAccess(t *testing.T) {
	r := NewRecorder(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordEvent(time.Millisecond, j%10 != 0)
				_ = r.Snapshot(1)
			}
		}()
	}
	wg.Wait()

	snap := r.Snapshot(0)
	if snap.ErrorRate != 0.1 {
		t.Errorf("Expected error rate 0.1 under concurrency, got %v", snap.ErrorRate)
	}
}
