// ABOUTME: Tests for the observed-ID TTL cache
// ABOUTME: Covers atomic check-and-mark, expiry, and size-bounded eviction

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCheckAndMark(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	if cache.CheckAndMark("msg-1") {
		t.Error("first observation should not be a duplicate")
	}
	if !cache.CheckAndMark("msg-1") {
		t.Error("second observation should be a duplicate")
	}
	if cache.CheckAndMark("msg-2") {
		t.Error("different ID should not be a duplicate")
	}
}

func TestCheckAndMark_Expiry(t *testing.T) {
	cache := New(20*time.Millisecond, 100)
	defer cache.Close()

	cache.CheckAndMark("msg-1")
	time.Sleep(40 * time.Millisecond)

	if cache.CheckAndMark("msg-1") {
		t.Error("expired entry should not count as seen")
	}
}

func TestForget(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	cache.CheckAndMark("msg-1")
	cache.Forget("msg-1")

	if cache.CheckAndMark("msg-1") {
		t.Error("forgotten entry should not count as seen")
	}

	// Forgetting an unknown ID is a no-op
	cache.Forget("never-seen")
}

func TestEviction(t *testing.T) {
	cache := New(time.Minute, 3)
	defer cache.Close()

	for i := 0; i < 4; i++ {
		cache.CheckAndMark(fmt.Sprintf("msg-%d", i))
	}

	// msg-0 was oldest and must have been evicted
	if cache.CheckAndMark("msg-0") {
		t.Error("evicted entry should not count as seen")
	}
	if !cache.CheckAndMark("msg-3") {
		t.Error("newest entry should still be present")
	}
}

func TestCheckAndMark_Concurrent(t *testing.T) {
	cache := New(time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	misses := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark("contended") {
				mu.Lock()
				misses++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if misses != 1 {
		t.Errorf("exactly one goroutine should observe a miss, got %d", misses)
	}
}

func TestClose_Idempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
