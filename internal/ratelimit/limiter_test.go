package ratelimit

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewLimiter(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(60, logger)

	if limiter == nil {
		t.Fatal("Expected non-nil limiter")
	}
	if limiter.buckets == nil {
		t.Error("Expected buckets map to be initialized")
	}
}

func TestNewLimiter_ClampsCapacity(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(0, logger)

	if limiter.rpm != 1 {
		t.Errorf("Expected capacity clamped to 1, got %d", limiter.rpm)
	}
	if !limiter.Allow("user-1", 1) {
		t.Error("Expected the single token to be available")
	}
}

func TestAllow_ExhaustsBucket(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(5, logger)

	now := time.Now()
	for i := 0; i < 5; i++ {
		if !limiter.allowAt(now, "user-1", 1) {
			t.Fatalf("Call %d should be allowed", i+1)
		}
	}

	// Sixth rapid call exceeds the burst capacity
	if limiter.allowAt(now, "user-1", 1) {
		t.Error("Expected denial after capacity exhausted")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(5, logger)

	now := time.Now()
	for i := 0; i < 5; i++ {
		limiter.allowAt(now, "user-1", 1)
	}
	if limiter.allowAt(now, "user-1", 1) {
		t.Fatal("Expected denial with empty bucket")
	}

	// A full refill interval later the bucket is full again
	later := now.Add(time.Minute)
	if !limiter.allowAt(later, "user-1", 1) {
		t.Error("Expected allowance after refill interval")
	}
}

func TestAllow_PartialRefill(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(60, logger)

	now := time.Now()
	for i := 0; i < 60; i++ {
		limiter.allowAt(now, "user-1", 1)
	}
	if limiter.allowAt(now, "user-1", 1) {
		t.Fatal("Expected denial with empty bucket")
	}

	// 60 rpm refills one token per second
	if !limiter.allowAt(now.Add(time.Second), "user-1", 1) {
		t.Error("Expected one token after one second")
	}
}

func TestAllow_IndependentIdentities(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(1, logger)

	now := time.Now()
	if !limiter.allowAt(now, "user-1", 1) {
		t.Fatal("First identity should be allowed")
	}
	if limiter.allowAt(now, "user-1", 1) {
		t.Error("First identity should be exhausted")
	}
	if !limiter.allowAt(now, "user-2", 1) {
		t.Error("Second identity should have its own bucket")
	}

	if limiter.Size() != 2 {
		t.Errorf("Expected 2 tracked identities, got %d", limiter.Size())
	}
}

func TestAllow_ConcurrentSameIdentity(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(50, logger)

	// Multiple connections for the same user hammering the same bucket,
	// like several open browser tabs.
	now := time.Now()
	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- limiter.allowAt(now, "user-1", 1)
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 50 {
		t.Errorf("Expected exactly 50 allowed calls, got %d", count)
	}
}

func TestReset(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	limiter := NewLimiter(1, logger)

	now := time.Now()
	limiter.allowAt(now, "user-1", 1)
	if limiter.allowAt(now, "user-1", 1) {
		t.Fatal("Expected exhausted bucket")
	}

	limiter.Reset()
	if !limiter.allowAt(now, "user-1", 1) {
		t.Error("Expected fresh bucket after reset")
	}
}
