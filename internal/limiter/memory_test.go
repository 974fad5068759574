package limiter

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SlidingWindow(t *testing.T) {
	clock := now0
	m := NewMemory(15*time.Minute, 3)
	m.now = func() time.Time { return clock }
	ctx := context.Background()
	key := HashIP("10.0.0.1")

	for i := 0; i < 3; i++ {
		if ok, _, _ := m.Allow(ctx, key); !ok {
			t.Fatalf("attempt %d refused", i+1)
		}
		clock = clock.Add(time.Minute)
	}

	ok, retry, err := m.Allow(ctx, key)
	if err != nil || ok {
		t.Fatalf("4th attempt: ok=%v err=%v", ok, err)
	}
	// first hit at now0, now is now0+3m
	if retry != 12*time.Minute {
		t.Fatalf("retry=%v", retry)
	}

	if ok, _, _ := m.Allow(ctx, HashIP("10.0.0.2")); !ok {
		t.Fatalf("other caller must be independent")
	}

	clock = now0.Add(15*time.Minute + time.Second)
	if ok, _, _ := m.Allow(ctx, key); !ok {
		t.Fatalf("oldest attempt left the window, must allow")
	}
}

func TestMemory_RefusedAttemptsDoNotExtendBlock(t *testing.T) {
	clock := now0
	m := NewMemory(time.Minute, 1)
	m.now = func() time.Time { return clock }
	ctx := context.Background()
	key := []byte("k")

	m.Allow(ctx, key)
	for i := 0; i < 10; i++ {
		clock = clock.Add(time.Second)
		if ok, _, _ := m.Allow(ctx, key); ok {
			t.Fatalf("should be refused")
		}
	}
	clock = now0.Add(time.Minute + time.Millisecond)
	if ok, _, _ := m.Allow(ctx, key); !ok {
		t.Fatalf("must allow after window")
	}
}

func TestMemory_SweepDropsIdleKeys(t *testing.T) {
	clock := now0
	m := NewMemory(time.Minute, 5)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	m.Allow(ctx, []byte("idle"))
	clock = clock.Add(2 * time.Minute)
	for i := 1; i < sweepEvery; i++ {
		m.Allow(ctx, []byte("busy"))
	}
	m.mu.Lock()
	_, ok := m.log["idle"]
	m.mu.Unlock()
	if ok {
		t.Fatalf("idle key not swept")
	}
}
