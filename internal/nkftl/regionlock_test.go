package nkftl

import (
	"context"
	"testing"
	"time"
)

func TestRegionLockPool_ExclusiveAndFIFO(t *testing.T) {
	p := NewRegionLockPool()
	ctx := context.Background()

	release1, err := p.Acquire(ctx, RegionID(0))
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	order := make(chan int, 2)
	go func() {
		release2, err := p.Acquire(ctx, RegionID(0))
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		order <- 2
		release2()
	}()
	go func() {
		time.Sleep(10 * time.Millisecond) // ensure this enqueues after the first goroutine
		release3, err := p.Acquire(ctx, RegionID(0))
		if err != nil {
			t.Errorf("third Acquire: %v", err)
			return
		}
		order <- 3
		release3()
	}()

	time.Sleep(30 * time.Millisecond) // let both goroutines block on the held lock
	release1()

	first := <-order
	second := <-order
	if first != 2 || second != 3 {
		t.Fatalf("got order %d, %d; want FIFO order 2, 3", first, second)
	}
}

func TestRegionLockPool_AcquireRespectsContextCancellation(t *testing.T) {
	p := NewRegionLockPool()
	release, err := p.Acquire(context.Background(), RegionID(0))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, RegionID(0)); err == nil {
		t.Fatal("expected Acquire to fail once ctx is done")
	}
}

func TestRegionLockPool_DistinctRegionsDontContend(t *testing.T) {
	p := NewRegionLockPool()
	ctx := context.Background()

	release0, err := p.Acquire(ctx, RegionID(0))
	if err != nil {
		t.Fatalf("Acquire region 0: %v", err)
	}
	defer release0()

	done := make(chan struct{})
	go func() {
		release1, err := p.Acquire(ctx, RegionID(1))
		if err != nil {
			t.Errorf("Acquire region 1: %v", err)
			return
		}
		release1()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different region blocked unexpectedly")
	}
}
