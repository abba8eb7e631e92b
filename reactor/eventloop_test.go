//go:build linux
// +build linux

package reactor

import (
	"testing"
	"time"
)

func TestEventLoopQueuedFunctorRunsOnLoopGoroutine(t *testing.T) {
	loop, err := NewEventLoop(nil)
	if err != nil {
		t.Fatalf("NewEventLoop() error = %v", err)
	}
	ran := make(chan struct{})
	loop.QueueInLoop(func() {
		if !loop.IsInLoopGoroutine() {
			t.Errorf("queued functor ran off the loop goroutine")
		}
		close(ran)
		loop.Quit()
	})

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("queued functor never ran")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() never returned after Quit")
	}
	if err := loop.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestEventLoopQueueInLoopFromOtherGoroutine(t *testing.T) {
	loop, err := NewEventLoop(nil)
	if err != nil {
		t.Fatalf("NewEventLoop() error = %v", err)
	}
	go loop.Run()

	// Give Run a moment to claim loop ownership before we dispatch into it.
	time.Sleep(50 * time.Millisecond)

	result := make(chan int, 1)
	loop.RunInLoop(func() {
		result <- 7
	})

	select {
	case v := <-result:
		if v != 7 {
			t.Errorf("functor result = %d, want 7", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunInLoop functor never ran")
	}

	loop.Quit()
	time.Sleep(50 * time.Millisecond)
	if err := loop.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
