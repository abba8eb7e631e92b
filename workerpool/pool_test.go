package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoolSubmitRunsTask(t *testing.T) {
	p := NewPool(Fixed, nil)
	p.Start(2)
	defer p.Stop()

	future := p.Submit(func() (interface{}, error) {
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := future.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if result != 42 {
		t.Fatalf("Get() result = %v, want 42", result)
	}
}

func TestPoolSubmitPropagatesTaskError(t *testing.T) {
	p := NewPool(Fixed, nil)
	p.Start(1)
	defer p.Stop()

	wantErr := errors.New("boom")
	future := p.Submit(func() (interface{}, error) {
		return nil, wantErr
	})

	_, err := future.Wait()
	if !errors.Is(err, wantErr) {
		t.Fatalf("Wait() error = %v, want %v", err, wantErr)
	}
}

func TestPoolSubmitBeforeStartFails(t *testing.T) {
	p := NewPool(Fixed, nil)
	future := p.Submit(func() (interface{}, error) { return nil, nil })
	_, err := future.Wait()
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("Wait() error = %v, want %v", err, ErrSubmitFailed)
	}
}

func TestPoolCachedModeGrowsUnderLoad(t *testing.T) {
	p := NewPool(Cached, nil)
	p.SetTaskQueueMaxSize(4)
	p.SetMaxWorkers(8)
	p.Start(1)
	defer p.Stop()

	release := make(chan struct{})
	const n = 5
	futures := make([]*Future, n)
	for i := 0; i < n; i++ {
		futures[i] = p.Submit(func() (interface{}, error) {
			<-release
			return nil, nil
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.CurrentWorkers() <= 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.CurrentWorkers() <= 1 {
		t.Fatalf("CurrentWorkers = %d, want pool to have grown past the initial worker", p.CurrentWorkers())
	}
	close(release)

	for _, f := range futures {
		if _, err := f.Wait(); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}

func TestModeString(t *testing.T) {
	if Fixed.String() != "fixed" {
		t.Errorf("Fixed.String() = %q, want fixed", Fixed.String())
	}
	if Cached.String() != "cached" {
		t.Errorf("Cached.String() = %q, want cached", Cached.String())
	}
}
