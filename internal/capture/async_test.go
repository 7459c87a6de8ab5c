package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestContinuation_CompletesOnce(t *testing.T) {
	c := &Continuation{}
	var fired int32

	if err := c.OnComplete(func(error) { atomic.AddInt32(&fired, 1) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Complete(nil)
	c.Complete(nil)
	c.Complete(errors.New("late"))

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("callback fired %d times, want 1", got)
	}
	if !c.Done() {
		t.Error("expected Done after Complete")
	}
	if c.Err() != nil {
		t.Errorf("first completion wins, got err %v", c.Err())
	}
}

func TestContinuation_RegistrationAfterCompletion(t *testing.T) {
	c := &Continuation{}
	c.Complete(nil)

	err := c.OnComplete(func(error) { t.Error("must not fire") })
	if err != ErrCompleted {
		t.Fatalf("expected ErrCompleted, got %v", err)
	}
}

func TestContinuation_ErrorCompletionNotifies(t *testing.T) {
	c := &Continuation{}
	want := errors.New("timed out")
	var got error

	if err := c.OnComplete(func(e error) { got = e }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Complete(want)

	if got != want {
		t.Errorf("callback got %v, want %v", got, want)
	}
	if c.Err() != want {
		t.Errorf("Err() = %v, want %v", c.Err(), want)
	}
}

func TestContinuation_ConcurrentComplete(t *testing.T) {
	c := &Continuation{}
	var fired int32
	if err := c.OnComplete(func(error) { atomic.AddInt32(&fired, 1) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Complete(nil)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("callback fired %d times under contention, want 1", got)
	}
}
