package server

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestWorkerDo(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	got, err := w.Do(func() any { return 42 })
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("Do = %v, want 42", got)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	_, err := w.Do(func() any { panic("kaboom") })
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Do after panic = %v, want a kaboom error", err)
	}
	if got, err := w.Do(func() any { return "alive" }); err != nil || got != "alive" {
		t.Errorf("worker did not survive the panic: %v %v", got, err)
	}
}

func TestWorkerSerializes(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Do(func() any {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestWorkerStop(t *testing.T) {
	w := NewWorker()
	w.Stop()
	w.Stop()

	if _, err := w.Do(func() any { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after Stop = %v, want ErrStopped", err)
	}
}
