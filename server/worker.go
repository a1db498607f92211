package server

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Do after the worker has been stopped.
var ErrStopped = errors.New("worker stopped")

// workRequest is a unit of work executed on the worker goroutine.
type workRequest struct {
	fn   func() any
	done chan workResult
}

type workResult struct {
	value any
	err   error
}

// Worker serializes compilation and evaluation through a single
// goroutine. Macro namespaces and sessions own Lua states, which must not
// be used concurrently, and editors send requests in parallel.
type Worker struct {
	requests chan workRequest
	quit     chan struct{}
	stop     sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func() any) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn()
	return result
}

// Do runs fn on the worker goroutine and blocks until it completes. A
// panic in fn is returned as an error.
func (w *Worker) Do(fn func() any) (any, error) {
	req := workRequest{fn: fn, done: make(chan workResult, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, ErrStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
}
