package httpapi

import (
	"sync"
	"sync/atomic"
)

// OpRegistry tracks in-flight control operations and supports graceful
// draining. Once draining starts new operations are refused while running
// ones (a stop waiting on its summary, say) finish.
//
// mu makes the draining check and wg.Add atomic in Add, so no operation can
// slip in between StartDraining and Wait.
type OpRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

func NewOpRegistry() *OpRegistry {
	return &OpRegistry{}
}

// Add registers an operation. It returns false while draining.
func (r *OpRegistry) Add() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return false
	}
	r.wg.Add(1)
	r.count.Add(1)
	return true
}

// Done must be called exactly once per successful Add.
func (r *OpRegistry) Done() {
	r.count.Add(-1)
	r.wg.Done()
}

func (r *OpRegistry) StartDraining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining = true
}

func (r *OpRegistry) IsDraining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

func (r *OpRegistry) ActiveCount() int64 {
	return r.count.Load()
}

// Wait blocks until every registered operation is done.
func (r *OpRegistry) Wait() {
	r.wg.Wait()
}
