package vm

import (
	"sort"
	"sync"
)

// registry tracks every live executor so the collector can stop them and
// read their roots, and so Run can abort them.
//
// Stop protocol: pauseExecutors raises pauseReq on every executor and waits
// until each one is parked at an instruction boundary (safepoint), is Paused
// inside a blocking call, or has unregistered. A Paused executor that wants to
// continue blocks in resume until pauseReq is cleared. All flags are written
// under mu; the executor loop polls pauseReq atomically.
type registry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	execs    map[uint64]*executor
	nextID   uint64
	gcActive bool
	aborted  bool
	running  sync.WaitGroup
}

func newRegistry() *registry {
	r := &registry{execs: make(map[uint64]*executor)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *registry) register(e *executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.id = r.nextID
	r.execs[e.id] = e
	r.running.Add(1)
	if r.gcActive {
		e.pauseReq.Store(true)
	}
	if r.aborted {
		e.abort()
	}
}

func (r *registry) unregister(e *executor) {
	r.mu.Lock()
	delete(r.execs, e.id)
	r.cond.Broadcast()
	r.mu.Unlock()
	r.running.Done()
}

// abortExecutors aborts every registered executor and any registered later.
func (r *registry) abortExecutors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = true
	for _, e := range r.execs {
		e.abort()
	}
}

// wait blocks until every registered executor has unregistered.
func (r *registry) wait() {
	r.running.Wait()
}

func (r *registry) pauseExecutors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcActive = true
	for _, e := range r.execs {
		e.pauseReq.Store(true)
	}
	for !r.allStoppedLocked() {
		r.cond.Wait()
	}
}

func (r *registry) allStoppedLocked() bool {
	for _, e := range r.execs {
		if !e.parked && !e.paused {
			return false
		}
	}
	return true
}

func (r *registry) resumeExecutors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcActive = false
	for _, e := range r.execs {
		e.pauseReq.Store(false)
	}
	r.cond.Broadcast()
}

// safepoint parks e until the collector resumes it.
func (r *registry) safepoint(e *executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.parked = true
	r.cond.Broadcast()
	for e.pauseReq.Load() {
		r.cond.Wait()
	}
	e.parked = false
}

// enterPaused marks e as blocked outside the value graph.
func (r *registry) enterPaused(e *executor) {
	r.mu.Lock()
	e.paused = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// leavePaused waits for any collection in progress before e touches the
// heap again.
func (r *registry) leavePaused(e *executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for e.pauseReq.Load() {
		r.cond.Wait()
	}
	e.paused = false
}

// roots collects the root values of every stopped executor, ordered by id.
func (r *registry) roots() []Value {
	r.mu.Lock()
	execs := make([]*executor, 0, len(r.execs))
	for _, e := range r.execs {
		execs = append(execs, e)
	}
	r.mu.Unlock()
	sort.Slice(execs, func(i, j int) bool { return execs[i].id < execs[j].id })

	var out []Value
	for _, e := range execs {
		out = e.appendRoots(out)
	}
	return out
}
