package vm

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"novus/internal/trace"
)

// GCStats describes one collection.
type GCStats struct {
	Freed      int
	FreedBytes int64
	Live       int
	LiveBytes  int64
	Pause      time.Duration
}

// collector runs mark-sweep collections on behalf of one machine.
// Collections are serialised; requests made while one is pending coalesce.
type collector struct {
	heap   *Heap
	reg    *registry
	tracer trace.Tracer
	parent uint64
	itrace *instrTracer

	req  chan struct{}
	mu   sync.Mutex
	runs atomic.Uint64
}

func newCollector(heap *Heap, reg *registry) *collector {
	c := &collector{heap: heap, reg: reg, tracer: trace.Nop, req: make(chan struct{}, 1)}
	heap.pressure = c.request
	return c
}

// request asks the collector goroutine for a collection without blocking.
func (c *collector) request() {
	select {
	case c.req <- struct{}{}:
	default:
	}
}

// loop serves collection requests until ctx is done.
func (c *collector) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.req:
			c.collect()
		}
	}
}

// collect stops every executor, marks from their roots and sweeps.
func (c *collector) collect() GCStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	span := trace.Begin(c.tracer, trace.ScopeUnit, "gc", c.parent)
	start := time.Now()

	c.reg.pauseExecutors()
	c.heap.mark(c.reg.roots())
	freed, freedBytes, closing := c.heap.sweep()
	c.heap.untilGC.Store(c.heap.interval)
	c.reg.resumeExecutors()

	for _, s := range closing {
		s.close()
	}

	st := c.heap.Stats()
	stats := GCStats{
		Freed:      freed,
		FreedBytes: freedBytes,
		Live:       st.Objects,
		LiveBytes:  st.Bytes,
		Pause:      time.Since(start),
	}
	c.runs.Add(1)
	c.itrace.gc(stats)
	span.WithExtra("freed", strconv.Itoa(freed)).
		WithExtra("live", strconv.Itoa(st.Objects)).
		WithExtra("bytes", strconv.FormatInt(st.Bytes, 10)).
		End("")
	return stats
}

// mark flags every object reachable from roots. Only runs with all
// executors stopped.
func (h *Heap) mark(roots []Value) {
	work := roots
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if !v.IsRef() || v.IsNullStruct() {
			continue
		}
		o, ok := h.lookup(v.Handle())
		if !ok || o.marked {
			continue
		}
		o.marked = true

		switch o.kind {
		case RefStringLink:
			work = append(work, o.prev)
		case RefStruct:
			work = append(work, o.fields...)
		case RefFuture:
			if r, ok := o.future.result(); ok {
				work = append(work, r)
			}
		case RefLazy:
			work = o.lazy.appendRoots(work)
		}
	}
}

// sweep frees every unmarked object and clears the marks of the rest. The
// streams of freed objects are returned to be closed once executors run again.
func (h *Heap) sweep() (freed int, freedBytes int64, closing []*stream) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var prev *object
	for index := h.head; index != 0; {
		o := h.slot(index)
		next := o.next
		if o.marked {
			o.marked = false
			prev = o
			index = next
			continue
		}

		if prev == nil {
			h.head = next
		} else {
			prev.next = next
		}
		if o.stream != nil {
			closing = append(closing, o.stream)
		}
		freed++
		freedBytes += o.size
		h.trace.free(o.kind, index)
		h.release(index, o)
		index = next
	}
	h.count -= freed
	h.bytes.Add(-freedBytes)
	return freed, freedBytes, closing
}

func (h *Heap) release(index uint32, o *object) {
	o.kind = 0
	o.gen = (o.gen + 1) & genMask
	o.next = 0
	o.size = 0
	o.str = nil
	o.prev = 0
	o.ch = 0
	o.flat.Store(nil)
	o.fields = nil
	o.long = 0
	o.future = nil
	o.lazy = nil
	o.stream = nil
	h.free = append(h.free, index)
}
