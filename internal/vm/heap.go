package vm

import (
	"sync"
	"sync/atomic"
)

// Handle addresses a heap slot: the low 32 bits are the slot index, the next
// 31 bits the slot generation. Handle zero is the null struct.
type Handle uint64

const genMask = 1<<31 - 1

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen&genMask)<<32 | uint64(index))
}

func (h Handle) index() uint32 { return uint32(h) }
func (h Handle) gen() uint32   { return uint32(h>>32) & genMask }

// RefKind is the kind of a heap object.
type RefKind uint8

const (
	RefString RefKind = iota + 1
	RefStringLink
	RefStruct
	RefLong
	RefFuture
	RefLazy
	RefStream
)

func (k RefKind) String() string {
	switch k {
	case RefString:
		return "string"
	case RefStringLink:
		return "string-link"
	case RefStruct:
		return "struct"
	case RefLong:
		return "long"
	case RefFuture:
		return "future"
	case RefLazy:
		return "lazy"
	case RefStream:
		return "stream"
	default:
		return "free"
	}
}

// Accounted sizes. They only drive collection pacing and the heap limit.
const (
	objectHeaderSize = 32
	valueSize        = 8
	handleObjectSize = 64
)

type object struct {
	kind   RefKind // zero while the slot is free
	marked bool
	gen    uint32
	next   uint32 // next allocated slot; 0 ends the list
	size   int64

	str    []byte
	prev   Value // string link predecessor
	ch     byte  // string link char
	flat   atomic.Pointer[[]byte]
	fields []Value
	long   int64
	future *future
	lazy   *lazyCall
	stream *stream
}

const pageSize = 1024

type page [pageSize]object

// HeapStats is a snapshot of heap occupancy.
type HeapStats struct {
	Objects int    // live objects on the allocation list
	Bytes   int64  // accounted bytes of those objects
	Allocs  uint64 // allocations since the heap was created
}

// Heap is the arena every ref lives in. Allocation is safe from any
// goroutine; freeing only happens in sweep while all executors are stopped.
type Heap struct {
	mu    sync.Mutex
	pages atomic.Pointer[[]*page]
	fresh uint32   // next never-used slot index
	free  []uint32 // swept slots ready for reuse
	head  uint32   // intrusive allocation list
	count int

	interval int64
	untilGC  atomic.Int64
	limit    int64
	bytes    atomic.Int64
	allocs   atomic.Uint64

	pressure func() // called once each time the interval is exhausted
	trace    *instrTracer
}

// NewHeap returns an empty heap. gcInterval is the number of allocated bytes
// between collection requests (<= 0 disables them); limit caps the live
// bytes (<= 0 means unlimited).
func NewHeap(gcInterval, limit int64) *Heap {
	h := &Heap{fresh: 1, interval: gcInterval, limit: limit}
	pages := []*page{}
	h.pages.Store(&pages)
	h.untilGC.Store(gcInterval)
	return h
}

// Stats returns the current occupancy.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HeapStats{Objects: h.count, Bytes: h.bytes.Load(), Allocs: h.allocs.Load()}
}

func (h *Heap) slot(index uint32) *object {
	pages := *h.pages.Load()
	return &pages[index/pageSize][index%pageSize]
}

// alloc links a fresh object of kind into the allocation list. It returns a
// nil object when the heap limit would be exceeded.
func (h *Heap) alloc(kind RefKind, size int64) (Handle, *object) {
	size += objectHeaderSize
	if h.limit > 0 && h.bytes.Load()+size > h.limit {
		return 0, nil
	}

	h.mu.Lock()
	var index uint32
	if n := len(h.free); n > 0 {
		index = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		index = h.fresh
		h.fresh++
		pages := *h.pages.Load()
		if int(index/pageSize) >= len(pages) {
			grown := make([]*page, len(pages), len(pages)+1)
			copy(grown, pages)
			grown = append(grown, new(page))
			h.pages.Store(&grown)
		}
	}
	o := h.slot(index)
	o.kind = kind
	o.size = size
	o.next = h.head
	h.head = index
	h.count++
	gen := o.gen
	h.mu.Unlock()

	h.bytes.Add(size)
	h.allocs.Add(1)
	if h.interval > 0 {
		if left := h.untilGC.Add(-size); left <= 0 && left+size > 0 && h.pressure != nil {
			h.pressure()
		}
	}
	handle := makeHandle(index, gen)
	h.trace.alloc(kind, index)
	return handle, o
}

func (h *Heap) lookup(handle Handle) (*object, bool) {
	index := handle.index()
	if index == 0 {
		return nil, false
	}
	pages := *h.pages.Load()
	if int(index/pageSize) >= len(pages) {
		return nil, false
	}
	o := &pages[index/pageSize][index%pageSize]
	if o.kind == 0 || o.gen != handle.gen() {
		return nil, false
	}
	return o, true
}

func (h *Heap) deref(v Value) *object {
	if !v.IsRef() {
		vmPanic(PanicInvalidRef, "value 0x%x is not a ref", uint64(v))
	}
	o, ok := h.lookup(v.Handle())
	if !ok {
		vmPanic(PanicInvalidRef, "invalid ref index %d gen %d", v.Handle().index(), v.Handle().gen())
	}
	return o
}

func (h *Heap) derefKind(v Value, kind RefKind) *object {
	o := h.deref(v)
	if o.kind != kind {
		vmPanic(PanicRefKindMismatch, "expected %s ref, got %s", kind, o.kind)
	}
	return o
}

// Kind returns the kind of the object v references.
func (h *Heap) Kind(v Value) RefKind {
	return h.deref(v).kind
}

// NewString allocates a string taking ownership of b.
func (h *Heap) NewString(b []byte) (Value, bool) {
	handle, o := h.alloc(RefString, int64(len(b)))
	if o == nil {
		return 0, false
	}
	o.str = b
	return MakeRef(handle), true
}

// NewStringLit allocates a copy of s.
func (h *Heap) NewStringLit(s string) (Value, bool) {
	return h.NewString([]byte(s))
}

// newStringBuf allocates a string of n zero bytes and returns its storage
// for the caller to fill before shrinking it with trimString.
func (h *Heap) newStringBuf(n int) (Value, []byte, bool) {
	handle, o := h.alloc(RefString, int64(n))
	if o == nil {
		return 0, nil, false
	}
	o.str = make([]byte, n)
	return MakeRef(handle), o.str, true
}

// trimString cuts a string from newStringBuf down to its first n bytes and
// returns the unused bytes to the heap.
func (h *Heap) trimString(v Value, n int) {
	o := h.derefKind(v, RefString)
	if n >= len(o.str) {
		return
	}
	freed := int64(len(o.str) - n)
	o.str = append([]byte(nil), o.str[:n]...)
	o.size -= freed
	h.bytes.Add(-freed)
}

func (h *Heap) newStringLink(prev Value, ch byte) (Value, bool) {
	handle, o := h.alloc(RefStringLink, valueSize)
	if o == nil {
		return 0, false
	}
	o.prev = prev
	o.ch = ch
	return MakeRef(handle), true
}

// StringBytes returns the contents of a string or string link. The result
// must not be modified.
func (h *Heap) StringBytes(v Value) []byte {
	o := h.deref(v)
	switch o.kind {
	case RefString:
		return o.str
	case RefStringLink:
		return h.flatten(o)
	default:
		vmPanic(PanicRefKindMismatch, "expected string ref, got %s", o.kind)
		return nil
	}
}

// String returns a copy of the contents of a string value.
func (h *Heap) String(v Value) string {
	return string(h.StringBytes(v))
}

// flatten materialises a link chain once; concurrent flattens of the same
// link produce identical bytes so the last store wins.
func (h *Heap) flatten(link *object) []byte {
	if p := link.flat.Load(); p != nil {
		return *p
	}
	var tail []byte
	var base []byte
	for cur := link; ; {
		tail = append(tail, cur.ch)
		prev := h.deref(cur.prev)
		if prev.kind == RefString {
			base = prev.str
			break
		}
		if p := prev.flat.Load(); p != nil {
			base = *p
			break
		}
		cur = prev
	}
	out := make([]byte, len(base), len(base)+len(tail))
	copy(out, base)
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	link.flat.Store(&out)
	return out
}

// NewStruct allocates a struct holding a copy of fields.
func (h *Heap) NewStruct(fields []Value) (Value, bool) {
	handle, o := h.alloc(RefStruct, int64(len(fields))*valueSize)
	if o == nil {
		return 0, false
	}
	o.fields = append([]Value(nil), fields...)
	return MakeRef(handle), true
}

// Fields returns the field slots of a struct value.
func (h *Heap) Fields(v Value) []Value {
	return h.derefKind(v, RefStruct).fields
}

// MakeLong encodes v, boxing it when negative.
func (h *Heap) MakeLong(v int64) (Value, bool) {
	if v >= 0 {
		return makeInlineLong(v), true
	}
	handle, o := h.alloc(RefLong, valueSize)
	if o == nil {
		return 0, false
	}
	o.long = v
	return MakeRef(handle), true
}

// Long decodes a value produced by MakeLong.
func (h *Heap) Long(v Value) int64 {
	if v.IsRef() {
		return h.derefKind(v, RefLong).long
	}
	return v.inlineLong()
}

func (h *Heap) newFuture(f *future) (Value, bool) {
	handle, o := h.alloc(RefFuture, handleObjectSize)
	if o == nil {
		return 0, false
	}
	o.future = f
	return MakeRef(handle), true
}

func (h *Heap) newLazy(l *lazyCall) (Value, bool) {
	handle, o := h.alloc(RefLazy, handleObjectSize+int64(len(l.args))*valueSize)
	if o == nil {
		return 0, false
	}
	o.lazy = l
	return MakeRef(handle), true
}

func (h *Heap) newStream(s *stream) (Value, bool) {
	handle, o := h.alloc(RefStream, handleObjectSize)
	if o == nil {
		return 0, false
	}
	o.stream = s
	return MakeRef(handle), true
}

// liveHandles lists the allocation list from newest to oldest.
func (h *Heap) liveHandles() []Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Handle
	for index := h.head; index != 0; {
		o := h.slot(index)
		out = append(out, makeHandle(index, o.gen))
		index = o.next
	}
	return out
}

// openStreams returns the streams of every live stream object.
func (h *Heap) openStreams() []*stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*stream
	for index := h.head; index != 0; {
		o := h.slot(index)
		if o.kind == RefStream {
			out = append(out, o.stream)
		}
		index = o.next
	}
	return out
}
