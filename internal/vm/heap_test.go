package vm

import (
	"context"
	"math"
	"testing"

	"novus/internal/novasm"
)

func TestValueEncoding(t *testing.T) {
	for _, i := range []int32{0, 1, -1, math.MaxInt32, math.MinInt32} {
		if v := MakeInt(i); v.IsRef() || v.Int() != i {
			t.Fatalf("int %d round-tripped to %d (ref %v)", i, v.Int(), v.IsRef())
		}
	}
	for _, f := range []float32{0, -1.5, float32(math.Inf(1)), math.MaxFloat32} {
		if v := MakeFloat(f); v.IsRef() || v.Float() != f {
			t.Fatalf("float %g round-tripped to %g", f, v.Float())
		}
	}
	if v := MakeFloat(float32(math.NaN())); v.Float() == v.Float() {
		t.Fatal("expected NaN to survive encoding")
	}

	h := makeHandle(7, 3)
	v := MakeRef(h)
	if !v.IsRef() || v.Handle() != h || h.index() != 7 || h.gen() != 3 {
		t.Fatalf("handle round trip failed: %x", uint64(v))
	}
	if !MakeNullStruct().IsNullStruct() || MakeRef(makeHandle(1, 0)).IsNullStruct() {
		t.Fatal("null struct detection is wrong")
	}
	if got := makeHandle(1, 1<<31).gen(); got != 0 {
		t.Fatalf("expected generation to wrap to 0, got %d", got)
	}
}

func TestLongsInlineWhenNonNegative(t *testing.T) {
	h := NewHeap(0, 0)
	for _, n := range []int64{0, 1, math.MaxInt64} {
		v, ok := h.MakeLong(n)
		if !ok || v.IsRef() || h.Long(v) != n {
			t.Fatalf("long %d: got %d ref=%v", n, h.Long(v), v.IsRef())
		}
	}
	if h.Stats().Allocs != 0 {
		t.Fatalf("expected no allocations, got %d", h.Stats().Allocs)
	}
	for _, n := range []int64{-1, math.MinInt64} {
		v, ok := h.MakeLong(n)
		if !ok || !v.IsRef() || h.Long(v) != n {
			t.Fatalf("long %d: got %d ref=%v", n, h.Long(v), v.IsRef())
		}
	}
	if h.Stats().Allocs != 2 {
		t.Fatalf("expected two boxed longs, got %d", h.Stats().Allocs)
	}
}

func TestStringLinkFlattens(t *testing.T) {
	h := NewHeap(0, 0)
	base, _ := h.NewStringLit("ab")
	c, _ := h.newStringLink(base, 'c')
	d, _ := h.newStringLink(c, 'd')
	if got := h.String(d); got != "abcd" {
		t.Fatalf("expected abcd, got %q", got)
	}
	if got := h.String(c); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	e, _ := h.newStringLink(d, 'e')
	if got := h.String(e); got != "abcde" {
		t.Fatalf("expected abcde, got %q", got)
	}
	if h.deref(d).flat.Load() == nil {
		t.Fatal("expected flattened bytes to be cached")
	}
}

func TestHeapLimit(t *testing.T) {
	h := NewHeap(0, 128)
	if _, ok := h.NewString(make([]byte, 64)); !ok {
		t.Fatal("expected first allocation to fit")
	}
	if _, ok := h.NewString(make([]byte, 64)); ok {
		t.Fatal("expected allocation past the limit to fail")
	}
}

func TestPressureFiresOncePerInterval(t *testing.T) {
	h := NewHeap(64, 0)
	var calls int
	h.pressure = func() { calls++ }
	for range 3 {
		h.MakeLong(-1) // 40 accounted bytes each
	}
	if calls != 1 {
		t.Fatalf("expected one collection request, got %d", calls)
	}
}

func stoppedExecutor(m *Machine) *executor {
	e := m.newExecutor(0)
	m.reg.register(e)
	e.pause()
	return e
}

func testMachine() *Machine {
	return New(&novasm.Assembly{}, NewMemoryPlatform(""), WithSettings(Settings{GCInterval: -1}))
}

func TestCollectFreesUnreachable(t *testing.T) {
	m := testMachine()
	h := m.Heap()
	for range 10 {
		h.NewStringLit("garbage")
	}
	stats := m.Collect()
	if stats.Freed != 10 || stats.Live != 0 {
		t.Fatalf("expected 10 freed and none live, got %+v", stats)
	}
	if len(h.liveHandles()) != 0 || h.Stats().Bytes != 0 {
		t.Fatalf("expected empty heap, got %+v", h.Stats())
	}
}

func TestCollectKeepsRoots(t *testing.T) {
	m := testMachine()
	h := m.Heap()
	e := stoppedExecutor(m)

	s, _ := h.NewStringLit("kept")
	link, _ := h.newStringLink(s, '!')
	neg, _ := h.MakeLong(-3)
	st, _ := h.NewStruct([]Value{link, neg, MakeNullStruct()})
	e.eval.push(st)
	e.consts.reserve(1)
	lazyArg, _ := h.NewStringLit("arg")
	lz, _ := h.newLazy(&lazyCall{args: []Value{lazyArg}})
	e.consts.store(0, lz)
	h.NewStringLit("dropped")

	stats := m.Collect()
	if stats.Freed != 1 || stats.Live != 6 {
		t.Fatalf("expected 1 freed and 6 live, got %+v", stats)
	}
	if got := h.String(h.Fields(st)[0]); got != "kept!" {
		t.Fatalf("expected kept!, got %q", got)
	}

	e.eval.pop()
	e.consts.release()
	m.reg.unregister(e)
	if stats := m.Collect(); stats.Live != 0 {
		t.Fatalf("expected everything freed, got %+v", stats)
	}
}

func TestStaleHandlePanics(t *testing.T) {
	m := testMachine()
	h := m.Heap()
	v, _ := h.NewStringLit("gone")
	m.Collect()
	fresh, _ := h.NewStringLit("reused")
	if fresh.Handle().index() != v.Handle().index() {
		t.Fatalf("expected slot reuse, got %d and %d", fresh.Handle().index(), v.Handle().index())
	}

	defer func() {
		r := recover()
		vmErr, ok := r.(*VMError)
		if !ok || vmErr.Code != PanicInvalidRef {
			t.Fatalf("expected %s panic, got %v", PanicInvalidRef, r)
		}
	}()
	h.String(v)
}

func TestSweepClosesStreams(t *testing.T) {
	m := testMachine()
	plat := m.plat.(*MemoryPlatform)
	plat.WriteFile("tmp", []byte("x"))
	s := m.openFile("tmp", FileOpen, FileAutoRemove)
	m.heap.newStream(s)
	m.Collect()
	if _, ok := plat.ReadFile("tmp"); ok {
		t.Fatal("expected swept stream to remove its file")
	}
	if s.isValid() {
		t.Fatal("expected swept stream to be closed")
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float32
		want string
	}{
		{0, "0"},
		{1.5, "1.5"},
		{-2, "-2"},
		{1e7, "1e+07"},
		{0.1, "0.1"},
		{float32(math.NaN()), "nan"},
		{float32(math.Inf(1)), "inf"},
		{float32(math.Inf(-1)), "-inf"},
	}
	for _, tt := range tests {
		if got := string(formatFloat(tt.in)); got != tt.want {
			t.Fatalf("formatFloat(%g): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestFloatToInt(t *testing.T) {
	tests := []struct {
		in   float32
		want int32
	}{
		{1.9, 1},
		{-1.9, -1},
		{3e9, math.MinInt32},
		{-3e9, math.MinInt32},
		{float32(math.NaN()), math.MinInt32},
	}
	for _, tt := range tests {
		if got := floatToInt(tt.in); got != tt.want {
			t.Fatalf("floatToInt(%g): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestClampSlice(t *testing.T) {
	tests := []struct {
		start, end int32
		s, e       int
	}{
		{-5, 100, 0, 5},
		{4, 2, 2, 2},
		{6, 9, 5, 5},
		{1, 3, 1, 3},
	}
	for _, tt := range tests {
		s, e := clampSlice(5, tt.start, tt.end)
		if s != tt.s || e != tt.e {
			t.Fatalf("clampSlice(5, %d, %d): expected %d,%d got %d,%d", tt.start, tt.end, tt.s, tt.e, s, e)
		}
	}
}

func TestInterruptibleReturnsOnCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := interruptible(ctx, func() (string, error) {
		<-block
		return "late", nil
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got, err := interruptible(context.Background(), func() (string, error) { return "line", nil })
	if err != nil || got != "line" {
		t.Fatalf("expected line, got %q %v", got, err)
	}
}
