package pool

import "testing"

func TestGetReturnsRequestedSize(t *testing.T) {
	p := New[float32]()
	s := p.Get(10)
	if len(s) != 10 {
		t.Fatalf("len(Get(10)) = %d, want 10", len(s))
	}
}

func TestPutThenGetReturnsRequestedSize(t *testing.T) {
	p := New[float32]()
	s := p.Get(5)
	s[0] = 42
	p.Put(s)

	reused := p.Get(5)
	if len(reused) != 5 {
		t.Fatalf("len(reused) = %d, want 5", len(reused))
	}
}

func TestGetDistinctSizesIndependent(t *testing.T) {
	p := New[float32]()
	a := p.Get(3)
	b := p.Get(7)
	if len(a) != 3 || len(b) != 7 {
		t.Fatalf("len(a)=%d len(b)=%d, want 3 and 7", len(a), len(b))
	}
}

func TestPutEmptySliceIsNoop(t *testing.T) {
	p := New[float32]()
	// Must not panic putting a zero-length slice back.
	p.Put(nil)
	p.Put([]float32{})
}

func TestFloat32AndFloat64SharedPoolsWork(t *testing.T) {
	s32 := Float32.Get(4)
	if len(s32) != 4 {
		t.Fatalf("Float32.Get(4) len = %d, want 4", len(s32))
	}
	Float32.Put(s32)

	s64 := Float64.Get(4)
	if len(s64) != 4 {
		t.Fatalf("Float64.Get(4) len = %d, want 4", len(s64))
	}
	Float64.Put(s64)
}
