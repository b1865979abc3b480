package ticket

import "testing"

func TestRNGDeterminism(t *testing.T) {
	r1 := newRNG(42)
	r2 := newRNG(42)
	for i := 0; i < 1000; i++ {
		if r1.Uint32() != r2.Uint32() {
			t.Fatalf("determinism broken at iteration %d", i)
		}
	}
}

func TestRNGDifferentSeeds(t *testing.T) {
	r1 := newRNG(42)
	r2 := newRNG(43)
	same := 0
	for i := 0; i < 100; i++ {
		if r1.Uint32() == r2.Uint32() {
			same++
		}
	}
	if same > 5 {
		t.Fatalf("different seeds produced %d/100 identical values", same)
	}
}

func TestRNGFloat64Bounds(t *testing.T) {
	r := newRNG(42)
	for i := 0; i < 10000; i++ {
		v := r.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64() = %f, out of [0, 1)", v)
		}
	}
}

func TestRNGIntnBounds(t *testing.T) {
	r := newRNG(42)
	for i := 0; i < 10000; i++ {
		v := r.Intn(10)
		if v < 0 || v >= 10 {
			t.Fatalf("Intn(10) = %d, out of [0, 10)", v)
		}
	}
}

func TestRNGIntnZero(t *testing.T) {
	r := newRNG(42)
	if r.Intn(0) != 0 {
		t.Fatal("Intn(0) should return 0")
	}
}

func TestRNGIntRangeBounds(t *testing.T) {
	r := newRNG(42)
	for i := 0; i < 10000; i++ {
		v := r.IntRange(1300, 1500)
		if v < 1300 || v > 1500 {
			t.Fatalf("IntRange(1300,1500) = %d, out of bounds", v)
		}
	}
}

func TestRNGIntRangeReversed(t *testing.T) {
	r := newRNG(42)
	v := r.IntRange(10, 5)
	if v != 10 {
		t.Fatalf("IntRange(10,5) = %d, want 10", v)
	}
}
