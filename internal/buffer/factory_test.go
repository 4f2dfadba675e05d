package buffer

import "testing"

func TestFactoryGetPutSizeClass(t *testing.T) {
	f := NewFactory(Logger)

	small := f.Get(100)
	if cap(*small) < 100 {
		t.Fatalf("small buffer cap = %d, want >= 100", cap(*small))
	}
	if len(*small) != 0 {
		t.Fatalf("Get returned non-empty buffer, len = %d", len(*small))
	}
	f.Put(small)

	large := f.Get(smallMax + 1)
	if cap(*large) < largeMax {
		t.Fatalf("large buffer cap = %d, want >= %d", cap(*large), largeMax)
	}
	f.Put(large)
}

func TestFactoryReuse(t *testing.T) {
	f := NewFactory(Logger)
	b := f.Get(10)
	*b = append(*b, 1, 2, 3)
	f.Put(b)

	b2 := f.Get(10)
	if len(*b2) != 0 {
		t.Fatalf("reused buffer not reset, len = %d", len(*b2))
	}
}
