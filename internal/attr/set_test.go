package attr

import "testing"

func newSet(mask Mask) Set { return Set{Mask: mask} }

func newValuedSet(mask Mask, key uint8, v string) Set {
	s := newSet(mask)
	s.SetAttr(key, v)
	return s
}

func TestSetGetAttr(t *testing.T) {
	var s Set
	if !s.IsEmpty() {
		t.Fatalf("zero Set.IsEmpty() = false, want true")
	}
	if _, ok := s.GetAttr(1); ok {
		t.Fatalf("GetAttr on empty set: ok = true, want false")
	}

	s.SetAttr(1, "riscv")
	if got, ok := s.GetAttr(1); !ok || got != "riscv" {
		t.Fatalf("GetAttr(1) = %q, %v, want %q, true", got, ok, "riscv")
	}

	clone := s.Clone()
	if got, ok := clone.GetAttr(1); !ok || got != "riscv" {
		t.Fatalf("clone GetAttr(1) = %q, %v, want %q, true", got, ok, "riscv")
	}
	clone.SetAttr(1, "amd64")
	if got, _ := s.GetAttr(1); got != "riscv" {
		t.Fatalf("mutating clone affected original: got %q", got)
	}
}

func TestSetCompare(t *testing.T) {
	ordered := []Set{
		newSet(0),
		newSet(1),
		newValuedSet(1, 0, "a"),
		newValuedSet(1, 0, "b"),
		newValuedSet(1, 0, "b"),
		newValuedSet(1, 1, "a"),
		newSet(2),
		newSet(2),
		newValuedSet(2, 0, "a"),
		newValuedSet(2, 1, "a"),
	}

	for i := 1; i < len(ordered); i++ {
		a, b := ordered[i-1], ordered[i]
		if c := a.Compare(b); c > 0 {
			t.Errorf("%d: a.Compare(b) = %d, want <= 0", i, c)
		}
		if c := b.Compare(a); c < 0 {
			t.Errorf("%d: b.Compare(a) = %d, want >= 0", i, c)
		}
		if c := a.Compare(a.Clone()); c != 0 {
			t.Errorf("%d: a.Compare(a.Clone()) = %d, want 0", i, c)
		}
	}
}
