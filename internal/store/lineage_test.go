package store

import (
	"context"
	"slices"
	"testing"
)

// writeChain stores a -> b -> c plus a side branch d -> b, where x -> y means
// "x consumed the output of y".
func writeChain(t *testing.T, s *Store) {
	t.Helper()
	lmp := mustWriteLMP(t, s, createTestLMP("step", "x"))
	mustWriteInvocation(t, s, createTestInvocation("c", lmp.ID, 1))
	mustWriteInvocation(t, s, createTestInvocation("b", lmp.ID, 2, "c"))
	mustWriteInvocation(t, s, createTestInvocation("a", lmp.ID, 3, "b"))
	mustWriteInvocation(t, s, createTestInvocation("d", lmp.ID, 4, "b"))
}

func TestConsumes(t *testing.T) {
	s := createTestStore(t)
	writeChain(t, s)
	ctx := context.Background()

	consumes, err := s.GetConsumes(ctx, "a")
	if err != nil {
		t.Fatalf("GetConsumes() failed: %v", err)
	}
	if !slices.Equal(consumes, []string{"b"}) {
		t.Errorf("consumes(a) = %v, want [b]", consumes)
	}

	consumedBy, err := s.GetConsumedBy(ctx, "b")
	if err != nil {
		t.Fatalf("GetConsumedBy() failed: %v", err)
	}
	if !slices.Equal(consumedBy, []string{"a", "d"}) {
		t.Errorf("consumedBy(b) = %v, want [a d]", consumedBy)
	}

	inv, err := s.GetInvocation(ctx, "b")
	if err != nil {
		t.Fatalf("GetInvocation() failed: %v", err)
	}
	if !slices.Equal(inv.Consumes, []string{"c"}) {
		t.Errorf("invocation b consumes = %v, want [c]", inv.Consumes)
	}
}

func TestLineage_Transitive(t *testing.T) {
	s := createTestStore(t)
	writeChain(t, s)

	lineage, err := s.GetLineage(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetLineage() failed: %v", err)
	}
	if !slices.Equal(lineage, []string{"b", "c"}) {
		t.Errorf("lineage(a) = %v, want [b c]", lineage)
	}

	root, err := s.GetLineage(context.Background(), "c")
	if err != nil {
		t.Fatalf("GetLineage() failed: %v", err)
	}
	if len(root) != 0 {
		t.Errorf("lineage(c) = %v, want empty", root)
	}
}

func TestLineage_DiamondVisitsOnce(t *testing.T) {
	s := createTestStore(t)
	lmp := mustWriteLMP(t, s, createTestLMP("step", "x"))
	mustWriteInvocation(t, s, createTestInvocation("root", lmp.ID, 1))
	mustWriteInvocation(t, s, createTestInvocation("left", lmp.ID, 2, "root"))
	mustWriteInvocation(t, s, createTestInvocation("right", lmp.ID, 3, "root"))
	mustWriteInvocation(t, s, createTestInvocation("join", lmp.ID, 4, "left", "right"))

	lineage, err := s.GetLineage(context.Background(), "join")
	if err != nil {
		t.Fatalf("GetLineage() failed: %v", err)
	}
	if !slices.Equal(lineage, []string{"left", "right", "root"}) {
		t.Errorf("lineage(join) = %v, want [left right root]", lineage)
	}
}
