package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/provenant/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLMP creates a version definition whose id is derived from name and source.
func createTestLMP(name, source string) ir.LMP {
	return ir.LMP{
		ID:           ir.MustVersionID(name, source, nil, nil, nil),
		Name:         name,
		Source:       source,
		Dependencies: []string{},
		Kind:         ir.KindFunc,
		APIParams:    ir.IRObject{},
		FreeVars:     ir.IRObject{},
		GlobalVars:   ir.IRObject{},
		CreatedAt:    time.Unix(1700000000, 0).UTC(),
	}
}

// createTestInvocation creates an invocation with minimal required fields.
func createTestInvocation(id, lmpID string, seq int64, consumes ...string) ir.Invocation {
	args := ir.IRArray{ir.IRInt(seq)}
	return ir.Invocation{
		ID:            id,
		LMPID:         lmpID,
		Args:          args,
		Kwargs:        ir.IRObject{},
		Result:        ir.IRString("ok"),
		Latency:       time.Millisecond,
		StateCacheKey: ir.MustStateCacheKey(lmpID, args, nil, nil, nil),
		CreatedAt:     time.Unix(1700000000, seq).UTC(),
		Consumes:      consumes,
	}
}

// mustWriteLMP registers a version and fails the test on error.
func mustWriteLMP(t *testing.T, s *Store, def ir.LMP, uses ...string) ir.LMP {
	t.Helper()
	lmp, _, err := s.WriteLMP(context.Background(), def, uses)
	if err != nil {
		t.Fatalf("WriteLMP(%s) failed: %v", def.Name, err)
	}
	return lmp
}

// mustWriteInvocation writes an invocation and fails the test on error.
func mustWriteInvocation(t *testing.T, s *Store, inv ir.Invocation) {
	t.Helper()
	if err := s.WriteInvocation(context.Background(), inv); err != nil {
		t.Fatalf("WriteInvocation(%s) failed: %v", inv.ID, err)
	}
}
