package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/queryir"
)

func TestGetLMP_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.GetLMP(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLMP() err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetLatest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLatest() err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetInvocation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInvocation() err = %v, want ErrNotFound", err)
	}

	versions, err := s.GetVersionsByName(ctx, "missing")
	if err != nil {
		t.Fatalf("GetVersionsByName() failed: %v", err)
	}
	if versions == nil || len(versions) != 0 {
		t.Errorf("versions = %#v, want empty non-nil slice", versions)
	}
}

func TestGetLatest(t *testing.T) {
	s := createTestStore(t)
	mustWriteLMP(t, s, createTestLMP("greet", "v1"))
	v2 := mustWriteLMP(t, s, createTestLMP("greet", "v2"))

	latest, err := s.GetLatest(context.Background(), "greet")
	if err != nil {
		t.Fatalf("GetLatest() failed: %v", err)
	}
	if latest.ID != v2.ID || latest.Version != 2 {
		t.Errorf("latest = (%s, v%d), want (%s, v2)", latest.ID, latest.Version, v2.ID)
	}
}

func TestListLatest(t *testing.T) {
	s := createTestStore(t)
	mustWriteLMP(t, s, createTestLMP("summarize", "v1"))
	mustWriteLMP(t, s, createTestLMP("greet", "v1"))
	mustWriteLMP(t, s, createTestLMP("greet", "v2"))

	lmps, err := s.ListLatest(context.Background())
	if err != nil {
		t.Fatalf("ListLatest() failed: %v", err)
	}
	if len(lmps) != 2 {
		t.Fatalf("len = %d, want 2", len(lmps))
	}
	if lmps[0].Name != "greet" || lmps[0].Version != 2 {
		t.Errorf("lmps[0] = (%s, v%d), want (greet, v2)", lmps[0].Name, lmps[0].Version)
	}
	if lmps[1].Name != "summarize" || lmps[1].Version != 1 {
		t.Errorf("lmps[1] = (%s, v%d), want (summarize, v1)", lmps[1].Name, lmps[1].Version)
	}
}

// seedInvocations writes three invocations of one version:
// inv-1 (name=Ada), inv-2 (name=Grace, failed), inv-3 (name=Ada).
func seedInvocations(t *testing.T, s *Store) ir.LMP {
	t.Helper()
	lmp := mustWriteLMP(t, s, createTestLMP("greet", "x"))

	inv1 := createTestInvocation("inv-1", lmp.ID, 1)
	inv1.Kwargs = ir.IRObject{"name": ir.IRString("Ada")}

	inv2 := createTestInvocation("inv-2", lmp.ID, 2)
	inv2.Kwargs = ir.IRObject{"name": ir.IRString("Grace")}
	inv2.Result = ir.IRNull{}
	inv2.Error = "rate limited"

	inv3 := createTestInvocation("inv-3", lmp.ID, 3)
	inv3.Kwargs = ir.IRObject{"name": ir.IRString("Ada")}

	for _, inv := range []ir.Invocation{inv3, inv1, inv2} {
		mustWriteInvocation(t, s, inv)
	}
	return lmp
}

func invocationIDs(invs []ir.Invocation) []string {
	ids := make([]string, len(invs))
	for i, inv := range invs {
		ids[i] = inv.ID
	}
	return ids
}

func TestGetInvocations_Filters(t *testing.T) {
	s := createTestStore(t)
	lmp := seedInvocations(t, s)
	base := time.Unix(1700000000, 0).UTC()

	tests := []struct {
		name   string
		lmpID  string
		filter queryir.Predicate
		want   []string
	}{
		{
			name:  "all in creation order",
			lmpID: lmp.ID,
			want:  []string{"inv-1", "inv-2", "inv-3"},
		},
		{
			name:  "unknown version",
			lmpID: "other",
			want:  []string{},
		},
		{
			name:   "kwargs equality",
			lmpID:  lmp.ID,
			filter: queryir.Equals{Field: "kwargs.name", Value: ir.IRString("Ada")},
			want:   []string{"inv-1", "inv-3"},
		},
		{
			name:   "failures only",
			filter: queryir.Equals{Field: queryir.FieldFailed, Value: ir.IRBool(true)},
			want:   []string{"inv-2"},
		},
		{
			name:   "successes only",
			lmpID:  lmp.ID,
			filter: queryir.Equals{Field: queryir.FieldFailed, Value: ir.IRBool(false)},
			want:   []string{"inv-1", "inv-3"},
		},
		{
			name:   "time window",
			lmpID:  lmp.ID,
			filter: queryir.CreatedBetween{From: base.Add(2), To: base.Add(3)},
			want:   []string{"inv-2"},
		},
		{
			name:  "conjunction",
			lmpID: lmp.ID,
			filter: queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "kwargs.name", Value: ir.IRString("Ada")},
				queryir.CreatedBetween{From: base.Add(2)},
			}},
			want: []string{"inv-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invs, err := s.GetInvocations(context.Background(), tt.lmpID, tt.filter)
			if err != nil {
				t.Fatalf("GetInvocations() failed: %v", err)
			}
			got := invocationIDs(invs)
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestGetInvocations_InvalidFilter(t *testing.T) {
	s := createTestStore(t)
	seedInvocations(t, s)

	_, err := s.GetInvocations(context.Background(), "", queryir.Equals{Field: "kwargs.bad key", Value: ir.IRString("x")})
	if err == nil {
		t.Fatal("GetInvocations() with invalid field succeeded")
	}
}

func TestFindByStateCacheKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	lmp := mustWriteLMP(t, s, createTestLMP("greet", "x"))

	failed := createTestInvocation("inv-1", lmp.ID, 1)
	failed.Error = "timeout"
	failed.Result = ir.IRNull{}
	mustWriteInvocation(t, s, failed)

	if _, err := s.FindByStateCacheKey(ctx, failed.StateCacheKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failure record matched cache lookup: err = %v", err)
	}

	ok := createTestInvocation("inv-2", lmp.ID, 1)
	ok.CreatedAt = failed.CreatedAt.Add(time.Second)
	mustWriteInvocation(t, s, ok)

	got, err := s.FindByStateCacheKey(ctx, ok.StateCacheKey)
	if err != nil {
		t.Fatalf("FindByStateCacheKey() failed: %v", err)
	}
	if got.ID != "inv-2" {
		t.Errorf("id = %s, want inv-2", got.ID)
	}
}

func TestInvocationCounts(t *testing.T) {
	s := createTestStore(t)
	lmp := seedInvocations(t, s)
	other := mustWriteLMP(t, s, createTestLMP("other", "x"))
	mustWriteInvocation(t, s, createTestInvocation("inv-4", other.ID, 4))

	counts, err := s.InvocationCounts(context.Background())
	if err != nil {
		t.Fatalf("InvocationCounts() failed: %v", err)
	}
	if counts[lmp.ID] != 3 || counts[other.ID] != 1 {
		t.Errorf("counts = %v, want %s:3 %s:1", counts, lmp.ID, other.ID)
	}
}
