package approvals

import (
	"path/filepath"
	"testing"
)

func TestReadApprovedTokensMissingFileReturnsZero(t *testing.T) {
	s := NewStore()
	n, err := s.ReadApprovedTokens(filepath.Join(t.TempDir(), "missing.json"), "2025-01-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestApproveIncrementAccumulatesPerDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	s := NewStore()

	if _, err := s.ApproveIncrement(path, "2025-01-15", 200000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, err := s.ApproveIncrement(path, "2025-01-15", 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Tokens != 250000 {
		t.Fatalf("expected 250000, got %d", entry.Tokens)
	}
	if entry.Increments != 2 {
		t.Fatalf("expected 2 increments, got %d", entry.Increments)
	}
}

func TestApproveIncrementRejectsNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	s := NewStore()
	if _, err := s.ApproveIncrement(path, "2025-01-15", 0); err == nil {
		t.Fatal("expected error for zero increment")
	}
	if _, err := s.ApproveIncrement(path, "2025-01-15", -10); err == nil {
		t.Fatal("expected error for negative increment")
	}
}

// TestIdempotentApprovalRead is the quantified property from spec.md §8:
// two consecutive reads with no intervening writes return equal values.
func TestIdempotentApprovalRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	s := NewStore()
	if _, err := s.ApproveIncrement(path, "2025-01-15", 1000); err != nil {
		t.Fatal(err)
	}

	a, err := s.ReadApprovedTokens(path, "2025-01-15")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.ReadApprovedTokens(path, "2025-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected idempotent reads, got %d then %d", a, b)
	}
}

func TestReadApprovedTokensIsolatedByDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	s := NewStore()
	if _, err := s.ApproveIncrement(path, "2025-01-15", 1000); err != nil {
		t.Fatal(err)
	}
	n, err := s.ReadApprovedTokens(path, "2025-01-16")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected day isolation, got %d", n)
	}
}
