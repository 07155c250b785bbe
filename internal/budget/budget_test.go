package budget

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/genaibridge/genai-bridge/internal/approvals"
)

func newTestBudget(t *testing.T, policy ApprovalPolicy) *Budget {
	t.Helper()
	b := New(Config{
		BaseMaxPerDay:   100,
		IncrementTokens: 200000,
		Policy:          policy,
		Approvals:       approvals.NewStore(),
		ApprovalsPath:   filepath.Join(t.TempDir(), "approvals.json"),
	})
	return b
}

func TestReserveWithinBudgetSucceeds(t *testing.T) {
	b := newTestBudget(t, PolicyNever)
	r, err := b.Reserve(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Tokens != 50 {
		t.Fatalf("unexpected reservation: %+v", r)
	}
	if got := b.GetUsage().UsedTokens; got != 50 {
		t.Fatalf("expected used_tokens=50, got %d", got)
	}
}

func TestReserveOverBudgetNeverPolicyFails(t *testing.T) {
	b := newTestBudget(t, PolicyNever)
	if _, err := b.Reserve(100); err != nil {
		t.Fatalf("unexpected error filling budget: %v", err)
	}
	if _, err := b.Reserve(1); err == nil {
		t.Fatal("expected BudgetExceeded")
	}
}

func TestReserveOverBudgetPromptPolicyRaisesApprovalRequired(t *testing.T) {
	b := newTestBudget(t, PolicyPrompt)
	if _, err := b.Reserve(100); err != nil {
		t.Fatal(err)
	}
	_, err := b.Reserve(1)
	if err == nil {
		t.Fatal("expected BudgetApprovalRequired")
	}
}

func TestReserveOverBudgetAutoPolicyApprovesAndRetries(t *testing.T) {
	b := newTestBudget(t, PolicyAuto)
	if _, err := b.Reserve(100); err != nil {
		t.Fatal(err)
	}
	r, err := b.Reserve(1)
	if err != nil {
		t.Fatalf("expected auto-approval to rescue the reservation, got: %v", err)
	}
	if r.Tokens != 1 {
		t.Fatalf("unexpected reservation: %+v", r)
	}
	usage := b.GetUsage()
	if usage.ApprovedTokens != 200000 {
		t.Fatalf("expected approved_tokens=200000, got %d", usage.ApprovedTokens)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	b := newTestBudget(t, PolicyNever)
	r, err := b.Reserve(10)
	if err != nil {
		t.Fatal(err)
	}
	b.Release(r)
	b.Release(r) // double release should still floor at zero
	if got := b.GetUsage().UsedTokens; got != 0 {
		t.Fatalf("expected used_tokens=0, got %d", got)
	}
}

func TestCommitAppliesDeltaAndPerToolTotals(t *testing.T) {
	b := newTestBudget(t, PolicyNever)
	r, err := b.Reserve(20)
	if err != nil {
		t.Fatal(err)
	}
	b.Commit("count_tokens", 15, nil, &r)

	usage := b.GetUsage()
	if usage.UsedTokens != 15 {
		t.Fatalf("expected used_tokens=15 after refund, got %d", usage.UsedTokens)
	}
	tool := usage.PerTool["count_tokens"]
	if tool.Tokens != 15 || tool.Calls != 1 {
		t.Fatalf("unexpected per-tool usage: %+v", tool)
	}
}

func TestCommitWithoutReservationAddsActualDirectly(t *testing.T) {
	b := newTestBudget(t, PolicyNever)
	b.Commit("count_tokens", 5, nil, nil)
	if got := b.GetUsage().UsedTokens; got != 5 {
		t.Fatalf("expected used_tokens=5, got %d", got)
	}
}

func TestRolloverResetsUsageAndRereadsApprovals(t *testing.T) {
	b := newTestBudget(t, PolicyNever)
	fixed := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }
	b.rollover(fixed)

	if _, err := b.Reserve(50); err != nil {
		t.Fatal(err)
	}
	if got := b.GetUsage().UsedTokens; got != 50 {
		t.Fatalf("expected used_tokens=50 before rollover, got %d", got)
	}

	nextDay := fixed.Add(24 * time.Hour)
	b.now = func() time.Time { return nextDay }

	usage := b.GetUsage()
	if usage.UsedTokens != 0 {
		t.Fatalf("expected used_tokens=0 after UTC day rollover, got %d", usage.UsedTokens)
	}
	if usage.DayUTC != dayUTC(nextDay) {
		t.Fatalf("expected day_utc to advance, got %s", usage.DayUTC)
	}
}
