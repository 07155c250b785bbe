package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/approvals"
	"github.com/genaibridge/genai-bridge/internal/sharedstore"
)

// sharedTTL bounds a day's counters so an abandoned deployment's keys
// self-clean well after the UTC day they belong to has passed.
const sharedTTL = 48 * time.Hour

// SharedConfig bundles SharedBudget's constructor parameters, mirroring
// Config's shape.
type SharedConfig struct {
	BaseMaxPerDay   int64
	IncrementTokens int64
	Policy          ApprovalPolicy
	Approvals       *approvals.Store
	ApprovalsPath   string
}

// SharedBudget enforces spec.md §4.E's reserve/commit contract against a
// cross-process sharedstore.Store, per spec.md §4.F's shared deployment
// mode, mirroring ratelimit.SharedChecker's key-namespacing idiom: one
// total counter per UTC day plus one per-tool counter, both refreshed
// with a TTL so a day's keys self-clean without an explicit rollover step.
type SharedBudget struct {
	store         sharedstore.Store
	prefix        string
	baseMaxPerDay int64
	increment     int64
	policy        ApprovalPolicy
	approvals     *approvals.Store
	approvalsPath string

	now func() time.Time
}

// NewSharedBudget builds a SharedBudget over store, namespacing every key
// under prefix.
func NewSharedBudget(store sharedstore.Store, prefix string, cfg SharedConfig) *SharedBudget {
	return &SharedBudget{
		store:         store,
		prefix:        prefix,
		baseMaxPerDay: cfg.BaseMaxPerDay,
		increment:     cfg.IncrementTokens,
		policy:        cfg.Policy,
		approvals:     cfg.Approvals,
		approvalsPath: cfg.ApprovalsPath,
		now:           time.Now,
	}
}

func (b *SharedBudget) totalKey(day string) string {
	return fmt.Sprintf("%s:budget:%s:total", b.prefix, day)
}

func (b *SharedBudget) toolKey(day, tool string) string {
	return fmt.Sprintf("%s:budget:%s:tool:%s", b.prefix, day, tool)
}

func (b *SharedBudget) readApproved(day string) int64 {
	if b.approvals == nil {
		return 0
	}
	n, err := b.approvals.ReadApprovedTokens(b.approvalsPath, day)
	if err != nil {
		return 0
	}
	return n
}

func (b *SharedBudget) effectiveMax(day string) int64 {
	return b.baseMaxPerDay + b.readApproved(day)
}

// Reserve mirrors Budget.Reserve's policy handling (never/prompt/auto) but
// delegates the atomic total+n<=max check to the store's ReserveBudget
// script so concurrent processes never race on a read-then-write.
func (b *SharedBudget) Reserve(ctx context.Context, n int64) (Reservation, error) {
	day := dayUTC(b.now())
	max := b.effectiveMax(day)

	total, admitted, err := b.store.ReserveBudget(ctx, b.totalKey(day), n, max, sharedTTL)
	if err != nil {
		return Reservation{}, err
	}
	if admitted {
		return Reservation{Tokens: n}, nil
	}

	if b.policy == PolicyAuto && b.approvals != nil {
		if _, err := b.approvals.ApproveIncrement(b.approvalsPath, day, b.increment); err == nil {
			max = b.effectiveMax(day)
			total, admitted, err = b.store.ReserveBudget(ctx, b.totalKey(day), n, max, sharedTTL)
			if err == nil && admitted {
				return Reservation{Tokens: n}, nil
			}
		}
		return Reservation{}, &apierr.BudgetExceeded{Used: total, Max: max}
	}

	if b.policy == PolicyPrompt {
		return Reservation{}, &apierr.BudgetApprovalRequired{Increment: b.increment, Used: total, Max: max}
	}
	return Reservation{}, &apierr.BudgetExceeded{Used: total, Max: max}
}

// Release subtracts the reservation back out of today's total, never
// letting the remote counter go below zero.
func (b *SharedBudget) Release(ctx context.Context, r Reservation) {
	day := dayUTC(b.now())
	if _, err := b.store.IncrBy(ctx, b.totalKey(day), -r.Tokens); err != nil {
		return
	}
	_ = b.store.Expire(ctx, b.totalKey(day), sharedTTL)
}

// Commit applies delta = actual - reservation.Tokens to today's total and
// adds actual to the named tool's counter, as one store-side transaction.
func (b *SharedBudget) Commit(ctx context.Context, toolName string, actualTokens int64, _ *int64, r *Reservation) {
	day := dayUTC(b.now())
	var reserved int64
	if r != nil {
		reserved = r.Tokens
	}
	delta := actualTokens - reserved
	_ = b.store.CommitBudget(ctx, b.totalKey(day), b.toolKey(day, toolName), delta, actualTokens, sharedTTL)
}

// GetUsage reads back today's total from the store. Per-tool breakdowns
// are written by Commit but not enumerable through sharedstore.Store's
// single-key Get, so PerTool is always empty here; callers that need the
// per-tool breakdown read it from the local Budget each process still
// keeps for its own bookkeeping.
func (b *SharedBudget) GetUsage(ctx context.Context) Usage {
	day := dayUTC(b.now())
	approved := b.readApproved(day)

	raw, ok, err := b.store.Get(ctx, b.totalKey(day))
	var used int64
	if err == nil && ok {
		used, _ = strconv.ParseInt(raw, 10, 64)
	}

	return Usage{
		DayUTC:         day,
		UsedTokens:     used,
		EffectiveMax:   b.baseMaxPerDay + approved,
		BaseMax:        b.baseMaxPerDay,
		ApprovedTokens: approved,
		PerTool:        map[string]ToolUsage{},
	}
}
