// Package budget implements spec.md §4.E's per-UTC-day token budget:
// reserve/commit/release accounting with operator-approved increments.
// The mutex-guarded-struct idiom is grounded on the same
// internal/httpapi/ratelimit.go shape the rate limiter reuses; there is no
// direct teacher equivalent of a token budget, so the struct layout here
// is synthesized from that idiom plus spec.md §3's BudgetState data model.
package budget

import (
	"sync"
	"time"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/approvals"
)

// ApprovalPolicy selects how an over-budget reserve is handled.
type ApprovalPolicy string

const (
	PolicyNever  ApprovalPolicy = "never"
	PolicyPrompt ApprovalPolicy = "prompt"
	PolicyAuto   ApprovalPolicy = "auto"
)

// ToolUsage is the per-tool accumulator in BudgetState.
type ToolUsage struct {
	Tokens   int64
	Calls    int64
	CostMinor int64
}

// Usage is the read-only snapshot returned by GetUsage.
type Usage struct {
	DayUTC         string
	UsedTokens     int64
	EffectiveMax   int64
	BaseMax        int64
	ApprovedTokens int64
	RequestCount   int64
	UsedCostMinor  int64
	PerTool        map[string]ToolUsage
}

// Reservation is produced by a successful Reserve and consumed by exactly
// one Commit or Release.
type Reservation struct {
	Tokens int64
}

// Budget is the stateful component: one mutex guards every counter and
// the per-tool map, and the UTC-day rollover check runs inside that same
// critical section, per spec.md §5's shared-resource policy.
type Budget struct {
	mu sync.Mutex

	baseMaxPerDay int64
	increment     int64
	policy        ApprovalPolicy
	approvals     *approvals.Store
	approvalsPath string

	dayUTC         string
	usedTokens     int64
	usedCostMinor  int64
	approvedTokens int64
	requestCount   int64
	perTool        map[string]ToolUsage

	now func() time.Time
}

// Config bundles the constructor parameters.
type Config struct {
	BaseMaxPerDay   int64
	IncrementTokens int64
	Policy          ApprovalPolicy
	Approvals       *approvals.Store
	ApprovalsPath   string
}

// New constructs a Budget, performing the first rollover immediately so
// usage starts attached to the current UTC day.
func New(cfg Config) *Budget {
	b := &Budget{
		baseMaxPerDay: cfg.BaseMaxPerDay,
		increment:     cfg.IncrementTokens,
		policy:        cfg.Policy,
		approvals:     cfg.Approvals,
		approvalsPath: cfg.ApprovalsPath,
		perTool:       make(map[string]ToolUsage),
		now:           time.Now,
	}
	b.rollover(b.now())
	return b
}

func dayUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rollover must be called with mu held. If the wall-clock UTC day differs
// from the stored one, every counter resets and approved_tokens is
// re-read from the Approvals Store, per spec.md §4.E.
func (b *Budget) rollover(now time.Time) {
	day := dayUTC(now)
	if day == b.dayUTC {
		return
	}
	b.dayUTC = day
	b.usedTokens = 0
	b.usedCostMinor = 0
	b.requestCount = 0
	b.perTool = make(map[string]ToolUsage)
	b.approvedTokens = b.readApproved(day)
}

func (b *Budget) readApproved(day string) int64 {
	if b.approvals == nil {
		return 0
	}
	n, err := b.approvals.ReadApprovedTokens(b.approvalsPath, day)
	if err != nil {
		return 0
	}
	return n
}

func (b *Budget) effectiveMaxLocked() int64 {
	return b.baseMaxPerDay + b.approvedTokens
}

// GetUsage returns a consistent snapshot of today's usage.
func (b *Budget) GetUsage() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(b.now())

	perTool := make(map[string]ToolUsage, len(b.perTool))
	for k, v := range b.perTool {
		perTool[k] = v
	}
	return Usage{
		DayUTC:         b.dayUTC,
		UsedTokens:     b.usedTokens,
		EffectiveMax:   b.effectiveMaxLocked(),
		BaseMax:        b.baseMaxPerDay,
		ApprovedTokens: b.approvedTokens,
		RequestCount:   b.requestCount,
		UsedCostMinor:  b.usedCostMinor,
		PerTool:        perTool,
	}
}

// CheckOrThrow raises BudgetExceeded (or BudgetApprovalRequired, per
// policy) if used_tokens has already reached effective_max.
func (b *Budget) CheckOrThrow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(b.now())

	if b.usedTokens >= b.effectiveMaxLocked() {
		return b.overBudgetErrorLocked()
	}
	return nil
}

func (b *Budget) overBudgetErrorLocked() error {
	switch b.policy {
	case PolicyPrompt:
		return &apierr.BudgetApprovalRequired{
			Increment: b.increment,
			Used:      b.usedTokens,
			Max:       b.effectiveMaxLocked(),
		}
	default:
		return &apierr.BudgetExceeded{Used: b.usedTokens, Max: b.effectiveMaxLocked()}
	}
}

// Reserve atomically checks used+n <= effective_max and adds n to used.
// On failure it applies the configured approval policy, per spec.md
// §4.E: "auto" appends increment_tokens to today's approval and retries
// once; "prompt" raises BudgetApprovalRequired; "never" raises
// BudgetExceeded.
func (b *Budget) Reserve(n int64) (Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(b.now())

	if b.usedTokens+n <= b.effectiveMaxLocked() {
		b.usedTokens += n
		return Reservation{Tokens: n}, nil
	}

	if b.policy == PolicyAuto && b.approvals != nil {
		if _, err := b.approvals.ApproveIncrement(b.approvalsPath, b.dayUTC, b.increment); err == nil {
			b.approvedTokens = b.readApproved(b.dayUTC)
			if b.usedTokens+n <= b.effectiveMaxLocked() {
				b.usedTokens += n
				return Reservation{Tokens: n}, nil
			}
		}
		return Reservation{}, &apierr.BudgetExceeded{Used: b.usedTokens, Max: b.effectiveMaxLocked()}
	}

	return Reservation{}, b.overBudgetErrorLocked()
}

// Release subtracts the reservation's tokens from used, never going below
// zero, for the case a call was cancelled before it could commit.
func (b *Budget) Release(r Reservation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usedTokens -= r.Tokens
	if b.usedTokens < 0 {
		b.usedTokens = 0
	}
}

// Commit applies delta = actual - reservation.Tokens to used_tokens (so a
// reservation that overestimated refunds the difference, and one that
// underestimated tops it up), and adds actual to the named tool's totals.
func (b *Budget) Commit(toolName string, actualTokens int64, costMinor *int64, r *Reservation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(b.now())

	var reserved int64
	if r != nil {
		reserved = r.Tokens
	}
	delta := actualTokens - reserved
	b.usedTokens += delta
	if b.usedTokens < 0 {
		b.usedTokens = 0
	}

	usage := b.perTool[toolName]
	usage.Tokens += actualTokens
	usage.Calls++
	if costMinor != nil {
		usage.CostMinor += *costMinor
		b.usedCostMinor += *costMinor
	}
	b.perTool[toolName] = usage
	b.requestCount++
}
