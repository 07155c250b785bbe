package budget

import "context"

// Governor is the interface the pipeline holds instead of a concrete
// *Budget, so a cross-process SharedBudget can stand in for the local,
// in-memory Budget without the pipeline caring which one it has. Mirrors
// ratelimit.Checker's local/shared split.
type Governor interface {
	Reserve(ctx context.Context, n int64) (Reservation, error)
	Release(ctx context.Context, r Reservation)
	Commit(ctx context.Context, toolName string, actualTokens int64, costMinor *int64, r *Reservation)
	GetUsage(ctx context.Context) Usage
}

// LocalGovernor adapts *Budget to Governor. The local budget never blocks
// on I/O, so it simply ignores ctx.
type LocalGovernor struct{ *Budget }

func (g LocalGovernor) Reserve(_ context.Context, n int64) (Reservation, error) {
	return g.Budget.Reserve(n)
}

func (g LocalGovernor) Release(_ context.Context, r Reservation) {
	g.Budget.Release(r)
}

func (g LocalGovernor) Commit(_ context.Context, toolName string, actualTokens int64, costMinor *int64, r *Reservation) {
	g.Budget.Commit(toolName, actualTokens, costMinor, r)
}

func (g LocalGovernor) GetUsage(_ context.Context) Usage {
	return g.Budget.GetUsage()
}
