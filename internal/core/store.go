package core

import "context"

// RecordStore is the engine's only access to authoritative data.
//
// ApplyEdits must return exactly one outcome per submitted item, in
// submission order, unless the request as a whole fails, in which case it
// returns an error and no result. A failing item never prevents the others
// from being applied.
type RecordStore interface {
	Query(ctx context.Context, def DatasetDefinition, q Query) ([]Record, error)
	ApplyEdits(ctx context.Context, def DatasetDefinition, batch EditBatch) (*EditResult, error)
}

// Refresher receives the signal that authoritative data changed and any
// displayed copy should be re-synced. Refresh must be safe to call
// repeatedly.
type Refresher interface {
	Refresh()
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func()

// Refresh calls f.
func (f RefreshFunc) Refresh() { f() }

type noopRefresher struct{}

func (noopRefresher) Refresh() {}

// RunRecorder persists finished runs for later inspection.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, dataset string, limit int) ([]RunSummary, error)
}
