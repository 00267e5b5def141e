package trace

import "context"

// RunRecorder binds a store to a single run ID so the scenario runner can
// stream transcript events without knowing about runs or SQL.
type RunRecorder struct {
	Store *Store
	RunID string
}

// RecordEvent appends one transcript event to the recorder's run.
func (r *RunRecorder) RecordEvent(ctx context.Context, seq int, kind string, detail []byte) error {
	return r.Store.WriteEvent(ctx, r.RunID, seq, kind, detail)
}
