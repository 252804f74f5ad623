package facade

import "context"

// replayIfSeen checks the idempotency cache for a prior response to the same
// (tool, idempotency_key) pair within the configured window. This is a
// short-window dedupe, not a durable exactly-once ledger: a cache eviction
// simply lets the call run again.
func (f *Facade) replayIfSeen(ctx context.Context, tool, key string) (Envelope, bool) {
	var env Envelope
	if err := f.Idempotency.Get(ctx, idempotencyCacheKey(tool, key), &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

func (f *Facade) rememberReplay(ctx context.Context, tool, key string, env Envelope) {
	_ = f.Idempotency.Set(ctx, idempotencyCacheKey(tool, key), &env, f.IdempotencyWindow)
}

func idempotencyCacheKey(tool, key string) string {
	return "idem:" + tool + ":" + key
}
