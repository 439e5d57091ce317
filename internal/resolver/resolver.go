package resolver

import (
	"context"

	"telescribe/internal/logging"
	"telescribe/internal/metrics"
	"telescribe/internal/model"
	"telescribe/internal/pace"
	"telescribe/internal/throttle"
)

// Lookup is the single remote call the resolver depends on.
type Lookup interface {
	ResolveUser(ctx context.Context, id int64) (model.UserProfile, error)
}

// Resolver memoizes user lookups for the lifetime of one run. A terminal
// lookup failure is cached as nil, so a permanently unresolvable id costs
// exactly one remote call no matter how many messages it appears in.
// The cache is shared across conversations within the run and never
// persisted.
type Resolver struct {
	api   Lookup
	gate  *pace.Gate
	cache map[int64]*model.UserProfile
}

func New(api Lookup, gate *pace.Gate) *Resolver {
	return &Resolver{api: api, gate: gate, cache: make(map[int64]*model.UserProfile)}
}

// Resolve returns the profile for id, fetching it on first sight through
// the resolution gate. Throttled signals are waited out; any other lookup
// failure degrades to a nil profile rather than failing the caller's export.
func (r *Resolver) Resolve(ctx context.Context, id int64) (*model.UserProfile, error) {
	if p, ok := r.cache[id]; ok {
		metrics.ResolverHits.Inc()
		return p, nil
	}
	metrics.ResolverMisses.Inc()
	u, err := throttle.Do(ctx, r.gate, "resolve_user", func(ctx context.Context) (model.UserProfile, error) {
		return r.api.ResolveUser(ctx, id)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation says nothing about the id; leave it uncached.
			return nil, ctx.Err()
		}
		logging.Warn("user_unresolved", map[string]any{"user_id": id, "error": err.Error()})
		r.cache[id] = nil
		return nil, nil
	}
	p := &u
	r.cache[id] = p
	return p, nil
}

// Size reports how many distinct ids the run has seen, resolved or not.
func (r *Resolver) Size() int { return len(r.cache) }
