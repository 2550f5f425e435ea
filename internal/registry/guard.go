package registry

import (
	"context"

	"amm_go/internal/domain"
)

type guardKey struct{}

// heldSet is immutable once stored in a context.
type heldSet map[domain.PoolID]struct{}

func held(ctx context.Context, id domain.PoolID) bool {
	set, _ := ctx.Value(guardKey{}).(heldSet)
	_, ok := set[id]
	return ok
}

func withHeld(ctx context.Context, id domain.PoolID) context.Context {
	prev, _ := ctx.Value(guardKey{}).(heldSet)
	next := make(heldSet, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[id] = struct{}{}
	return context.WithValue(ctx, guardKey{}, next)
}

// Holds reports whether ctx belongs to an in-flight operation on pool id.
func Holds(ctx context.Context, id domain.PoolID) bool {
	return held(ctx, id)
}
