package app

import (
	"context"
	"fmt"
	"log/slog"

	"amm_go/internal/custody"
	"amm_go/internal/domain"
	"amm_go/internal/engine"
	"amm_go/internal/event"
	"amm_go/internal/pricing"
	"amm_go/internal/registry"
)

// Recovered is the engine state rebuilt from the command WAL.
type Recovered struct {
	Pools    []domain.Pool
	Shares   []domain.ShareBalance
	NextSeq  uint64
	Rejected int // commands that failed when first applied and failed again
}

// Recover replays cmds in order into a scratch engine over bank. The scratch
// engine has no persister and no sinks, so nothing is written or re-announced.
// bank ends up holding the replayed custody balances.
func Recover(ctx context.Context, cmds []event.Command, bank *custody.Bank, fee pricing.Fee) (*Recovered, error) {
	eng, err := engine.New(registry.New(), bank, engine.WithFee(fee))
	if err != nil {
		return nil, err
	}
	seq := engine.NewSequencer(1, eng, nil, nil, engine.WithFunder(bank))

	rec := &Recovered{}
	for _, cmd := range cmds {
		if res := seq.ReplayEvent(ctx, cmd); res.Err != nil {
			rec.Rejected++
		}
	}
	rec.NextSeq = seq.NextSeq()

	pools, err := eng.Pools(ctx)
	if err != nil {
		return nil, err
	}
	rec.Pools = pools
	for i := range pools {
		holders, err := eng.Holders(ctx, pools[i].ID)
		if err != nil {
			return nil, err
		}
		rec.Shares = append(rec.Shares, holders...)
	}

	slog.Info("WAL replayed",
		slog.Int("commands", len(cmds)),
		slog.Int("rejected", rec.Rejected),
		slog.Int("pools", len(rec.Pools)),
		slog.Uint64("next_seq", rec.NextSeq))
	return rec, nil
}

// Drift lists the differences between the persisted tables and the replayed
// state. An empty result means the tables are current.
func Drift(rec *Recovered, pools []domain.Pool, shares []domain.ShareBalance) []string {
	var out []string

	stored := make(map[domain.PoolID]domain.Pool, len(pools))
	for _, p := range pools {
		stored[p.ID] = p
	}
	for _, want := range rec.Pools {
		got, ok := stored[want.ID]
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("pool %s missing", want.ID.Hex()))
		case got.ReserveA != want.ReserveA || got.ReserveB != want.ReserveB || got.TotalShares != want.TotalShares:
			out = append(out, fmt.Sprintf("pool %s: stored %s/%s/%s, replayed %s/%s/%s", want.ID.Hex(),
				got.ReserveA.Dec(), got.ReserveB.Dec(), got.TotalShares.Dec(),
				want.ReserveA.Dec(), want.ReserveB.Dec(), want.TotalShares.Dec()))
		}
		delete(stored, want.ID)
	}
	for id := range stored {
		out = append(out, fmt.Sprintf("pool %s not in WAL", id.Hex()))
	}

	type key struct {
		pool    domain.PoolID
		account domain.Account
	}
	balances := make(map[key]domain.ShareBalance, len(shares))
	for _, s := range shares {
		if !s.Balance.IsZero() {
			balances[key{s.Pool, s.Account}] = s
		}
	}
	for _, want := range rec.Shares {
		k := key{want.Pool, want.Account}
		got, ok := balances[k]
		if !ok || got.Balance != want.Balance {
			out = append(out, fmt.Sprintf("shares %s/%s: stored %s, replayed %s",
				want.Pool.Hex(), want.Account.Hex(), got.Balance.Dec(), want.Balance.Dec()))
		}
		delete(balances, k)
	}
	for k := range balances {
		out = append(out, fmt.Sprintf("shares %s/%s not in WAL", k.pool.Hex(), k.account.Hex()))
	}
	return out
}

// Snapshot returns the replayed share rows plus a zero row for every stored
// balance the replay no longer has, so SaveState clears stale holders.
func (r *Recovered) Snapshot(stored []domain.ShareBalance) []domain.ShareBalance {
	type key struct {
		pool    domain.PoolID
		account domain.Account
	}
	live := make(map[key]struct{}, len(r.Shares))
	for _, s := range r.Shares {
		live[key{s.Pool, s.Account}] = struct{}{}
	}
	out := append([]domain.ShareBalance(nil), r.Shares...)
	for _, s := range stored {
		if _, ok := live[key{s.Pool, s.Account}]; !ok && !s.Balance.IsZero() {
			out = append(out, domain.ShareBalance{Pool: s.Pool, Account: s.Account})
		}
	}
	return out
}
