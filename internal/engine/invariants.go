package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
)

// supplier is implemented by share tokens that can report their supply.
type supplier interface {
	TotalSupply(pool domain.PoolID) *uint256.Int
}

// CheckInvariants verifies the accounting invariants of every pool:
// reserves are both zero iff no shares are outstanding, and the share ledger
// (and the share token, when it reports supply) sums to the pool's total.
func (e *Engine) CheckInvariants(ctx context.Context) error {
	pools, err := e.registry.Pools(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range pools {
		h, err := e.registry.Lock(ctx, p.ID)
		if err != nil {
			return err
		}
		errs = append(errs, e.checkPool(h.Pool()))
		h.Release()
	}
	return errors.Join(errs...)
}

func (e *Engine) checkPool(p domain.Pool) error {
	var errs []error

	reservesEmpty := p.ReserveA.IsZero() && p.ReserveB.IsZero()
	if reservesEmpty != p.TotalShares.IsZero() {
		errs = append(errs, fmt.Errorf("pool %s: reserves %s/%s with %s shares",
			p.ID.Hex(), p.ReserveA.Dec(), p.ReserveB.Dec(), p.TotalShares.Dec()))
	}

	sum, err := e.shares.SumBalances(p.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("pool %s: %w", p.ID.Hex(), err))
	} else if !sum.Eq(&p.TotalShares) {
		errs = append(errs, fmt.Errorf("pool %s: ledger balances sum to %s, total shares %s",
			p.ID.Hex(), sum.Dec(), p.TotalShares.Dec()))
	}
	if supply := e.shares.TotalSupply(p.ID); !supply.Eq(&p.TotalShares) {
		errs = append(errs, fmt.Errorf("pool %s: ledger supply %s, total shares %s",
			p.ID.Hex(), supply.Dec(), p.TotalShares.Dec()))
	}

	if s, ok := e.token.(supplier); ok {
		if supply := s.TotalSupply(p.ID); !supply.Eq(&p.TotalShares) {
			errs = append(errs, fmt.Errorf("pool %s: share token supply %s, total shares %s",
				p.ID.Hex(), supply.Dec(), p.TotalShares.Dec()))
		}
	}
	return errors.Join(errs...)
}
