package engine

import (
	"context"
	"log/slog"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
	"amm_go/pkg/safe"
)

// AddLiquidity deposits amountA of assetA and amountB of assetB and returns
// the shares issued to provider.
//
// The first deposit sets the price and issues sqrt(amountA*amountB) shares.
// Later deposits issue min(amountA*total/reserveA, amountB*total/reserveB);
// any excess of the over-supplied asset stays in the pool unrewarded.
func (e *Engine) AddLiquidity(ctx context.Context, assetA, assetB domain.AssetID, amountA, amountB *uint256.Int, provider domain.Account) (*uint256.Int, error) {
	h, err := e.registry.Lock(ctx, domain.PairIdentifier(assetA, assetB))
	if err != nil {
		return nil, err
	}
	defer h.Release()
	ctx = h.Context()

	pool := h.Pool()
	if assetA != pool.AssetA {
		amountA, amountB = amountB, amountA
	}

	issued, err := issueShares(&pool, amountA, amountB)
	if err != nil {
		return nil, err
	}
	if issued.IsZero() {
		return nil, domain.ErrInsufficientLiquidity.Wrap("deposit issues no shares")
	}

	next := pool
	if err := addTo(&next.ReserveA, amountA); err != nil {
		return nil, err
	}
	if err := addTo(&next.ReserveB, amountB); err != nil {
		return nil, err
	}
	if err := addTo(&next.TotalShares, issued); err != nil {
		return nil, err
	}
	balance, err := safe.Add(e.shares.BalanceOf(pool.ID, provider), issued)
	if err != nil {
		return nil, domain.Arith(err)
	}

	j := e.newJournal()
	if err := e.transfers.TransferIn(ctx, pool.AssetA, provider, amountA); err != nil {
		return nil, err
	}
	j.push("transfer_in_a", func(ctx context.Context) error {
		return e.transfers.TransferOut(ctx, pool.AssetA, provider, amountA)
	})
	if err := e.transfers.TransferIn(ctx, pool.AssetB, provider, amountB); err != nil {
		return nil, j.rollback(ctx, err)
	}
	j.push("transfer_in_b", func(ctx context.Context) error {
		return e.transfers.TransferOut(ctx, pool.AssetB, provider, amountB)
	})

	if err := e.shares.Credit(pool.ID, provider, issued); err != nil {
		return nil, j.rollback(ctx, err)
	}
	j.push("ledger_credit", func(context.Context) error {
		return e.shares.Debit(pool.ID, provider, issued)
	})

	if e.token != nil {
		if err := e.token.Mint(ctx, pool.ID, provider, issued); err != nil {
			return nil, j.rollback(ctx, err)
		}
		j.push("token_mint", func(ctx context.Context) error {
			return e.token.Burn(ctx, pool.ID, provider, issued)
		})
	}

	ev := domain.LiquidityAdded{
		Pool:     pool.ID,
		Provider: provider,
		AmountA:  amountA.Clone(),
		AmountB:  amountB.Clone(),
		Issued:   issued.Clone(),
	}
	change := domain.PoolChange{
		Pool:   next,
		Shares: []domain.ShareBalance{{Pool: pool.ID, Account: provider, Balance: *balance}},
	}
	if err := h.Commit(change, func(ctx context.Context) error { return e.emit(ctx, ev) }); err != nil {
		return nil, j.rollback(ctx, err)
	}

	e.logger.Debug("Liquidity added",
		slog.String("pool", pool.ID.Hex()),
		slog.String("provider", provider.Hex()),
		slog.String("issued", issued.Dec()))
	return issued, nil
}

// RemoveLiquidity burns shares and pays the provider its pro-rata reserves.
// The returned amounts follow the caller's (assetA, assetB) order.
func (e *Engine) RemoveLiquidity(ctx context.Context, assetA, assetB domain.AssetID, shares *uint256.Int, provider domain.Account) (*uint256.Int, *uint256.Int, error) {
	h, err := e.registry.Lock(ctx, domain.PairIdentifier(assetA, assetB))
	if err != nil {
		return nil, nil, err
	}
	defer h.Release()
	ctx = h.Context()

	pool := h.Pool()
	held := e.shares.BalanceOf(pool.ID, provider)
	if held.Lt(shares) {
		return nil, nil, domain.ErrInsufficientShares.Wrapf("holds %s, requested %s", held.Dec(), shares.Dec())
	}
	if shares.IsZero() || pool.TotalShares.IsZero() {
		return nil, nil, domain.ErrInsufficientLiquidityBurned.Wrap("no shares burned")
	}

	// Floor division: withdrawals never overpay.
	amountA, err := safe.MulDiv(shares, &pool.ReserveA, &pool.TotalShares)
	if err != nil {
		return nil, nil, domain.Arith(err)
	}
	amountB, err := safe.MulDiv(shares, &pool.ReserveB, &pool.TotalShares)
	if err != nil {
		return nil, nil, domain.Arith(err)
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, domain.ErrInsufficientLiquidityBurned.Wrapf("burning %s shares pays %s/%s",
			shares.Dec(), amountA.Dec(), amountB.Dec())
	}

	next := pool
	if err := subFrom(&next.ReserveA, amountA); err != nil {
		return nil, nil, err
	}
	if err := subFrom(&next.ReserveB, amountB); err != nil {
		return nil, nil, err
	}
	if err := subFrom(&next.TotalShares, shares); err != nil {
		return nil, nil, err
	}
	balance := new(uint256.Int).Sub(held, shares)

	j := e.newJournal()
	if err := e.shares.Debit(pool.ID, provider, shares); err != nil {
		return nil, nil, err
	}
	j.push("ledger_debit", func(context.Context) error {
		return e.shares.Credit(pool.ID, provider, shares)
	})

	if e.token != nil {
		if err := e.token.Burn(ctx, pool.ID, provider, shares); err != nil {
			return nil, nil, j.rollback(ctx, err)
		}
		j.push("token_burn", func(ctx context.Context) error {
			return e.token.Mint(ctx, pool.ID, provider, shares)
		})
	}

	if err := e.transfers.TransferOut(ctx, pool.AssetA, provider, amountA); err != nil {
		return nil, nil, j.rollback(ctx, err)
	}
	j.push("transfer_out_a", func(ctx context.Context) error {
		return e.transfers.TransferIn(ctx, pool.AssetA, provider, amountA)
	})
	if err := e.transfers.TransferOut(ctx, pool.AssetB, provider, amountB); err != nil {
		return nil, nil, j.rollback(ctx, err)
	}
	j.push("transfer_out_b", func(ctx context.Context) error {
		return e.transfers.TransferIn(ctx, pool.AssetB, provider, amountB)
	})

	ev := domain.LiquidityRemoved{
		Pool:     pool.ID,
		Provider: provider,
		AmountA:  amountA.Clone(),
		AmountB:  amountB.Clone(),
		Shares:   shares.Clone(),
	}
	change := domain.PoolChange{
		Pool:   next,
		Shares: []domain.ShareBalance{{Pool: pool.ID, Account: provider, Balance: *balance}},
	}
	if err := h.Commit(change, func(ctx context.Context) error { return e.emit(ctx, ev) }); err != nil {
		return nil, nil, j.rollback(ctx, err)
	}

	e.logger.Debug("Liquidity removed",
		slog.String("pool", pool.ID.Hex()),
		slog.String("provider", provider.Hex()),
		slog.String("shares", shares.Dec()))

	if assetA != pool.AssetA {
		return amountB, amountA, nil
	}
	return amountA, amountB, nil
}

// issueShares computes the shares minted for a canonical-order deposit.
func issueShares(pool *domain.Pool, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	if pool.TotalShares.IsZero() {
		product, err := safe.Mul(amountA, amountB)
		if err != nil {
			return nil, domain.Arith(err)
		}
		return safe.Sqrt(product), nil
	}

	byA, err := safe.MulDiv(amountA, &pool.TotalShares, &pool.ReserveA)
	if err != nil {
		return nil, domain.Arith(err)
	}
	byB, err := safe.MulDiv(amountB, &pool.TotalShares, &pool.ReserveB)
	if err != nil {
		return nil, domain.Arith(err)
	}
	return safe.Min(byA, byB), nil
}

func addTo(dst, amount *uint256.Int) error {
	sum, err := safe.Add(dst, amount)
	if err != nil {
		return domain.Arith(err)
	}
	dst.Set(sum)
	return nil
}

func subFrom(dst, amount *uint256.Int) error {
	diff, err := safe.Sub(dst, amount)
	if err != nil {
		return domain.Arith(err)
	}
	dst.Set(diff)
	return nil
}
