package engine

import (
	"context"
	"log/slog"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
	"amm_go/internal/pricing"
)

// Swap sells amountIn of assetIn for assetOut and returns the amount paid to
// trader. It fails with ErrSlippageExceeded when the output is below minOut, and
// with ErrInsufficientOutputAmount when amountIn is too small to buy a single
// unit of assetOut (a zero quote with minOut of zero).
func (e *Engine) Swap(ctx context.Context, assetIn, assetOut domain.AssetID, amountIn, minOut *uint256.Int, trader domain.Account) (*uint256.Int, error) {
	if assetIn == assetOut {
		return nil, domain.ErrIdenticalAssets.Wrap(assetIn.Hex())
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, domain.ErrZeroAmount.Wrap("amount in")
	}
	if minOut == nil {
		minOut = new(uint256.Int)
	}

	h, err := e.registry.Lock(ctx, domain.PairIdentifier(assetIn, assetOut))
	if err != nil {
		return nil, err
	}
	defer h.Release()
	ctx = h.Context()

	pool := h.Pool()
	reserveIn, reserveOut := pool.Reserves(assetIn)

	amountOut, err := pricing.QuoteOutput(amountIn, reserveIn, reserveOut, e.fee)
	if err != nil {
		return nil, err
	}
	if amountOut.Lt(minOut) {
		return nil, domain.ErrSlippageExceeded.Wrapf("out %s < min %s", amountOut.Dec(), minOut.Dec())
	}
	if !amountOut.Lt(reserveOut) {
		return nil, domain.ErrInsufficientLiquidity.Wrapf("out %s, reserve %s", amountOut.Dec(), reserveOut.Dec())
	}
	if amountOut.IsZero() {
		return nil, domain.ErrInsufficientOutputAmount.Wrapf("amount in %s", amountIn.Dec())
	}

	next := pool
	inSide, outSide := &next.ReserveA, &next.ReserveB
	if assetIn != pool.AssetA {
		inSide, outSide = outSide, inSide
	}
	if err := addTo(inSide, amountIn); err != nil {
		return nil, err
	}
	if err := subFrom(outSide, amountOut); err != nil {
		return nil, err
	}

	j := e.newJournal()
	if err := e.transfers.TransferIn(ctx, assetIn, trader, amountIn); err != nil {
		return nil, err
	}
	j.push("transfer_in", func(ctx context.Context) error {
		return e.transfers.TransferOut(ctx, assetIn, trader, amountIn)
	})
	if err := e.transfers.TransferOut(ctx, assetOut, trader, amountOut); err != nil {
		return nil, j.rollback(ctx, err)
	}
	j.push("transfer_out", func(ctx context.Context) error {
		return e.transfers.TransferIn(ctx, assetOut, trader, amountOut)
	})

	ev := domain.TokensSwapped{
		Pool:      pool.ID,
		Trader:    trader,
		AssetIn:   assetIn,
		AmountIn:  amountIn.Clone(),
		AmountOut: amountOut.Clone(),
	}
	if err := h.Commit(domain.PoolChange{Pool: next}, func(ctx context.Context) error { return e.emit(ctx, ev) }); err != nil {
		return nil, j.rollback(ctx, err)
	}

	e.logger.Debug("Swap executed",
		slog.String("pool", pool.ID.Hex()),
		slog.String("trader", trader.Hex()),
		slog.String("in", amountIn.Dec()),
		slog.String("out", amountOut.Dec()))
	return amountOut, nil
}
