// Package engine executes liquidity and swap state transitions against the
// pool registry and share ledger, and sequences commands for hosts that want a
// single-threaded, replayable pipeline.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"amm_go/internal/domain"
	"amm_go/internal/ledger"
	"amm_go/internal/pricing"
	"amm_go/internal/registry"
)

// pricePlaces is the precision of SpotPrice.
const pricePlaces = 18

// Engine is the liquidity and swap state machine. Every mutating operation runs
// under its pool's lock and either commits completely or not at all.
type Engine struct {
	registry  *registry.Registry
	shares    *ledger.Ledger
	transfers domain.TransferService
	token     domain.ShareToken
	sink      domain.EventSink
	fee       pricing.Fee
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithShareToken mirrors share changes to an external ownership-token ledger.
func WithShareToken(t domain.ShareToken) Option {
	return func(e *Engine) { e.token = t }
}

// WithEventSink sets the sink for liquidity and swap notifications.
func WithEventSink(s domain.EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithFee overrides the swap fee (default 0.3%).
func WithFee(f pricing.Fee) Option {
	return func(e *Engine) { e.fee = f }
}

// WithLedger uses an existing share ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) { e.shares = l }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over reg that moves assets through transfers.
func New(reg *registry.Registry, transfers domain.TransferService, opts ...Option) (*Engine, error) {
	e := &Engine{
		registry:  reg,
		transfers: transfers,
		fee:       pricing.DefaultFee,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.shares == nil {
		e.shares = ledger.New()
	}
	if err := e.fee.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || transfers == nil {
		return nil, errors.New("engine: registry and transfer service are required")
	}
	return e, nil
}

// Registry exposes the pool table.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Fee returns the configured swap fee.
func (e *Engine) Fee() pricing.Fee {
	return e.fee
}

// CreatePool registers a new pair.
func (e *Engine) CreatePool(ctx context.Context, a, b domain.AssetID) (domain.PoolID, error) {
	return e.registry.CreatePool(ctx, a, b)
}

// GetPool returns a snapshot of a pool.
func (e *Engine) GetPool(ctx context.Context, id domain.PoolID) (domain.Pool, error) {
	return e.registry.GetPool(ctx, id)
}

// Pools returns snapshots of all pools.
func (e *Engine) Pools(ctx context.Context) ([]domain.Pool, error) {
	return e.registry.Pools(ctx)
}

// SharesOf returns the account's share balance in the pool of (a, b).
func (e *Engine) SharesOf(ctx context.Context, a, b domain.AssetID, account domain.Account) (*uint256.Int, error) {
	h, err := e.registry.Lock(ctx, domain.PairIdentifier(a, b))
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return e.shares.BalanceOf(h.Pool().ID, account), nil
}

// Holders returns the share ledger rows of a pool.
func (e *Engine) Holders(ctx context.Context, id domain.PoolID) ([]domain.ShareBalance, error) {
	h, err := e.registry.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return e.shares.Holders(id), nil
}

// GetAmountOut quotes a swap without executing it. It returns zero when the
// pool does not exist.
func (e *Engine) GetAmountOut(ctx context.Context, assetIn, assetOut domain.AssetID, amountIn *uint256.Int) (*uint256.Int, error) {
	if assetIn == assetOut {
		return new(uint256.Int), nil
	}
	pool, err := e.registry.GetPool(ctx, domain.PairIdentifier(assetIn, assetOut))
	if errors.Is(err, domain.ErrPoolNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := pool.Reserves(assetIn)
	return pricing.QuoteOutput(amountIn, reserveIn, reserveOut, e.fee)
}

// SpotPrice returns the marginal price of assetIn in units of assetOut.
func (e *Engine) SpotPrice(ctx context.Context, assetIn, assetOut domain.AssetID) (decimal.Decimal, error) {
	if assetIn == assetOut {
		return decimal.Zero, domain.ErrIdenticalAssets.Wrap(assetIn.Hex())
	}
	pool, err := e.registry.GetPool(ctx, domain.PairIdentifier(assetIn, assetOut))
	if err != nil {
		return decimal.Zero, err
	}
	reserveIn, reserveOut := pool.Reserves(assetIn)
	return pricing.SpotPrice(reserveIn, reserveOut, pricePlaces), nil
}

// Restore loads persisted pools and share rows into an empty engine and checks
// the accounting invariants.
func (e *Engine) Restore(ctx context.Context, pools []domain.Pool, shares []domain.ShareBalance) error {
	if err := e.registry.Restore(pools); err != nil {
		return err
	}
	for _, row := range shares {
		if err := e.shares.Set(row.Pool, row.Account, &row.Balance); err != nil {
			return err
		}
	}
	return e.CheckInvariants(ctx)
}

func (e *Engine) newJournal() *journal {
	return &journal{logger: e.logger}
}

func (e *Engine) emit(ctx context.Context, n domain.Notification) error {
	if e.sink == nil {
		return nil
	}
	return e.sink.Emit(ctx, n)
}
