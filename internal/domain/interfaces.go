package domain

import (
	"context"

	"github.com/holiman/uint256"
)

// Collaborators below are called while the engine holds a pool. The ctx they
// receive marks that pool as held: any call back into the engine must pass that
// ctx (or one derived from it). A call made with a fresh context, such as
// context.Background(), waits for the held pool and never returns.

// TransferService moves assets between accounts and pool custody.
// A returned error means nothing moved. Calls back into the engine must use ctx.
type TransferService interface {
	TransferIn(ctx context.Context, asset AssetID, from Account, amount *uint256.Int) error
	TransferOut(ctx context.Context, asset AssetID, to Account, amount *uint256.Int) error
}

// ShareToken is the external ownership-token ledger. It must mirror the engine's
// internal share ledger exactly. Calls back into the engine must use ctx.
type ShareToken interface {
	Mint(ctx context.Context, pool PoolID, account Account, amount *uint256.Int) error
	Burn(ctx context.Context, pool PoolID, account Account, amount *uint256.Int) error
}

// EventSink receives structured notifications. A returned error aborts the
// operation that produced the notification. Calls back into the engine must use
// ctx.
type EventSink interface {
	Emit(ctx context.Context, n Notification) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, n Notification) error

// Emit calls f.
func (f EventSinkFunc) Emit(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
