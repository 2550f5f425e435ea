// Package custody provides an in-memory asset ledger that implements the
// engine's transfer collaborator. It backs the simulator, replay and tests.
package custody

import (
	"context"
	"slices"
	"sync"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
	"amm_go/pkg/safe"
)

type slot struct {
	account domain.Account
	asset   domain.AssetID
}

// Balance is a snapshot row.
type Balance struct {
	Account domain.Account `json:"account"`
	Asset   domain.AssetID `json:"asset"`
	Amount  *uint256.Int   `json:"amount"`
}

// Bank holds balances for every (account, asset) plus the pool custody account.
// Total supply per asset is conserved by transfers.
type Bank struct {
	mu       sync.Mutex
	balances map[slot]*uint256.Int
	vault    domain.Account
}

// NewBank creates a bank whose pooled assets are held by vault.
func NewBank(vault domain.Account) *Bank {
	return &Bank{
		balances: make(map[slot]*uint256.Int),
		vault:    vault,
	}
}

// Vault returns the custody account.
func (b *Bank) Vault() domain.Account {
	return b.vault
}

// Deposit mints amount of asset to account (paper funding). The vault can only
// be funded through TransferIn, so custody always matches pool reserves.
func (b *Bank) Deposit(account domain.Account, asset domain.AssetID, amount *uint256.Int) error {
	if account == b.vault {
		return domain.ErrTransferFailed.Wrap("cannot fund the custody account directly")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := slot{account, asset}
	next, err := safe.Add(b.get(s), amount)
	if err != nil {
		return domain.Arith(err)
	}
	b.balances[s] = next
	return nil
}

// BalanceOf returns a copy of the balance.
func (b *Bank) BalanceOf(account domain.Account, asset domain.AssetID) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.get(slot{account, asset}).Clone()
}

// Custody returns the amount of asset held by the vault.
func (b *Bank) Custody(asset domain.AssetID) *uint256.Int {
	return b.BalanceOf(b.vault, asset)
}

// TransferIn moves amount from an account into custody.
func (b *Bank) TransferIn(_ context.Context, asset domain.AssetID, from domain.Account, amount *uint256.Int) error {
	return b.move(asset, from, b.vault, amount)
}

// TransferOut moves amount from custody to an account.
func (b *Bank) TransferOut(_ context.Context, asset domain.AssetID, to domain.Account, amount *uint256.Int) error {
	return b.move(asset, b.vault, to, amount)
}

// Snapshot returns every non-zero balance ordered by account, then asset.
func (b *Bank) Snapshot() []Balance {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Balance, 0, len(b.balances))
	for s, amt := range b.balances {
		if amt.IsZero() {
			continue
		}
		out = append(out, Balance{Account: s.account, Asset: s.asset, Amount: amt.Clone()})
	}
	slices.SortFunc(out, func(x, y Balance) int {
		if c := x.Account.Cmp(y.Account); c != 0 {
			return c
		}
		return x.Asset.Cmp(y.Asset)
	})
	return out
}

// move rejects the vault as its own counterparty: a self-transfer moves nothing,
// and the engine would credit reserves it never received.
func (b *Bank) move(asset domain.AssetID, from, to domain.Account, amount *uint256.Int) error {
	if from == to {
		return domain.ErrTransferFailed.Wrapf("%s cannot transfer to itself", from.Hex())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src, dst := slot{from, asset}, slot{to, asset}
	srcBal := b.get(src)
	if srcBal.Lt(amount) {
		return domain.ErrTransferFailed.Wrapf("%s holds %s of %s, needs %s",
			from.Hex(), srcBal.Dec(), asset.Hex(), amount.Dec())
	}
	dstBal, err := safe.Add(b.get(dst), amount)
	if err != nil {
		return domain.ErrTransferFailed.Wrap(err.Error())
	}
	b.balances[src] = new(uint256.Int).Sub(srcBal, amount)
	b.balances[dst] = dstBal
	return nil
}

// get must be called with mu held.
func (b *Bank) get(s slot) *uint256.Int {
	if v, ok := b.balances[s]; ok {
		return v
	}
	return new(uint256.Int)
}
