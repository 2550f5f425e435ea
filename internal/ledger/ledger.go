// Package ledger implements fungible share accounting keyed by pool and account.
package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
	"amm_go/pkg/safe"
)

type key struct {
	pool    domain.PoolID
	account domain.Account
}

// Ledger tracks per-account share balances and the total supply of every pool.
// Sum(balances of pool) == TotalSupply(pool) holds after every call.
type Ledger struct {
	mu       sync.RWMutex
	balances map[key]*uint256.Int
	supply   map[domain.PoolID]*uint256.Int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[key]*uint256.Int),
		supply:   make(map[domain.PoolID]*uint256.Int),
	}
}

// BalanceOf returns a copy of the account's balance (zero if never credited).
func (l *Ledger) BalanceOf(pool domain.PoolID, account domain.Account) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[key{pool, account}]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the pool's total supply.
func (l *Ledger) TotalSupply(pool domain.PoolID) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if s, ok := l.supply[pool]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

// Credit adds amount to the account. The entry is created lazily.
func (l *Ledger) Credit(pool domain.PoolID, account domain.Account, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{pool, account}
	bal := l.balances[k]
	if bal == nil {
		bal = new(uint256.Int)
	}
	sup := l.supply[pool]
	if sup == nil {
		sup = new(uint256.Int)
	}

	newSup, err := safe.Add(sup, amount)
	if err != nil {
		return domain.Arith(err)
	}
	newBal, err := safe.Add(bal, amount)
	if err != nil {
		return domain.Arith(err)
	}

	l.balances[k] = newBal
	l.supply[pool] = newSup
	return nil
}

// Debit removes amount from the account. Fails with ErrInsufficientShares and
// leaves the ledger untouched if the balance is short.
func (l *Ledger) Debit(pool domain.PoolID, account domain.Account, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{pool, account}
	bal := l.balances[k]
	if bal == nil {
		bal = new(uint256.Int)
	}
	if bal.Lt(amount) {
		return domain.ErrInsufficientShares.Wrapf("balance %s, requested %s", bal.Dec(), amount.Dec())
	}

	sup := l.supply[pool]
	if sup == nil {
		sup = new(uint256.Int)
	}
	newSup, err := safe.Sub(sup, amount)
	if err != nil {
		return domain.Arith(err)
	}

	// Zero balances stay in the map.
	l.balances[k] = new(uint256.Int).Sub(bal, amount)
	l.supply[pool] = newSup
	return nil
}

// Set overwrites one balance and adjusts the supply. Used to restore snapshots.
func (l *Ledger) Set(pool domain.PoolID, account domain.Account, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{pool, account}
	sup := l.supply[pool]
	if sup == nil {
		sup = new(uint256.Int)
	}
	if old := l.balances[k]; old != nil {
		sup = new(uint256.Int).Sub(sup, old)
	}
	newSup, err := safe.Add(sup, amount)
	if err != nil {
		return domain.Arith(err)
	}

	l.balances[k] = amount.Clone()
	l.supply[pool] = newSup
	return nil
}

// Holders returns every ledger row of a pool, ordered by account.
func (l *Ledger) Holders(pool domain.PoolID) []domain.ShareBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var rows []domain.ShareBalance
	for k, b := range l.balances {
		if k.pool == pool {
			rows = append(rows, domain.ShareBalance{Pool: k.pool, Account: k.account, Balance: *b})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return bytes.Compare(rows[i].Account[:], rows[j].Account[:]) < 0
	})
	return rows
}

// SumBalances adds every balance of a pool. Used for invariant checks.
func (l *Ledger) SumBalances(pool domain.PoolID) (*uint256.Int, error) {
	sum := new(uint256.Int)
	for _, row := range l.Holders(pool) {
		var err error
		if sum, err = safe.Add(sum, &row.Balance); err != nil {
			return nil, domain.Arith(err)
		}
	}
	return sum, nil
}

// Token adapts a Ledger to the external domain.ShareToken interface. It lets a
// host without its own ownership-token system mirror the engine's ledger.
type Token struct {
	*Ledger
}

// NewToken returns a ShareToken backed by a fresh ledger.
func NewToken() *Token {
	return &Token{Ledger: New()}
}

// Mint credits the account.
func (t *Token) Mint(_ context.Context, pool domain.PoolID, account domain.Account, amount *uint256.Int) error {
	return t.Credit(pool, account, amount)
}

// Burn debits the account.
func (t *Token) Burn(_ context.Context, pool domain.PoolID, account domain.Account, amount *uint256.Int) error {
	return t.Debit(pool, account, amount)
}
