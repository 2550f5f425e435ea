package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetID identifies a pooled asset. The zero value is the null asset.
type AssetID = common.Address

// Account identifies a liquidity provider or trader.
type Account = common.Address

// PoolID is the order-independent identifier of an asset pair.
type PoolID = common.Hash

// Pool is the market-making state of one trading pair.
// AssetA is always the bytewise smaller identifier.
type Pool struct {
	ID          PoolID
	AssetA      AssetID
	AssetB      AssetID
	ReserveA    uint256.Int
	ReserveB    uint256.Int
	TotalShares uint256.Int
	Exists      bool
}

// NewPool returns an empty pool for the pair in canonical order.
func NewPool(a, b AssetID) Pool {
	a, b = Canonical(a, b)
	return Pool{
		ID:     PairIdentifier(a, b),
		AssetA: a,
		AssetB: b,
		Exists: true,
	}
}

// IsEmpty reports whether the pool holds no reserves and no shares.
func (p Pool) IsEmpty() bool {
	return p.ReserveA.IsZero() && p.ReserveB.IsZero() && p.TotalShares.IsZero()
}

// Has reports whether asset is one side of the pool.
func (p Pool) Has(asset AssetID) bool {
	return asset == p.AssetA || asset == p.AssetB
}

// Reserves returns copies of (reserveIn, reserveOut) for a trade that sells assetIn.
func (p Pool) Reserves(assetIn AssetID) (in, out *uint256.Int) {
	if assetIn == p.AssetA {
		return p.ReserveA.Clone(), p.ReserveB.Clone()
	}
	return p.ReserveB.Clone(), p.ReserveA.Clone()
}

// ShareBalance is one row of the share ledger.
type ShareBalance struct {
	Pool    PoolID
	Account Account
	Balance uint256.Int
}

// PoolChange is the unit of persisted state written at the end of one operation:
// the pool row plus every share row the operation touched.
type PoolChange struct {
	Pool   Pool
	Shares []ShareBalance
}

// PoolView is the display form of a Pool, with amounts as decimal strings.
type PoolView struct {
	ID          string `json:"id"`
	AssetA      string `json:"asset_a"`
	AssetB      string `json:"asset_b"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	TotalShares string `json:"total_shares"`
}

// View returns the display form of p.
func (p Pool) View() PoolView {
	return PoolView{
		ID:          p.ID.Hex(),
		AssetA:      p.AssetA.Hex(),
		AssetB:      p.AssetB.Hex(),
		ReserveA:    p.ReserveA.Dec(),
		ReserveB:    p.ReserveB.Dec(),
		TotalShares: p.TotalShares.Dec(),
	}
}
