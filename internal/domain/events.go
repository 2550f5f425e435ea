package domain

import "github.com/holiman/uint256"

// Notification kinds.
const (
	KindPoolCreated      = "pool_created"
	KindLiquidityAdded   = "liquidity_added"
	KindLiquidityRemoved = "liquidity_removed"
	KindTokensSwapped    = "tokens_swapped"
)

// Notification is a structured engine event.
type Notification interface {
	Kind() string
	PoolID() PoolID
}

// PoolCreated is emitted once per registered pair.
type PoolCreated struct {
	AssetA AssetID `json:"asset_a"`
	AssetB AssetID `json:"asset_b"`
	Pool   PoolID  `json:"pool_id"`
}

func (e PoolCreated) Kind() string   { return KindPoolCreated }
func (e PoolCreated) PoolID() PoolID { return e.Pool }

// LiquidityAdded reports a deposit. Amounts are in canonical pool order.
type LiquidityAdded struct {
	Pool     PoolID       `json:"pool_id"`
	Provider Account      `json:"provider"`
	AmountA  *uint256.Int `json:"amount_a"`
	AmountB  *uint256.Int `json:"amount_b"`
	Issued   *uint256.Int `json:"issued"`
}

func (e LiquidityAdded) Kind() string   { return KindLiquidityAdded }
func (e LiquidityAdded) PoolID() PoolID { return e.Pool }

// LiquidityRemoved reports a withdrawal. Amounts are in canonical pool order.
type LiquidityRemoved struct {
	Pool     PoolID       `json:"pool_id"`
	Provider Account      `json:"provider"`
	AmountA  *uint256.Int `json:"amount_a"`
	AmountB  *uint256.Int `json:"amount_b"`
	Shares   *uint256.Int `json:"shares"`
}

func (e LiquidityRemoved) Kind() string   { return KindLiquidityRemoved }
func (e LiquidityRemoved) PoolID() PoolID { return e.Pool }

// TokensSwapped reports an executed swap.
type TokensSwapped struct {
	Pool      PoolID       `json:"pool_id"`
	Trader    Account      `json:"trader"`
	AssetIn   AssetID      `json:"asset_in"`
	AmountIn  *uint256.Int `json:"amount_in"`
	AmountOut *uint256.Int `json:"amount_out"`
}

func (e TokensSwapped) Kind() string   { return KindTokensSwapped }
func (e TokensSwapped) PoolID() PoolID { return e.Pool }
