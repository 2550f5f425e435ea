// Package event defines the sequenced commands fed to the engine's sequencer
// and their wire encoding for the write-ahead log.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
)

// Type names a command kind. It is stored alongside every WAL row.
type Type string

const (
	TypeDeposit         Type = "deposit"
	TypeCreatePool      Type = "create_pool"
	TypeAddLiquidity    Type = "add_liquidity"
	TypeRemoveLiquidity Type = "remove_liquidity"
	TypeSwap            Type = "swap"
)

// Command is one sequenced instruction. Sequence numbers start at 1 and must
// arrive without gaps.
type Command interface {
	GetSeq() uint64
	SetSeq(seq uint64)
	GetType() Type
}

// BaseCommand carries the sequencing fields shared by every command.
type BaseCommand struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // unix millis, informational
}

func (b *BaseCommand) GetSeq() uint64 { return b.Seq }

// SetSeq assigns the sequence number. Only the sequencer's intake calls it.
func (b *BaseCommand) SetSeq(seq uint64) { b.Seq = seq }

// DepositCommand funds an account on the paper custody ledger.
type DepositCommand struct {
	BaseCommand
	Account domain.Account `json:"account"`
	Asset   domain.AssetID `json:"asset"`
	Amount  *uint256.Int   `json:"amount"`
}

func (*DepositCommand) GetType() Type { return TypeDeposit }

// CreatePoolCommand registers a pair.
type CreatePoolCommand struct {
	BaseCommand
	AssetA domain.AssetID `json:"asset_a"`
	AssetB domain.AssetID `json:"asset_b"`
}

func (*CreatePoolCommand) GetType() Type { return TypeCreatePool }

// AddLiquidityCommand deposits both sides of a pair.
type AddLiquidityCommand struct {
	BaseCommand
	AssetA   domain.AssetID `json:"asset_a"`
	AssetB   domain.AssetID `json:"asset_b"`
	AmountA  *uint256.Int   `json:"amount_a"`
	AmountB  *uint256.Int   `json:"amount_b"`
	Provider domain.Account `json:"provider"`
}

func (*AddLiquidityCommand) GetType() Type { return TypeAddLiquidity }

// RemoveLiquidityCommand burns shares for a pro-rata withdrawal.
type RemoveLiquidityCommand struct {
	BaseCommand
	AssetA   domain.AssetID `json:"asset_a"`
	AssetB   domain.AssetID `json:"asset_b"`
	Shares   *uint256.Int   `json:"shares"`
	Provider domain.Account `json:"provider"`
}

func (*RemoveLiquidityCommand) GetType() Type { return TypeRemoveLiquidity }

// SwapCommand trades AmountIn of AssetIn for AssetOut.
type SwapCommand struct {
	BaseCommand
	AssetIn  domain.AssetID `json:"asset_in"`
	AssetOut domain.AssetID `json:"asset_out"`
	AmountIn *uint256.Int   `json:"amount_in"`
	MinOut   *uint256.Int   `json:"min_out"`
	Trader   domain.Account `json:"trader"`
}

func (*SwapCommand) GetType() Type { return TypeSwap }

// Result reports the outcome of one command. Amounts depend on the type:
// the issued shares, the two withdrawn amounts, or the swap output.
type Result struct {
	Seq     uint64         `json:"seq"`
	Type    Type           `json:"type"`
	Pool    domain.PoolID  `json:"pool_id,omitempty"`
	Amounts []*uint256.Int `json:"amounts,omitempty"`
	Err     error          `json:"-"`
}

// Kind returns the error kind of a failed result, or "".
func (r Result) Kind() string {
	return domain.KindOf(r.Err)
}

// New returns an empty command of the given type.
func New(t Type) (Command, error) {
	switch t {
	case TypeDeposit:
		return &DepositCommand{}, nil
	case TypeCreatePool:
		return &CreatePoolCommand{}, nil
	case TypeAddLiquidity:
		return &AddLiquidityCommand{}, nil
	case TypeRemoveLiquidity:
		return &RemoveLiquidityCommand{}, nil
	case TypeSwap:
		return &SwapCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", t)
	}
}

// Decode rebuilds a command from its WAL payload.
func Decode(t Type, payload []byte) (Command, error) {
	cmd, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return cmd, nil
}
