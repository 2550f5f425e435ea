package domain

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"amm_go/pkg/safe"
)

// Codespace groups every engine error code.
const Codespace = "amm"

// Engine error kinds. All are terminal for the current call.
var (
	ErrIdenticalAssets             = errorsmod.Register(Codespace, 2, "identical assets")
	ErrInvalidAsset                = errorsmod.Register(Codespace, 3, "invalid asset")
	ErrPoolAlreadyExists           = errorsmod.Register(Codespace, 4, "pool already exists")
	ErrPoolNotFound                = errorsmod.Register(Codespace, 5, "pool not found")
	ErrInsufficientLiquidity       = errorsmod.Register(Codespace, 6, "insufficient liquidity")
	ErrInsufficientShares          = errorsmod.Register(Codespace, 7, "insufficient shares")
	ErrInsufficientLiquidityBurned = errorsmod.Register(Codespace, 8, "insufficient liquidity burned")
	ErrZeroAmount                  = errorsmod.Register(Codespace, 9, "zero amount")
	ErrSlippageExceeded            = errorsmod.Register(Codespace, 10, "slippage exceeded")
	ErrOverflow                    = errorsmod.Register(Codespace, 11, "overflow")
	ErrUnderflow                   = errorsmod.Register(Codespace, 12, "underflow")
	ErrReentrancy                  = errorsmod.Register(Codespace, 13, "reentrant call")
	ErrInsufficientOutputAmount    = errorsmod.Register(Codespace, 14, "insufficient output amount")
	ErrTransferFailed              = errorsmod.Register(Codespace, 15, "transfer failed")
	ErrInvalidFee                  = errorsmod.Register(Codespace, 16, "invalid fee")
)

var kinds = []struct {
	err  *errorsmod.Error
	name string
}{
	{ErrIdenticalAssets, "IdenticalAssets"},
	{ErrInvalidAsset, "InvalidAsset"},
	{ErrPoolAlreadyExists, "PoolAlreadyExists"},
	{ErrPoolNotFound, "PoolNotFound"},
	{ErrInsufficientLiquidityBurned, "InsufficientLiquidityBurned"},
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrInsufficientShares, "InsufficientShares"},
	{ErrZeroAmount, "ZeroAmount"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrOverflow, "Overflow"},
	{ErrUnderflow, "Underflow"},
	{ErrReentrancy, "Reentrancy"},
	{ErrInsufficientOutputAmount, "InsufficientOutputAmount"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrInvalidFee, "InvalidFee"},
}

// KindOf returns the error kind name for boundaries (API responses, CLI output).
// Unknown errors map to "Internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// Arith maps kernel arithmetic failures onto engine error kinds.
func Arith(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, safe.ErrOverflow):
		return ErrOverflow.Wrap(err.Error())
	case errors.Is(err, safe.ErrUnderflow):
		return ErrUnderflow.Wrap(err.Error())
	default:
		return err
	}
}
