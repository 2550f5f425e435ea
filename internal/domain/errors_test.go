package domain

import (
	"errors"
	"fmt"
	"testing"

	errorsmod "cosmossdk.io/errors"

	"amm_go/pkg/safe"
)

func TestKindOf(t *testing.T) {
	t.Run("registered kinds", func(t *testing.T) {
		for _, k := range kinds {
			if got := KindOf(k.err); got != k.name {
				t.Errorf("KindOf(%v) = %q, want %q", k.err, got, k.name)
			}
		}
	})

	t.Run("wrapped kinds", func(t *testing.T) {
		err := fmt.Errorf("swap: %w", ErrSlippageExceeded.Wrapf("got %d, want %d", 1, 2))
		if got := KindOf(err); got != "SlippageExceeded" {
			t.Errorf("KindOf = %q, want SlippageExceeded", got)
		}
	})

	t.Run("burned is not plain insufficient liquidity", func(t *testing.T) {
		if errors.Is(ErrInsufficientLiquidityBurned, ErrInsufficientLiquidity) {
			t.Error("distinct kinds should not match")
		}
		if got := KindOf(ErrInsufficientLiquidityBurned.Wrap("dust")); got != "InsufficientLiquidityBurned" {
			t.Errorf("KindOf = %q", got)
		}
	})

	t.Run("unknown and nil", func(t *testing.T) {
		if got := KindOf(errors.New("boom")); got != "Internal" {
			t.Errorf("KindOf = %q, want Internal", got)
		}
		if got := KindOf(nil); got != "" {
			t.Errorf("KindOf(nil) = %q, want empty", got)
		}
	})
}

func TestErrorCodes(t *testing.T) {
	codespace, code, _ := errorsmod.ABCIInfo(ErrPoolNotFound.Wrap("x"), false)
	if codespace != Codespace {
		t.Errorf("codespace = %q, want %q", codespace, Codespace)
	}
	if code != 5 {
		t.Errorf("code = %d, want 5", code)
	}
}

func TestArith(t *testing.T) {
	if !errors.Is(Arith(safe.ErrOverflow), ErrOverflow) {
		t.Error("overflow should map to ErrOverflow")
	}
	if !errors.Is(Arith(safe.ErrUnderflow), ErrUnderflow) {
		t.Error("underflow should map to ErrUnderflow")
	}
	if Arith(nil) != nil {
		t.Error("nil should stay nil")
	}
	other := errors.New("other")
	if Arith(other) != other {
		t.Error("unrelated errors pass through")
	}
}
