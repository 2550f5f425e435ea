package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"amm_go/internal/domain"
)

func amount(t *rapid.T, label string) uint64 {
	return rapid.Uint64Range(1, 1<<40).Draw(t, label)
}

func TestProperty_AddRemoveNeverOverpays(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.seed(t, amount(t, "seedX"), amount(t, "seedY"))

		x, y := amount(t, "x"), amount(t, "y")
		f.fund(t, bob, x, y)
		issued, err := f.engine.AddLiquidity(ctx, assetX, assetY, u(x), u(y), bob)
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			return
		}
		if err != nil {
			t.Fatalf("AddLiquidity: %v", err)
		}

		outX, outY, err := f.engine.RemoveLiquidity(ctx, assetX, assetY, issued, bob)
		if errors.Is(err, domain.ErrInsufficientLiquidityBurned) {
			return
		}
		if err != nil {
			t.Fatalf("RemoveLiquidity: %v", err)
		}
		if outX.Gt(u(x)) || outY.Gt(u(y)) {
			t.Fatalf("withdrew %s/%s after depositing %d/%d", outX.Dec(), outY.Dec(), x, y)
		}
		if err := f.engine.CheckInvariants(ctx); err != nil {
			t.Fatal(err)
		}
	})
}

func TestProperty_SwapKeepsProduct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.seed(t, amount(t, "seedX"), amount(t, "seedY"))

		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			in, out := assetX, assetY
			if rapid.Bool().Draw(t, "reverse") {
				in, out = out, in
			}
			amt := amount(t, "amountIn")
			if err := f.bank.Deposit(bob, in, u(amt)); err != nil {
				t.Fatal(err)
			}

			before := f.pool(t)
			kBefore := new(uint256.Int).Mul(&before.ReserveA, &before.ReserveB)

			quote, err := f.engine.GetAmountOut(ctx, in, out, u(amt))
			if err != nil {
				t.Fatalf("GetAmountOut: %v", err)
			}
			got, err := f.engine.Swap(ctx, in, out, u(amt), u(0), bob)
			if errors.Is(err, domain.ErrInsufficientOutputAmount) {
				if !quote.IsZero() {
					t.Fatalf("swap refused a non-zero quote %s", quote.Dec())
				}
				continue
			}
			if err != nil {
				t.Fatalf("Swap: %v", err)
			}
			if !got.Eq(quote) {
				t.Fatalf("swap paid %s, quote was %s", got.Dec(), quote.Dec())
			}

			after := f.pool(t)
			kAfter := new(uint256.Int).Mul(&after.ReserveA, &after.ReserveB)
			if kAfter.Lt(kBefore) {
				t.Fatalf("product fell from %s to %s", kBefore.Dec(), kAfter.Dec())
			}
		}
		if err := f.engine.CheckInvariants(ctx); err != nil {
			t.Fatal(err)
		}
	})
}

func TestProperty_FailedRemoveMutatesNothing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		issued := f.seed(t, amount(t, "seedX"), amount(t, "seedY"))

		extra := rapid.Uint64Range(1, 1<<20).Draw(t, "extra")
		ask := new(uint256.Int).Add(issued, u(extra))
		before := f.pool(t)

		_, _, err := f.engine.RemoveLiquidity(ctx, assetX, assetY, ask, alice)
		if !errors.Is(err, domain.ErrInsufficientShares) {
			t.Fatalf("expected ErrInsufficientShares, got %v", err)
		}
		if f.pool(t) != before {
			t.Fatal("pool changed after failed removal")
		}
		if !f.engine.shares.BalanceOf(before.ID, alice).Eq(issued) {
			t.Fatal("ledger changed after failed removal")
		}
	})
}
