// Package pricing holds the constant-product quote and display-price helpers.
package pricing

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"amm_go/internal/domain"
	"amm_go/pkg/safe"
)

// Fee is a rational fee rate Num/Den taken from the input leg.
type Fee struct {
	Num uint64 `yaml:"num"`
	Den uint64 `yaml:"den"`
}

// DefaultFee is 0.3%.
var DefaultFee = Fee{Num: 3, Den: 1000}

// Validate checks 0 <= Num < Den.
func (f Fee) Validate() error {
	if f.Den == 0 || f.Num >= f.Den {
		return domain.ErrInvalidFee.Wrapf("%d/%d", f.Num, f.Den)
	}
	return nil
}

// String formats the fee as a percentage.
func (f Fee) String() string {
	if f.Den == 0 {
		return "invalid"
	}
	pct := decimal.NewFromUint64(f.Num).Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromUint64(f.Den), 4)
	return fmt.Sprintf("%s%%", pct.String())
}

// QuoteOutput prices a trade of amountIn against the reserves:
//
//	afterFee  = amountIn * (Den - Num)
//	amountOut = afterFee * reserveOut / (reserveIn * Den + afterFee)
//
// It returns zero if either reserve is empty. The fee is removed before pricing,
// so reserveIn*reserveOut never decreases across a trade.
func QuoteOutput(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return new(uint256.Int), nil
	}

	afterFee, err := safe.Mul(amountIn, uint256.NewInt(fee.Den-fee.Num))
	if err != nil {
		return nil, domain.Arith(err)
	}
	num, err := safe.Mul(afterFee, reserveOut)
	if err != nil {
		return nil, domain.Arith(err)
	}
	scaledIn, err := safe.Mul(reserveIn, uint256.NewInt(fee.Den))
	if err != nil {
		return nil, domain.Arith(err)
	}
	den, err := safe.Add(scaledIn, afterFee)
	if err != nil {
		return nil, domain.Arith(err)
	}
	// den > 0 because reserveIn > 0 and Den > 0.
	return new(uint256.Int).Div(num, den), nil
}

// SpotPrice returns reserveOut/reserveIn rounded to places decimals, or zero if
// reserveIn is empty.
func SpotPrice(reserveIn, reserveOut *uint256.Int, places int32) decimal.Decimal {
	if reserveIn.IsZero() {
		return decimal.Zero
	}
	in := decimal.NewFromBigInt(reserveIn.ToBig(), 0)
	out := decimal.NewFromBigInt(reserveOut.ToBig(), 0)
	return out.DivRound(in, places)
}

// ToDecimal converts a base-unit amount to a decimal with the given precision,
// e.g. ToDecimal(1_500_000, 6) == 1.5.
func ToDecimal(amount *uint256.Int, precision int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount.ToBig(), -precision)
}
