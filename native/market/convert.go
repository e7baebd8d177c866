package market

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Fixed-point conventions. Prices arrive from the oracles scaled by 10^8;
// native currency amounts use the 18 decimal wei convention; USD amounts are
// plain integers.
const (
	PriceDecimals    = 8
	CurrencyDecimals = 18
)

var (
	// usdScale is 10^(18+8), the combined rescale applied when turning a plain
	// USD amount into an 18dp currency amount against an 8dp price.
	usdScale    = new(big.Int).Exp(big.NewInt(10), big.NewInt(CurrencyDecimals+PriceDecimals), nil)
	usdScale256 = uint256.MustFromBig(usdScale)
)

// CurrencyToUSD converts an 18dp currency amount into USD using an 8dp price
// quote. The result carries 26 fractional decimal digits of scale; rescaling
// to a display convention is the caller's concern.
func CurrencyToUSD(amount, price *big.Int) (*big.Int, error) {
	if err := checkOperands(amount, price); err != nil {
		return nil, err
	}
	if a, overflow := uint256.FromBig(amount); !overflow {
		if p, overflow := uint256.FromBig(price); !overflow {
			product, overflow := new(uint256.Int).MulOverflow(a, p)
			if !overflow {
				return product.ToBig(), nil
			}
		}
	}
	return new(big.Int).Mul(amount, price), nil
}

// USDToCurrency converts a plain USD amount into an 18dp currency amount
// using an 8dp price quote. Division truncates toward zero, matching the
// integer-division bias of the on-chain implementation.
func USDToCurrency(usdAmount, price *big.Int) (*big.Int, error) {
	if err := checkOperands(usdAmount, price); err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if u, overflow := uint256.FromBig(usdAmount); !overflow {
		if p, overflow := uint256.FromBig(price); !overflow {
			quotient, overflow := new(uint256.Int).MulDivOverflow(u, usdScale256, p)
			if !overflow {
				return quotient.ToBig(), nil
			}
		}
	}
	wide := new(big.Int).Mul(usdAmount, usdScale)
	return wide.Quo(wide, price), nil
}

// CurrencyAToCurrencyB converts an 18dp amount of currency A into currency B,
// composing A→USD and USD→B while keeping the full intermediate precision.
// The 10^8 price scales cancel, so a single truncating division remains and
// rounding error is not compounded.
func CurrencyAToCurrencyB(amount, priceA, priceB *big.Int) (*big.Int, error) {
	if err := checkOperands(amount, priceA); err != nil {
		return nil, err
	}
	if priceB == nil || priceB.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	if priceB.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if a, overflow := uint256.FromBig(amount); !overflow {
		if pa, overflow := uint256.FromBig(priceA); !overflow {
			if pb, overflow := uint256.FromBig(priceB); !overflow {
				quotient, overflow := new(uint256.Int).MulDivOverflow(a, pa, pb)
				if !overflow {
					return quotient.ToBig(), nil
				}
			}
		}
	}
	wide := new(big.Int).Mul(amount, priceA)
	return wide.Quo(wide, priceB), nil
}

func checkOperands(amount, price *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if price == nil || price.Sign() < 0 {
		return ErrInvalidPrice
	}
	return nil
}
