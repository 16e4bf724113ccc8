// Package curve implements the linear bonding-curve pricing math: spot price,
// closed-form integral cost, numeric purchase inversion, and exact sale
// computation. All quantities are non-negative fixed-point integers scaled by
// 1e18, held in 256-bit words so the quadratic cost term has headroom.
// Arithmetic is checked; overflow is reported, never wrapped.
package curve

import (
	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// One is the fixed-point unit (1e18).
var One = uint256.NewInt(1e18)

// twoUnitsSquared is 2 * 1e36, the divisor of the quadratic cost term.
var twoUnitsSquared = func() *uint256.Int {
	v := new(uint256.Int).Mul(One, One)
	return v.Mul(v, uint256.NewInt(2))
}()

// DefaultPrecisionFloor is the purchase-inversion stop width: 0.001 token.
var DefaultPrecisionFloor = uint256.NewInt(1e15)

// Curve holds the immutable coefficients of one market's price function.
type Curve struct {
	BasePrice *uint256.Int // value per token at zero supply
	Slope     *uint256.Int // value-per-token increase per token sold
}

// New builds a Curve from market parameters.
func New(params domain.CurveParameters) Curve {
	return Curve{BasePrice: params.BasePrice, Slope: params.Slope}
}

// Price returns the spot price at the given supply:
//
//	price(sold) = basePrice + slope*sold/1e18
//
// Non-decreasing in sold; the economic model depends on that monotonicity.
func (c Curve) Price(sold *uint256.Int) (*uint256.Int, error) {
	term := new(uint256.Int)
	if _, overflow := term.MulOverflow(c.Slope, sold); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	term.Div(term, One)
	if _, overflow := term.AddOverflow(term, c.BasePrice); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return term, nil
}

// Cost returns the definite integral of Price from 0 to tokens:
//
//	cost(tokens) = basePrice*tokens/1e18 + slope*tokens^2/(2*1e36)
//
// Cost(0) is always zero.
func (c Curve) Cost(tokens *uint256.Int) (*uint256.Int, error) {
	linear := new(uint256.Int)
	if _, overflow := linear.MulOverflow(c.BasePrice, tokens); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	linear.Div(linear, One)

	quad := new(uint256.Int)
	if _, overflow := quad.MulOverflow(c.Slope, tokens); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	if _, overflow := quad.MulOverflow(quad, tokens); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	quad.Div(quad, twoUnitsSquared)

	if _, overflow := linear.AddOverflow(linear, quad); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return linear, nil
}

// costDelta returns Cost(sold+extra) - Cost(sold).
func (c Curve) costDelta(sold, extra *uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	if _, overflow := total.AddOverflow(sold, extra); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	after, err := c.Cost(total)
	if err != nil {
		return nil, err
	}
	before, err := c.Cost(sold)
	if err != nil {
		return nil, err
	}
	return after.Sub(after, before), nil
}

// Purchase solves cost(sold+out) - cost(sold) = valueIn for out.
//
// The quadratic term rules out a closed-form inverse, so the result comes
// from a monotone binary search over [0, valueIn*1e18/basePrice]: because
// price never drops below basePrice, that bound over-estimates the tokens
// any value can buy. The search narrows until the interval width is at most
// floor (DefaultPrecisionFloor when nil) and returns the lower bound, so the
// buyer never receives tokens worth more than the value paid. A cost
// overflow at a midpoint counts as too high.
func (c Curve) Purchase(sold, valueIn, floor *uint256.Int) (*uint256.Int, error) {
	// A zero floor would let the interval stop narrowing at width 1.
	if floor == nil || floor.IsZero() {
		floor = DefaultPrecisionFloor
	}
	if valueIn.IsZero() {
		return new(uint256.Int), nil
	}
	if c.BasePrice.IsZero() {
		// A zero base price has no cheap over-estimate; reject at the
		// factory boundary rather than search an unbounded interval.
		return nil, domain.ErrArithmeticOverflow
	}

	high := new(uint256.Int)
	if _, overflow := high.MulOverflow(valueIn, One); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	high.Div(high, c.BasePrice)

	low := new(uint256.Int)
	width := new(uint256.Int)
	mid := new(uint256.Int)
	for width.Sub(high, low); width.Gt(floor); width.Sub(high, low) {
		// low + width/2, never low+high: the naive sum wraps once the
		// bound crosses 2^255 and the search stops narrowing.
		mid.Rsh(width, 1)
		mid.Add(low, mid)

		delta, err := c.costDelta(sold, mid)
		switch {
		case err != nil:
			// Out of representable range; the answer lies below.
			high.Set(mid)
		case delta.Gt(valueIn):
			high.Set(mid)
		default:
			low.Set(mid)
		}
	}
	return low, nil
}

// Sale returns the exact value released by selling tokensIn at the given
// supply: cost(sold) - cost(sold-tokensIn). No approximation; this direction
// is closed-form because tokensIn is already the integration bound.
func (c Curve) Sale(sold, tokensIn *uint256.Int) (*uint256.Int, error) {
	if tokensIn.Gt(sold) {
		return nil, domain.ErrInsufficientTokensHeld
	}
	before, err := c.Cost(sold)
	if err != nil {
		return nil, err
	}
	remaining := new(uint256.Int).Sub(sold, tokensIn)
	after, err := c.Cost(remaining)
	if err != nil {
		return nil, err
	}
	return before.Sub(before, after), nil
}

// AveragePrice returns the effective per-token price of buying tokensIn at
// the given supply. Defined as the spot price when tokensIn is zero.
func (c Curve) AveragePrice(sold, tokensIn *uint256.Int) (*uint256.Int, error) {
	if tokensIn.IsZero() {
		return c.Price(sold)
	}
	delta, err := c.costDelta(sold, tokensIn)
	if err != nil {
		return nil, err
	}
	if _, overflow := delta.MulOverflow(delta, One); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return delta.Div(delta, tokensIn), nil
}
