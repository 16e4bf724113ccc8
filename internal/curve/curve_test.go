package curve

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// tok scales a whole token count to fixed-point.
func tok(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), One)
}

func TestPriceScenario(t *testing.T) {
	// basePrice=0.0001, slope=0.00000001 in value units.
	c := Curve{
		BasePrice: uint256.NewInt(1e14),
		Slope:     uint256.NewInt(1e10),
	}

	tests := []struct {
		name string
		sold *uint256.Int
		want *uint256.Int
	}{
		{"zero supply", tok(0), uint256.NewInt(1e14)},       // 0.0001
		{"100k sold", tok(100_000), uint256.NewInt(11e14)},  // 0.0011
		{"1m sold", tok(1_000_000), uint256.NewInt(101e14)}, // 0.0101
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Price(tt.sold)
			require.NoError(t, err)
			require.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestPriceMonotone(t *testing.T) {
	c := Curve{BasePrice: uint256.NewInt(1e14), Slope: uint256.NewInt(1e10)}

	prev := new(uint256.Int)
	for _, n := range []uint64{0, 1, 10, 1_000, 50_000, 1_000_000, 750_000_000} {
		p, err := c.Price(tok(n))
		require.NoError(t, err)
		require.False(t, p.Lt(prev), "price decreased at supply %d", n)
		prev = p
	}
}

func TestCostZeroIsZero(t *testing.T) {
	tests := []struct {
		base, slope uint64
	}{
		{1e14, 1e10},
		{1, 1},
		{1e18, 0},
		{0, 1e18},
	}
	for _, tt := range tests {
		c := Curve{BasePrice: uint256.NewInt(tt.base), Slope: uint256.NewInt(tt.slope)}
		got, err := c.Cost(new(uint256.Int))
		require.NoError(t, err)
		require.True(t, got.IsZero())
	}
}

func TestCostOverflowFailsLoudly(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	c := Curve{BasePrice: max, Slope: max}

	_, err := c.Cost(tok(2))
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestPurchaseRoundTripBound(t *testing.T) {
	c := Curve{BasePrice: uint256.NewInt(1e14), Slope: uint256.NewInt(1e10)}

	tests := []struct {
		name    string
		sold    *uint256.Int
		valueIn *uint256.Int
	}{
		{"fresh market small buy", tok(0), uint256.NewInt(1e15)},
		{"fresh market unit buy", tok(0), uint256.NewInt(1e18)},
		{"deep market", tok(500_000), uint256.NewInt(3e18)},
		{"large buy", tok(1_000_000), new(uint256.Int).Mul(uint256.NewInt(250), One)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Purchase(tt.sold, tt.valueIn, nil)
			require.NoError(t, err)

			delta, err := c.costDelta(tt.sold, out)
			require.NoError(t, err)

			// Lower-bound semantics: never charge less than the curve value.
			require.False(t, delta.Gt(tt.valueIn), "purchase overshot value in")

			// The residual is bounded by one precision-floor step at the
			// post-trade price.
			final := new(uint256.Int).Add(tt.sold, out)
			final.Add(final, DefaultPrecisionFloor)
			price, err := c.Price(final)
			require.NoError(t, err)
			maxErr := new(uint256.Int).Mul(price, DefaultPrecisionFloor)
			maxErr.Div(maxErr, One)
			maxErr.Mul(maxErr, uint256.NewInt(2))

			diff := new(uint256.Int).Sub(tt.valueIn, delta)
			require.False(t, diff.Gt(maxErr),
				"round-trip residual %s exceeds bound %s", diff, maxErr)
		})
	}
}

func TestPurchaseTerminatesAtExtremeBounds(t *testing.T) {
	// A 1-wei base price pushes the initial upper bound past 2^255, where a
	// naive low+high midpoint wraps mod 2^256 and the search stops narrowing.
	c := Curve{BasePrice: uint256.NewInt(1), Slope: new(uint256.Int)}
	valueIn := new(uint256.Int).Lsh(uint256.NewInt(1), 196)

	type result struct {
		out *uint256.Int
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Purchase(new(uint256.Int), valueIn, nil)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		// Flat curve at 1 wei: the exact inverse is valueIn*1e18 and the
		// search returns the lower bound within the precision floor.
		exact := new(uint256.Int).Mul(valueIn, One)
		require.False(t, res.out.Gt(exact), "purchase overshot the exact inverse")
		diff := new(uint256.Int).Sub(exact, res.out)
		require.False(t, diff.Gt(DefaultPrecisionFloor),
			"result %s not within the precision floor of %s", res.out, exact)
	case <-time.After(10 * time.Second):
		t.Fatal("purchase did not terminate")
	}
}

func TestPurchaseZeroValue(t *testing.T) {
	c := Curve{BasePrice: uint256.NewInt(1e14), Slope: uint256.NewInt(1e10)}
	out, err := c.Purchase(tok(10), new(uint256.Int), nil)
	require.NoError(t, err)
	require.True(t, out.IsZero())
}

func TestPurchaseZeroBasePriceRejected(t *testing.T) {
	c := Curve{BasePrice: new(uint256.Int), Slope: uint256.NewInt(1e10)}
	_, err := c.Purchase(tok(0), uint256.NewInt(1e18), nil)
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestSaleExactInverse(t *testing.T) {
	c := Curve{BasePrice: uint256.NewInt(1e14), Slope: uint256.NewInt(1e10)}

	tests := []struct {
		sold, tokensIn uint64
	}{
		{100, 100},
		{100_000, 1},
		{100_000, 99_999},
		{1_000_000, 500_000},
	}
	for _, tt := range tests {
		sold := tok(tt.sold)
		in := tok(tt.tokensIn)

		got, err := c.Sale(sold, in)
		require.NoError(t, err)

		before, err := c.Cost(sold)
		require.NoError(t, err)
		after, err := c.Cost(new(uint256.Int).Sub(sold, in))
		require.NoError(t, err)
		want := before.Sub(before, after)

		require.Equal(t, want.String(), got.String())
	}
}

func TestSaleExceedingSupplyFails(t *testing.T) {
	c := Curve{BasePrice: uint256.NewInt(1e14), Slope: uint256.NewInt(1e10)}
	_, err := c.Sale(tok(10), tok(11))
	require.ErrorIs(t, err, domain.ErrInsufficientTokensHeld)
}

func TestAveragePrice(t *testing.T) {
	c := Curve{BasePrice: uint256.NewInt(1e14), Slope: uint256.NewInt(1e10)}

	// Zero tokens in: defined as the spot price.
	spot, err := c.Price(tok(42))
	require.NoError(t, err)
	avg, err := c.AveragePrice(tok(42), new(uint256.Int))
	require.NoError(t, err)
	require.Equal(t, spot.String(), avg.String())

	// Buying across a rising curve averages between entry and exit price.
	entry, err := c.Price(tok(1000))
	require.NoError(t, err)
	exit, err := c.Price(tok(2000))
	require.NoError(t, err)
	avg, err = c.AveragePrice(tok(1000), tok(1000))
	require.NoError(t, err)
	require.True(t, avg.Gt(entry) || avg.Eq(entry))
	require.True(t, avg.Lt(exit) || avg.Eq(exit))
}
