package postgres

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amounts travel as decimal strings: NUMERIC columns are selected with ::text
// and inserted through $n::numeric, so the full uint256 range round-trips.

func amountFromDec(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse amount %q: %w", s, err)
	}
	return v, nil
}
