// Package pricekey converts between human prices and the fixed-point
// integer keys the order book uses internally. Keying the book on an
// integer instead of a float avoids the equality hazards a float64 key
// would introduce in the ordered map (internal/orderbook).
package pricekey

import "math"

// Precision is the number of implied decimal digits a Key encodes.
// A price of 3050.25 quote units becomes Key(30502500).
const Precision = 10000

// Key is an ordered integer representation of a price at Precision
// (ten-thousandths of a quote unit). Ordering on Key matches ordering on
// the underlying price.
type Key int64

// FromFloat rounds price to the nearest representable Key.
func FromFloat(price float64) Key {
	return Key(math.Round(price * Precision))
}

// Float converts a Key back to a floating-point price.
func (k Key) Float() float64 {
	return float64(k) / Precision
}

// Add returns k shifted by n ticks (1 tick = 1/Precision of a quote unit).
func (k Key) Add(ticks int64) Key {
	return k + Key(ticks)
}
