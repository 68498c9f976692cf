// Package fixedpoint implements deterministic unsigned fixed-point scalars
// for price and quantity values. Both FixedPrice and FixedQty are backed by
// a uint64 interpreted with 32 fractional bits (Q32.32); there is no float
// anywhere on the hot path. Values are parsed from and formatted to decimal
// strings; arithmetic saturates on overflow rather than wrapping or
// panicking, since an overflow here is a bug condition that must be logged
// and survived, not a crash.
package fixedpoint

import (
	"errors"
	"math"
	"math/big"
	"math/bits"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
)

// FractionalBits is the number of bits below the binary point.
const FractionalBits = 32

const scale = uint64(1) << FractionalBits

// ErrDivideByZero is returned by Div when the divisor is zero. Callers in
// analytics substitute zero and log; it must never panic.
var ErrDivideByZero = errors.New("fixedpoint: division by zero")

// ErrInvalidDecimal is returned when a string cannot be parsed as a
// non-negative decimal number.
var ErrInvalidDecimal = errors.New("fixedpoint: invalid decimal string")

var overflowLog = log.NewSubLogger("FixedPoint")

// Value is the shared Q32.32 unsigned representation. FixedPrice and
// FixedQty are distinct named types over it so the compiler catches
// price/quantity mix-ups at call sites.
type Value uint64

// FixedPrice is a fixed-point price scalar.
type FixedPrice Value

// FixedQty is a fixed-point quantity scalar.
type FixedQty Value

// Zero values, handy for comparisons.
const (
	ZeroPrice FixedPrice = 0
	ZeroQty   FixedQty   = 0
)

// PriceFromInt constructs a FixedPrice from an integer number of whole units.
func PriceFromInt(i uint64) FixedPrice {
	return FixedPrice(saturatingMul(i, scale))
}

// QtyFromInt constructs a FixedQty from an integer number of whole units.
func QtyFromInt(i uint64) FixedQty {
	return FixedQty(saturatingMul(i, scale))
}

// ParsePrice parses a decimal string (e.g. "19455.19000000") into a
// FixedPrice. External floating point values must never reach this
// boundary; only strings (or integers, via PriceFromInt) are accepted.
func ParsePrice(s string) (FixedPrice, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	return FixedPrice(v), nil
}

// ParseQty parses a decimal string into a FixedQty.
func ParseQty(s string) (FixedQty, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	return FixedQty(v), nil
}

func parseDecimal(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidDecimal
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidDecimal
	}
	if d.Sign() < 0 {
		return 0, ErrInvalidDecimal
	}
	scaled := d.Mul(decimal.NewFromInt(int64(scale)))
	if !scaled.IsInteger() {
		// Truncate rather than round: decimal fractions finer than
		// 2^-32 are not representable; drop them deterministically.
		scaled = scaled.Truncate(0)
	}
	if scaled.Sign() < 0 || scaled.Cmp(decimal.NewFromInt(math.MaxInt64)) > 0 {
		return 0, ErrInvalidDecimal
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, ErrInvalidDecimal
	}
	return Value(bi.Uint64()), nil
}

// String formats the value as the shortest decimal string that round-trips
// back to the same bit pattern. The whole and fractional parts are taken
// from the raw uint64 directly (never via int64, which would wrap the
// saturation value math.MaxUint64 into a negative number). The fraction
// uses the fewest digits k for which m = ceil(frac*10^k / 2^32) satisfies
// m*2^32 < (frac+1)*10^k, i.e. m/10^k parses (truncating) back to frac;
// k <= 10 always suffices because 10^-10 < 2^-32.
func (v Value) String() string {
	whole := uint64(v) / scale
	frac := uint64(v) % scale
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	f, s := new(big.Int).SetUint64(frac), new(big.Int).SetUint64(scale)
	pow, m, lhs, rhs := big.NewInt(1), new(big.Int), new(big.Int), new(big.Int)
	for k := 1; ; k++ {
		pow.Mul(pow, big.NewInt(10))
		m.Mul(f, pow).Add(m, s).Sub(m, big.NewInt(1)).Quo(m, s)
		lhs.Mul(m, s)
		rhs.Add(f, big.NewInt(1)).Mul(rhs, pow)
		if lhs.Cmp(rhs) < 0 {
			digits := m.String()
			return strconv.FormatUint(whole, 10) + "." + strings.Repeat("0", k-len(digits)) + digits
		}
	}
}

// String formats a FixedPrice.
func (p FixedPrice) String() string { return Value(p).String() }

// String formats a FixedQty.
func (q FixedQty) String() string { return Value(q).String() }

// IsZero reports whether the price is exactly zero.
func (p FixedPrice) IsZero() bool { return p == 0 }

// IsZero reports whether the quantity is exactly zero.
func (q FixedQty) IsZero() bool { return q == 0 }

// Add returns p+o, saturating at the uint64 max on overflow.
func (p FixedPrice) Add(o FixedPrice) FixedPrice {
	return FixedPrice(saturatingAdd(uint64(p), uint64(o)))
}

// Sub returns p-o, saturating at zero on underflow.
func (p FixedPrice) Sub(o FixedPrice) FixedPrice {
	return FixedPrice(saturatingSub(uint64(p), uint64(o)))
}

// Cmp returns -1, 0 or 1 as p is less than, equal to, or greater than o.
func (p FixedPrice) Cmp(o FixedPrice) int {
	switch {
	case p < o:
		return -1
	case p > o:
		return 1
	default:
		return 0
	}
}

// LessThan reports whether p < o.
func (p FixedPrice) LessThan(o FixedPrice) bool { return p < o }

// GreaterThanOrEqual reports whether p >= o.
func (p FixedPrice) GreaterThanOrEqual(o FixedPrice) bool { return p >= o }

// Add returns q+o, saturating on overflow.
func (q FixedQty) Add(o FixedQty) FixedQty {
	return FixedQty(saturatingAdd(uint64(q), uint64(o)))
}

// Sub returns q-o, saturating at zero on underflow.
func (q FixedQty) Sub(o FixedQty) FixedQty {
	return FixedQty(saturatingSub(uint64(q), uint64(o)))
}

// MulPrice multiplies a quantity by a price, returning a FixedPrice-scaled
// notional value (both operands carry 32 fractional bits, so the raw
// product must be rescaled back down by 32 bits).
func (q FixedQty) MulPrice(p FixedPrice) FixedPrice {
	hi, lo := bits.Mul64(uint64(q), uint64(p))
	if hi != 0 && hi >= uint64(1)<<FractionalBits {
		overflowLog.Errorf("fixedpoint: MulPrice overflow q=%s p=%s", q, p)
		return FixedPrice(math.MaxUint64)
	}
	// Recombine the 128-bit product shifted right by FractionalBits.
	result := (hi << (64 - FractionalBits)) | (lo >> FractionalBits)
	return FixedPrice(result)
}

// DivFixed divides the price by a ratio expressed as a FixedQty
// (dimensionless), returning a FixedPrice. Division by zero does not panic;
// it returns ErrDivideByZero for the caller (typically analytics code,
// which substitutes zero and logs).
func (p FixedPrice) DivFixed(o FixedQty) (FixedPrice, error) {
	if o == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(uint64(p), scale)
	q, _ := bits.Div64(hi, lo, uint64(o))
	return FixedPrice(q), nil
}

// Div divides q by o (both quantities), returning a dimensionless fixed
// scalar in [0, ...]. Division by zero returns ErrDivideByZero.
func (q FixedQty) Div(o FixedQty) (FixedQty, error) {
	if o == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(uint64(q), scale)
	res, _ := bits.Div64(hi, lo, uint64(o))
	return FixedQty(res), nil
}

// Half returns p/2, used by mid-price calculation. Division by the
// constant 2 cannot divide by zero so no error is returned.
func (p FixedPrice) Half() FixedPrice {
	return FixedPrice(uint64(p) / 2)
}

// ToFloat64 converts to a float64 for external/human-display reporting
// only; never used on the hot path.
func (p FixedPrice) ToFloat64() float64 {
	return float64(p) / float64(scale)
}

// ToFloat64 converts to a float64 for external/human-display reporting only.
func (q FixedQty) ToFloat64() float64 {
	return float64(q) / float64(scale)
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		overflowLog.Errorf("fixedpoint: addition overflow %d + %d", a, b)
		return math.MaxUint64
	}
	return sum
}

func saturatingSub(a, b uint64) uint64 {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0
	}
	return diff
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		overflowLog.Errorf("fixedpoint: multiplication overflow %d * %d", a, b)
		return math.MaxUint64
	}
	return lo
}
