// Package decimal implements FlintDB's BCD-encoded fixed-scale
// decimal type: (sign, scale, length, data[16]), binary-coded decimal
// digits packed MSB-first with an even nibble count. This is a
// bespoke on-disk format dictated by the storage core's wire layout,
// so digit arithmetic is done with math/big against a decimal string,
// and only the final BCD packing is hand-rolled.
package decimal

import (
	"math/big"
	"strings"

	"github.com/flintdb/flintdb"
)

// MaxDigits is the largest number of significant decimal digits a
// Decimal can hold: 16 bytes * 2 nibbles/byte = 32 digits.
const MaxDigits = 32

// Decimal is a fixed-scale decimal value stored as packed BCD.
type Decimal struct {
	Sign   int8 // 1 or -1; 1 for zero
	Scale  int  // digits to the right of the decimal point
	Length int  // number of significant bytes used in Data (<=16)
	Data   [16]byte
}

// Zero returns the zero value at the given scale.
func Zero(scale int) Decimal {
	return Decimal{Sign: 1, Scale: scale, Length: 0}
}

// FromString parses a decimal literal (optionally signed, optionally
// containing a '.') and normalizes it to the given target scale.
// Rounding is not performed: excess fractional digits beyond scale
// are truncated.
func FromString(s string, scale int) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, flintdb.New(flintdb.KindInvalidDecimal, "decimal.FromString", "empty string")
	}

	sign := int8(1)
	rest := s
	if rest[0] == '+' || rest[0] == '-' {
		if rest[0] == '-' {
			sign = -1
		}
		rest = rest[1:]
	}
	if rest == "" {
		return Decimal{}, flintdb.New(flintdb.KindInvalidDecimal, "decimal.FromString", "missing digits")
	}

	intPart := rest
	fracPart := ""
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		intPart = rest[:idx]
		fracPart = rest[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return Decimal{}, flintdb.New(flintdb.KindInvalidDecimal, "decimal.FromString", "non-digit character")
		}
	}

	// Normalize fractional part to exactly `scale` digits: pad with
	// zeros if shorter, truncate (documented limitation) if longer.
	if len(fracPart) < scale {
		fracPart += strings.Repeat("0", scale-len(fracPart))
	} else if len(fracPart) > scale {
		fracPart = fracPart[:scale]
	}

	digits := strings.TrimLeft(intPart+fracPart, "0")
	if digits == "" {
		digits = "0"
	}
	if len(digits) > MaxDigits {
		// Overflow past 32 digits truncates most-significant digits,
		// a documented limitation (spec.md §3).
		digits = digits[len(digits)-MaxDigits:]
	}
	if digits == "0" {
		sign = 1
	}

	return fromDigitString(sign, scale, digits), nil
}

// fromDigitString packs an unsigned decimal digit string (no sign, no
// point) into BCD, MSB-first, even nibble count (leading zero pad if
// odd).
func fromDigitString(sign int8, scale int, digits string) Decimal {
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	length := len(digits) / 2
	d := Decimal{Sign: sign, Scale: scale, Length: length}
	for i := 0; i < length; i++ {
		hi := digits[i*2] - '0'
		lo := digits[i*2+1] - '0'
		d.Data[i] = hi<<4 | lo
	}
	return d
}

// digitString unpacks the BCD payload back into a plain digit string
// (no sign, no point), left-zero-stripped only by the caller.
func (d Decimal) digitString() string {
	var sb strings.Builder
	for i := 0; i < d.Length; i++ {
		sb.WriteByte('0' + (d.Data[i] >> 4))
		sb.WriteByte('0' + (d.Data[i] & 0x0F))
	}
	s := sb.String()
	if s == "" {
		s = "0"
	}
	return s
}

// String renders the decimal back to its canonical form at its
// stored scale: decimal_to_string(decimal_from_string(s, k)) yields s
// normalized to exact scale k.
func (d Decimal) String() string {
	digits := d.digitString()
	if len(digits) <= d.Scale {
		digits = strings.Repeat("0", d.Scale-len(digits)+1) + digits
	}
	intPart := strings.TrimLeft(digits[:len(digits)-d.Scale], "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart := digits[len(digits)-d.Scale:]

	var sb strings.Builder
	if d.Sign < 0 && digits != strings.Repeat("0", len(digits)) {
		sb.WriteByte('-')
	}
	sb.WriteString(intPart)
	if d.Scale > 0 {
		sb.WriteByte('.')
		sb.WriteString(fracPart)
	}
	return sb.String()
}

// toBig converts to a big.Rat for arithmetic.
func (d Decimal) toBig() *big.Rat {
	digits := d.digitString()
	num := new(big.Int)
	num.SetString(digits, 10)
	if d.Sign < 0 {
		num.Neg(num)
	}
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(num, den)
}

// fromBig renders a big.Rat into a Decimal at the given target scale,
// truncating any digits beyond that scale (no rounding).
func fromBig(r *big.Rat, scale int) Decimal {
	scaleFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scaleFactor))

	num := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	sign := int8(1)
	if num.Sign() < 0 {
		sign = -1
		num.Neg(num)
	}
	digits := num.String()
	if digits == "0" {
		sign = 1
	}
	if len(digits) > MaxDigits {
		digits = digits[len(digits)-MaxDigits:]
	}
	return fromDigitString(sign, scale, digits)
}

// Add returns d+other normalized to targetScale.
func Add(a, b Decimal, targetScale int) Decimal {
	sum := new(big.Rat).Add(a.toBig(), b.toBig())
	return fromBig(sum, targetScale)
}

// Divide returns a/b normalized to targetScale. Division by zero
// returns the zero value at targetScale (callers that need to
// distinguish this from a genuine zero quotient should check b first).
func Divide(a, b Decimal, targetScale int) Decimal {
	bb := b.toBig()
	if bb.Sign() == 0 {
		return Zero(targetScale)
	}
	q := new(big.Rat).Quo(a.toBig(), bb)
	return fromBig(q, targetScale)
}

// Compare returns -1, 0, or 1 comparing a to b regardless of scale.
func Compare(a, b Decimal) int {
	return a.toBig().Cmp(b.toBig())
}
