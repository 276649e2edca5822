package protocol

import "math"

// CompactPos is a screen position packed into two IEEE 754 binary16
// values, stored as their raw bit patterns. Touch telemetry uses it to
// halve frame size; the precision loss is acceptable for replay display.
type CompactPos struct {
	X uint16
	Y uint16
}

func NewCompactPos(x, y float32) CompactPos {
	return CompactPos{X: float16Bits(x), Y: float16Bits(y)}
}

// XFloat returns the x coordinate widened back to float32.
func (p CompactPos) XFloat() float32 {
	return float16From(p.X)
}

// YFloat returns the y coordinate widened back to float32.
func (p CompactPos) YFloat() float32 {
	return float16From(p.Y)
}

func (p CompactPos) encode(w *Writer) {
	w.Uint16(p.X)
	w.Uint16(p.Y)
}

func decodeCompactPos(r *Reader) (CompactPos, error) {
	x, err := r.Uint16()
	if err != nil {
		return CompactPos{}, err
	}
	y, err := r.Uint16()
	if err != nil {
		return CompactPos{}, err
	}
	return CompactPos{X: x, Y: y}, nil
}

// float16Bits converts a float32 to binary16 bits with round-to-nearest-even,
// producing subnormals for small magnitudes and infinity on overflow.
func float16Bits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23) & 0xff
	frac := b & 0x7fffff

	if exp == 0xff {
		if frac != 0 {
			return sign | 0x7e00 // NaN
		}
		return sign | 0x7c00 // Inf
	}

	e := exp - 127 + 15
	if e >= 0x1f {
		return sign | 0x7c00
	}
	if e <= 0 {
		if e < -10 {
			return sign
		}
		// Subnormal: shift in the implicit leading bit, then round.
		frac |= 0x800000
		shift := uint32(14 - e)
		half := uint16(frac >> shift)
		rem := frac & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | half
	}

	half := uint16(e)<<10 | uint16(frac>>13)
	rem := frac & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++ // carry into the exponent rounds up to Inf at the top
	}
	return sign | half
}

// float16From widens binary16 bits to float32. The conversion is exact.
func float16From(bits uint16) float32 {
	sign := uint32(bits&0x8000) << 16
	exp := uint32(bits>>10) & 0x1f
	frac := uint32(bits & 0x3ff)

	switch {
	case exp == 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: renormalize against the wider exponent range.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case exp == 0x1f:
		if frac == 0 {
			return math.Float32frombits(sign | 0x7f800000)
		}
		return math.Float32frombits(sign | 0x7fc00000)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}
