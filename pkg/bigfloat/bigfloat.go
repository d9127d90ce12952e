// Package bigfloat is the BigFloat facade (spec §4.1): the one fixed,
// narrow surface the rest of the engine uses to touch arbitrary
// precision arithmetic. The backend is intentionally swappable behind
// this package and is treated as an external collaborator, the same
// way the original FpDebug tool treats MPFR — callers never import
// math/big directly.
package bigfloat

import "math/big"

// DefaultPrecision is the shadow mantissa width in bits used when a
// Float is not explicitly sized; spec's CLI exposes this as
// --precision and the engine applies it at shadow-value creation.
const DefaultPrecision uint = 120

// Float wraps math/big.Float at a fixed rounding mode. All arithmetic
// ties round to nearest-even, matching machine float semantics as
// closely as an arbitrary-precision type can.
type Float struct {
	v big.Float
}

// New returns a zero-valued Float at the given precision.
func New(prec uint) *Float {
	f := &Float{}
	f.v.SetPrec(prec).SetMode(big.ToNearestEven)
	return f
}

// Prec reports the current mantissa width in bits.
func (f *Float) Prec() uint { return f.v.Prec() }

// SetPrec changes the mantissa width, keeping the current value
// (rounded if the new precision is narrower).
func (f *Float) SetPrec(prec uint) *Float {
	f.v.SetPrec(prec)
	return f
}

// SetFloat64/SetFloat32 seed the shadow from a concrete machine value,
// rounded to the receiver's precision; both are exact whenever that
// precision is at least 53 bits (24 for SetFloat32), as it is at the
// default precision.
func (f *Float) SetFloat64(x float64) *Float {
	f.v.SetFloat64(x)
	return f
}

func (f *Float) SetFloat32(x float32) *Float {
	f.v.SetFloat64(float64(x))
	return f
}

// SetInt64 seeds the shadow from an integer-typed guest value
// (Iop_I32toF64 and friends land here).
func (f *Float) SetInt64(x int64) *Float {
	f.v.SetInt64(x)
	return f
}

// Set copies another Float's value at this Float's own
// precision (rounding occurs if narrower).
func (f *Float) Set(src *Float) *Float {
	f.v.Set(&src.v)
	return f
}

// Add/Sub/Mul/Div/Sqrt perform the arithmetic spec §4.1 requires,
// each rounded to this Float's own precision exactly once.
func (f *Float) Add(a, b *Float) *Float { f.v.Add(&a.v, &b.v); return f }
func (f *Float) Sub(a, b *Float) *Float { f.v.Sub(&a.v, &b.v); return f }
func (f *Float) Mul(a, b *Float) *Float { f.v.Mul(&a.v, &b.v); return f }
func (f *Float) Div(a, b *Float) *Float { f.v.Quo(&a.v, &b.v); return f }

// Sqrt requires Go 1.10+'s big.Float.Sqrt (correctly rounded).
func (f *Float) Sqrt(a *Float) *Float { f.v.Sqrt(&a.v); return f }

func (f *Float) Neg(a *Float) *Float { f.v.Neg(&a.v); return f }
func (f *Float) Abs(a *Float) *Float { f.v.Abs(&a.v); return f }

// Min/Max are not in math/big; spec treats them as total-order picks
// with no rounding, so they are implemented directly on Cmp.
func (f *Float) Min(a, b *Float) *Float {
	if a.v.Cmp(&b.v) <= 0 {
		f.v.Copy(&a.v)
	} else {
		f.v.Copy(&b.v)
	}
	return f
}

func (f *Float) Max(a, b *Float) *Float {
	if a.v.Cmp(&b.v) >= 0 {
		f.v.Copy(&a.v)
	} else {
		f.v.Copy(&b.v)
	}
	return f
}

// Cmp returns -1, 0, +1 like big.Float.Cmp. NaN has no defined shadow
// representation (spec §4.1: IsNumber guards every comparison site).
func (f *Float) Cmp(o *Float) int { return f.v.Cmp(&o.v) }

// Sign returns -1, 0, or +1.
func (f *Float) Sign() int { return f.v.Sign() }

// IsRegular reports whether the value is finite and non-zero — the
// predicate spec §4.1 calls "regular", used to gate cancellation and
// relative-error math that is undefined at zero or infinity.
func (f *Float) IsRegular() bool {
	return !f.v.IsInf() && f.v.Sign() != 0
}

// IsNumber reports whether the value is finite (zero is a number;
// infinities are not). math/big.Float has no NaN representation, so
// this facade's "number" predicate only needs to exclude infinities.
func (f *Float) IsNumber() bool { return !f.v.IsInf() }

// Exponent returns the binary exponent of the value (0 for zero),
// spec §4.1's "exponent" primitive used by cancellation tracking.
func (f *Float) Exponent() int {
	if f.v.Sign() == 0 {
		return 0
	}
	return f.v.MantExp(nil)
}

// Float64/Float32 project the shadow back down to machine precision,
// used only for diagnostic output (spec never compares shadow and
// machine values this way on the hot path).
func (f *Float) Float64() float64 {
	x, _ := f.v.Float64()
	return x
}

func (f *Float) Float32() float32 {
	x, _ := f.v.Float32()
	return x
}

// Text renders the value in decimal with the requested number of
// significant digits, spec §4.6's report format.
func (f *Float) Text(digits int) string {
	return f.v.Text('g', digits)
}

// RelDiff computes |a−b| / max(|a|,|b|), the substitute spec Design
// Note 9.6 settles on in place of a signed relative difference; it
// returns 0 when both operands are zero, and is itself computed at
// precision prec.
func RelDiff(prec uint, a, b *Float) *Float {
	out := New(prec)
	if a.Sign() == 0 && b.Sign() == 0 {
		return out
	}
	absA, absB := New(prec).Abs(a), New(prec).Abs(b)
	denom := New(prec).Max(absA, absB)
	diff := New(prec).Sub(a, b)
	diff.Abs(diff)
	return out.Div(diff, denom)
}

// MinRequiredPrecision returns the smallest precision p at which x,
// rounded to p bits, still equals x held at maxPrec bits (0 for zero,
// maxPrec if no smaller p does) — spec §4.1's probe for "how many bits of this result are
// actually significant", used by the reporter's precision-loss metric.
func MinRequiredPrecision(x *Float, maxPrec uint) uint {
	if x.Sign() == 0 {
		return 0
	}
	ref := New(maxPrec).Set(x)
	for p := uint(1); p <= maxPrec; p++ {
		probe := New(p).Set(x)
		back := New(maxPrec).Set(probe)
		if back.Cmp(ref) == 0 {
			return p
		}
	}
	return maxPrec
}
