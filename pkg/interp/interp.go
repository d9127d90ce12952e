package interp

import (
	"math"

	"github.com/oisee/fpshadow/pkg/aggregate"
	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

// Interpreter is the per-operation shadow evaluator (spec §4.3): it
// takes an IR node's opcode and operand shadows and produces the
// result shadow, folding relative error and cancellation statistics
// into the per-site aggregator as it goes. One Interpreter is shared
// by every guest thread — spec §5 guarantees only one callback runs
// at a time.
type Interpreter struct {
	Prec uint
	Agg  *aggregate.Table

	Unsupported   uint64 // spec §7: opcode not in the catalog, passed through
	MissingShadow uint64 // spec §7: an operand had no shadow, promoted from its machine value
}

func NewInterpreter(prec uint, agg *aggregate.Table) *Interpreter {
	return &Interpreter{Prec: prec, Agg: agg}
}

// resolve returns arg's shadow Float, promoting a missing shadow
// (arg == nil or inactive) from the machine bit pattern (spec §4.3
// step 2). It also returns the shadow's chained opCount and the
// carried-forward cancellation exponent and origin, so callers can
// propagate P3's "result cancellation is at least as large as either
// operand's" invariant.
func (ip *Interpreter) resolve(arg *shadow.Value, width shadowir.Width, bits uint64, origin uint64) (val *bigfloat.Float, opCount uint64, canceled int, cancelOrigin uint64) {
	if arg != nil && arg.Active {
		return arg.Value, arg.OpCount, arg.Canceled, arg.CancelOrigin
	}
	ip.MissingShadow++
	promoted := shadow.NewValue(ip.Prec, 0, width, bits, origin)
	return promoted.Value, 0, 0, 0
}

func widthOf(op shadowir.OpCode) shadowir.Width {
	switch op {
	case shadowir.OpNegF32, shadowir.OpAbsF32, shadowir.OpSqrtF32,
		shadowir.OpAddF32, shadowir.OpSubF32, shadowir.OpMulF32, shadowir.OpDivF32,
		shadowir.OpMinF32, shadowir.OpMaxF32, shadowir.OpCmpF32, shadowir.OpF64toF32:
		return shadowir.Width32
	}
	return shadowir.Width64
}

// decodeMachine reinterprets a raw machine result bit pattern as a
// Float at the interpreter's shadow precision, for error comparison.
func decodeMachine(prec uint, width shadowir.Width, bits uint64) *bigfloat.Float {
	f := bigfloat.New(prec)
	if width == shadowir.Width32 {
		return f.SetFloat32(math.Float32frombits(uint32(bits)))
	}
	return f.SetFloat64(math.Float64frombits(bits))
}

// machineIsSpecial reports whether the raw machine bit pattern behind
// a result decodes to NaN or an infinity — spec §4.6's "special
// values" report category, checked against the IEEE bits directly
// since the shadow backend has no NaN representation of its own.
func machineIsSpecial(width shadowir.Width, bits uint64) bool {
	if width == shadowir.Width32 {
		x := math.Float32frombits(uint32(bits))
		return math.IsNaN(float64(x)) || math.IsInf(float64(x), 0)
	}
	x := math.Float64frombits(bits)
	return math.IsNaN(x) || math.IsInf(x, 0)
}

// cancellation estimates how many bits of precision a same-sign
// subtraction lost: the exponent of the larger operand minus the
// exponent of the result, clamped to non-negative (spec §4.3 step 5).
// This is the engine's model of catastrophic cancellation badness; it
// is deliberately approximate, the same way the reporter's "badness"
// score is a heuristic rather than an exact bit count.
func cancellation(a, b, result *bigfloat.Float) (canceled int, badness uint32) {
	if result.Sign() == 0 {
		return 0, 0
	}
	maxExp := a.Exponent()
	if e := b.Exponent(); e > maxExp {
		maxExp = e
	}
	lost := maxExp - result.Exponent()
	if lost <= 0 {
		return 0, 0
	}
	return lost, uint32(lost)
}

// opResult computes op(x, y) at the interpreter's precision. Every
// supported opcode — including the rounding-mode ternary family,
// whose steering operand the caller has already stripped out — reduces
// to a unary or binary shadow operation on (x, y); fused multiply-add
// is unsupported (spec §1) and never reaches this function.
func (ip *Interpreter) opResult(op shadowir.OpCode, x, y *bigfloat.Float) *bigfloat.Float {
	out := bigfloat.New(ip.Prec)
	switch op {
	case shadowir.OpNegF32, shadowir.OpNegF64:
		return out.Neg(x)
	case shadowir.OpAbsF32, shadowir.OpAbsF64:
		return out.Abs(x)
	case shadowir.OpSqrtF32, shadowir.OpSqrtF64:
		return out.Sqrt(x)
	case shadowir.OpF32toF64, shadowir.OpF64toF32, shadowir.OpI32toF64, shadowir.OpI64toF64, shadowir.OpRoundF64toInt:
		return out.Set(x)
	case shadowir.OpAddF32, shadowir.OpAddF64, shadowir.OpAddF64RM:
		return out.Add(x, y)
	case shadowir.OpSubF32, shadowir.OpSubF64, shadowir.OpSubF64RM:
		return out.Sub(x, y)
	case shadowir.OpMulF32, shadowir.OpMulF64, shadowir.OpMulF64RM:
		return out.Mul(x, y)
	case shadowir.OpDivF32, shadowir.OpDivF64, shadowir.OpDivF64RM:
		return out.Div(x, y)
	case shadowir.OpMinF32, shadowir.OpMinF64:
		return out.Min(x, y)
	case shadowir.OpMaxF32, shadowir.OpMaxF64:
		return out.Max(x, y)
	case shadowir.OpCmpF32, shadowir.OpCmpF64:
		return out.SetFloat64(float64(x.Cmp(y)))
	}
	return out
}

// Eval computes the shadow result of one operation (spec §4.3's
// unOp/binOp/triOp dispatch, unified: a rounding-mode ternary op reads
// its real operands from (b, c) instead of (a, b), Arg1 being a
// steering value the shadow side never touches). site is the
// instruction address the aggregator keys on; machineBits is the
// guest's actual computed result, used to score this operation's
// relative error.
func (ip *Interpreter) Eval(site uint64, op shadowir.OpCode, a, b, c *shadow.Value, aBits, bBits, cBits, machineBits uint64) (result *shadow.Value, supported bool) {
	info := Catalog[op]
	if !info.Supported {
		ip.Unsupported++
		return nil, false
	}

	width := widthOf(op)

	// Resolve every operand's shadow, opCount and carried cancellation
	// up front; which pair feeds opResult depends on whether op is a
	// rounding-mode ternary (spec §4.3 step 3: Arg1 is steering only).
	aShadow, aCount, aCanceled, aCancelOrigin := ip.resolve(a, width, aBits, site)
	if (op == shadowir.OpI32toF64 || op == shadowir.OpI64toF64) && (a == nil || !a.Active) {
		// An unshadowed integer operand is promoted from its integer
		// value, not reinterpreted as float bits.
		iv := int64(aBits)
		if op == shadowir.OpI32toF64 {
			iv = int64(int32(aBits))
		}
		aShadow = bigfloat.New(ip.Prec).SetInt64(iv)
	}
	var bShadow *bigfloat.Float
	var bCount uint64
	var bCanceled int
	var bCancelOrigin uint64
	if op.Arity() >= 2 {
		bShadow, bCount, bCanceled, bCancelOrigin = ip.resolve(b, width, bBits, site)
	} else {
		bShadow = bigfloat.New(ip.Prec)
	}
	var cShadow *bigfloat.Float
	var cCount uint64
	var cCanceled int
	var cCancelOrigin uint64
	if op.Arity() >= 3 {
		cShadow, cCount, cCanceled, cCancelOrigin = ip.resolve(c, width, cBits, site)
	} else {
		cShadow = bigfloat.New(ip.Prec)
	}

	x, y := aShadow, bShadow
	xCount, yCount := aCount, bCount
	xCanceled, xCancelOrigin := aCanceled, aCancelOrigin
	yCanceled, yCancelOrigin := bCanceled, bCancelOrigin
	xOrigin, yOrigin := originOf(a), originOf(b)
	if IsRoundingModeTernary(op) {
		x, y = bShadow, cShadow
		xCount, yCount = bCount, cCount
		xCanceled, xCancelOrigin = bCanceled, bCancelOrigin
		yCanceled, yCancelOrigin = cCanceled, cCancelOrigin
		xOrigin, yOrigin = originOf(b), originOf(c)
	}

	resVal := ip.opResult(op, x, y)

	opCount := xCount + 1
	if yCount+1 > opCount {
		opCount = yCount + 1
	}

	out := &shadow.Value{
		Value:   resVal,
		OrgBits: machineBits,
		Active:  true,
		Version: 1,
		Origin:  site,
		LastOp:  op,
		OpCount: opCount,
	}
	if width == shadowir.Width32 {
		out.OrgType = shadow.OrgFloat32
	} else {
		out.OrgType = shadow.OrgFloat64
	}

	canceled, badness := 0, uint32(0)
	if IsCancellationOp(op) {
		canceled, badness = cancellation(x, y, resVal)
	}

	// Carry forward whichever of (this op's own cancellation, x's
	// lineage, y's lineage) lost the most precision — spec P3: result
	// cancellation never regresses below either operand's.
	finalCanceled, finalOrigin := canceled, site
	if xCanceled > finalCanceled {
		finalCanceled, finalOrigin = xCanceled, xCancelOrigin
	}
	if yCanceled > finalCanceled {
		finalCanceled, finalOrigin = yCanceled, yCancelOrigin
	}
	if finalCanceled > 0 {
		out.Canceled = finalCanceled
		out.CancelOrigin = finalOrigin
	}

	machine := decodeMachine(ip.Prec, width, machineBits)
	relErr := bigfloat.RelDiff(ip.Prec, resVal, machine)

	if ip.Agg != nil {
		mv := ip.Agg.Get(site, op)
		mv.Observe(ip.Prec, relErr, finalCanceled, badness, xOrigin, yOrigin)
		if machineIsSpecial(width, machineBits) {
			mv.Special = true
		}
	}

	return out, true
}

// originOf returns a shadow value's lineage origin, or 0 if it has no
// shadow (the aggregator treats 0 as "no provenance recorded").
func originOf(v *shadow.Value) uint64 {
	if v == nil {
		return 0
	}
	return v.Origin
}
