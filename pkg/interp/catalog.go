// Package interp is the operation interpreter (spec §4.3): given an
// IR unop/binop/triop node and its operand shadows, it produces the
// result shadow, updates opCount/origin/cancellation, and folds the
// per-site MeanValue aggregate. The opcode catalog below is the
// struct-of-arrays argument descriptor spec Design Note 9.3 asks for,
// directly modeled on the teacher's Catalog [OpCodeCount]Info table.
package interp

import "github.com/oisee/fpshadow/pkg/shadowir"

// Info is static per-opcode metadata the interpreter consults before
// touching any shadow state.
type Info struct {
	Name      string
	Supported bool // false: pass the machine value through, no shadow math (spec §4.3 step 1)
}

// Catalog maps every OpCode to its Info, indexed directly (mirrors
// the teacher's array-indexed Catalog rather than a map, since
// OpCode is a small dense enum).
var Catalog [shadowir.OpCodeCount]Info

func init() {
	set := func(op shadowir.OpCode, name string, supported bool) {
		Catalog[op] = Info{Name: name, Supported: supported}
	}

	set(shadowir.OpNegF32, "NegF32", true)
	set(shadowir.OpNegF64, "NegF64", true)
	set(shadowir.OpAbsF32, "AbsF32", true)
	set(shadowir.OpAbsF64, "AbsF64", true)
	set(shadowir.OpSqrtF32, "SqrtF32", true)
	set(shadowir.OpSqrtF64, "SqrtF64", true)
	set(shadowir.OpF32toF64, "F32toF64", true)
	set(shadowir.OpF64toF32, "F64toF32", true)
	set(shadowir.OpI32toF64, "I32toF64", true)
	set(shadowir.OpI64toF64, "I64toF64", true)
	set(shadowir.OpRoundF64toInt, "RoundF64toInt", true)

	set(shadowir.OpAddF32, "AddF32", true)
	set(shadowir.OpAddF64, "AddF64", true)
	set(shadowir.OpSubF32, "SubF32", true)
	set(shadowir.OpSubF64, "SubF64", true)
	set(shadowir.OpMulF32, "MulF32", true)
	set(shadowir.OpMulF64, "MulF64", true)
	set(shadowir.OpDivF32, "DivF32", true)
	set(shadowir.OpDivF64, "DivF64", true)
	set(shadowir.OpMinF32, "MinF32", true)
	set(shadowir.OpMinF64, "MinF64", true)
	set(shadowir.OpMaxF32, "MaxF32", true)
	set(shadowir.OpMaxF64, "MaxF64", true)
	set(shadowir.OpCmpF32, "CmpF32", true)
	set(shadowir.OpCmpF64, "CmpF64", true)

	// Fused multiply-add is an explicit Non-goal: recorded unsupported,
	// passed through untouched (spec §1, §4.3 step 1).
	set(shadowir.OpMAddF64, "MAddF64", false)
	set(shadowir.OpMSubF64, "MSubF64", false)

	// Rounding-mode-prefixed ternary arithmetic: Arg1 carries a steering
	// value the shadow side ignores; Arg2/Arg3 are the real operands
	// (spec §4.3 step 3).
	set(shadowir.OpAddF64RM, "AddF64RM", true)
	set(shadowir.OpSubF64RM, "SubF64RM", true)
	set(shadowir.OpMulF64RM, "MulF64RM", true)
	set(shadowir.OpDivF64RM, "DivF64RM", true)

	// Unsupported by design (spec Non-goals): estimates and
	// transcendentals pass through untouched.
	set(shadowir.OpRecipEstF64, "RecipEstF64", false)
	set(shadowir.OpRSqrtEstF64, "RSqrtEstF64", false)
	set(shadowir.OpSinF64, "SinF64", false)
	set(shadowir.OpCosF64, "CosF64", false)
	set(shadowir.OpTanF64, "TanF64", false)
	set(shadowir.OpYlogYtoXF64, "YlogYtoXF64", false)
}

// IsCancellationOp reports whether an opcode can produce catastrophic
// cancellation — only same-sign subtraction-shaped arithmetic can
// (spec §4.3 step 5): Add/Sub of opposite-signed operands.
func IsCancellationOp(op shadowir.OpCode) bool {
	switch op {
	case shadowir.OpAddF32, shadowir.OpAddF64, shadowir.OpSubF32, shadowir.OpSubF64,
		shadowir.OpAddF64RM, shadowir.OpSubF64RM:
		return true
	}
	return false
}

// IsRoundingModeTernary reports whether op is one of the four
// rounding-mode-prefixed ternary arithmetic ops, whose real operands
// live in Arg2/Arg3 rather than Arg1/Arg2 (spec §4.3 step 3).
func IsRoundingModeTernary(op shadowir.OpCode) bool {
	switch op {
	case shadowir.OpAddF64RM, shadowir.OpSubF64RM, shadowir.OpMulF64RM, shadowir.OpDivF64RM:
		return true
	}
	return false
}

// IsFloatOp reports whether the catalog considers op a float-carrying
// opcode at all, spec Design Note 9.2's documented isOpFloat-on-op
// deviation: the interpreter keys this off the opcode it is actually
// processing, not off a separately reconstructed operator.
func IsFloatOp(op shadowir.OpCode) bool {
	return op > shadowir.OpInvalid && op < shadowir.OpCodeCount
}
