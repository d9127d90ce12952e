package shadowir

import "math"

// ConstF64/ConstF32 build a float literal Const node, the shape a
// host translator emits for any immediate operand.
func ConstF64(x float64) Const { return Const{Width: Width64, Bits: math.Float64bits(x)} }
func ConstF32(x float32) Const { return Const{Width: Width32, Bits: uint64(math.Float32bits(x))} }
