// Package hostharness is a minimal straight-line IR executor used
// only by tests and cmd/fpshadow to play the translator's role: run a
// superblock's real float64/float32 arithmetic one guest instruction
// at a time and fire whatever shadow callbacks the instrumenter
// inserted, in the same order a real JIT would. It is test/demo
// scaffolding, not a spec component — the spec consumes a real
// translator's IR and never rewrites or executes a guest program
// itself (Non-goals, spec §1).
package hostharness

import (
	"math"

	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

// Harness holds the concrete machine-side state (register/temp/memory
// bit patterns) a single guest thread would carry, backed by the same
// shadow.Store the engine uses, so HostEnv lookups and instrumented
// writes land in one place.
type Harness struct {
	Store *shadow.Store
	TID   uint32

	tempBits  map[int]uint64
	tempWidth map[int]shadowir.Width
	regBits   map[int]uint64
	regWidth  map[int]shadowir.Width
	memBits   map[uint64]uint64
}

func New(store *shadow.Store, tid uint32) *Harness {
	return &Harness{
		Store:     store,
		TID:       tid,
		tempBits:  make(map[int]uint64),
		tempWidth: make(map[int]shadowir.Width),
		regBits:   make(map[int]uint64),
		regWidth:  make(map[int]shadowir.Width),
		memBits:   make(map[uint64]uint64),
	}
}

// SeedRegister installs a starting machine value for a register, used
// to set up a scenario's initial conditions before Run.
func (h *Harness) SeedRegister(offset int, width shadowir.Width, bits uint64, v *shadow.Value) {
	h.regBits[offset] = bits
	h.regWidth[offset] = width
	if v != nil {
		h.Store.Registers(h.TID).Set(offset, v)
	}
}

func (h *Harness) RegisterFloat64(offset int) float64 {
	return math.Float64frombits(h.regBits[offset])
}

func (h *Harness) RegisterShadow(offset int) *shadow.Value {
	return h.Store.Registers(h.TID).Get(offset)
}

// --- instrument.HostEnv ---

func (h *Harness) Bits(e shadowir.Expr) uint64 {
	b, _ := h.evalMachine(e)
	return b
}

func (h *Harness) Width(e shadowir.Expr) shadowir.Width {
	_, w := h.evalMachine(e)
	return w
}

func (h *Harness) ShadowOf(e shadowir.Expr) *shadow.Value {
	switch v := e.(type) {
	case shadowir.RdTmp:
		return h.Store.Temps().Get(v.Temp)
	case shadowir.Get:
		return h.Store.Registers(h.TID).Get(v.Offset)
	case shadowir.Load:
		return h.Store.Memory(h.addrOf(v.Addr))
	}
	return nil
}

func (h *Harness) SetTempShadow(temp int, v *shadow.Value)      { h.Store.Temps().Set(temp, v) }
func (h *Harness) SetRegisterShadow(offset int, v *shadow.Value) { h.Store.Registers(h.TID).Set(offset, v) }

func (h *Harness) addrOf(e shadowir.Expr) uint64 {
	b, _ := h.evalMachine(e)
	return b
}

// Run executes every statement of an (already instrumented)
// superblock in order: IMark is a no-op marker, WrTmp/Put/Store
// compute and record the real machine value, Dirty fires the shadow
// callback the instrumenter attached, Exit is ignored (the harness
// has no control flow of its own — callers drive loops by calling Run
// once per iteration).
func (h *Harness) Run(sb *shadowir.Superblock) {
	for _, st := range sb.Stmts {
		switch s := st.(type) {
		case shadowir.IMark:
			// no-op: Instrument already captured site addresses statically.
		case shadowir.WrTmp:
			bits, width := h.evalMachine(s.Data)
			h.tempBits[s.Temp] = bits
			h.tempWidth[s.Temp] = width
		case shadowir.Put:
			bits, width := h.evalMachine(s.Data)
			h.regBits[s.Offset] = bits
			h.regWidth[s.Offset] = width
		case shadowir.Store:
			bits, _ := h.evalMachine(s.Data)
			h.memBits[h.addrOf(s.Addr)] = bits
		case shadowir.Dirty:
			s.Call()
		case shadowir.Exit:
			// no-op, see doc comment.
		}
	}
}

func (h *Harness) evalMachine(e shadowir.Expr) (bits uint64, width shadowir.Width) {
	switch v := e.(type) {
	case shadowir.Const:
		return v.Bits, v.Width
	case shadowir.RdTmp:
		return h.tempBits[v.Temp], h.tempWidth[v.Temp]
	case shadowir.Get:
		return h.regBits[v.Offset], v.Width
	case shadowir.Load:
		return h.memBits[h.addrOf(v.Addr)], v.Width
	case shadowir.Unop:
		return h.evalUnop(v)
	case shadowir.Binop:
		return h.evalBinop(v)
	case shadowir.Triop:
		return h.evalTriop(v)
	case shadowir.ITE:
		cond, _ := h.evalMachine(v.Cond)
		if cond != 0 {
			return h.evalMachine(v.IfTrue)
		}
		return h.evalMachine(v.IfFalse)
	}
	return 0, shadowir.Width64
}

func f64(bits uint64) float64   { return math.Float64frombits(bits) }
func bits64(x float64) uint64   { return math.Float64bits(x) }
func f32(bits uint64) float32   { return math.Float32frombits(uint32(bits)) }
func bits32(x float32) uint64   { return uint64(math.Float32bits(x)) }

func (h *Harness) evalUnop(v shadowir.Unop) (uint64, shadowir.Width) {
	a, _ := h.evalMachine(v.Arg)
	switch v.Op {
	case shadowir.OpNegF64:
		return bits64(-f64(a)), shadowir.Width64
	case shadowir.OpNegF32:
		return bits32(-f32(a)), shadowir.Width32
	case shadowir.OpAbsF64:
		return bits64(math.Abs(f64(a))), shadowir.Width64
	case shadowir.OpAbsF32:
		return bits32(float32(math.Abs(float64(f32(a))))), shadowir.Width32
	case shadowir.OpSqrtF64:
		return bits64(math.Sqrt(f64(a))), shadowir.Width64
	case shadowir.OpSqrtF32:
		return bits32(float32(math.Sqrt(float64(f32(a))))), shadowir.Width32
	case shadowir.OpF32toF64:
		return bits64(float64(f32(a))), shadowir.Width64
	case shadowir.OpF64toF32:
		return bits32(float32(f64(a))), shadowir.Width32
	case shadowir.OpI32toF64:
		return bits64(float64(int32(a))), shadowir.Width64
	case shadowir.OpI64toF64:
		return bits64(float64(int64(a))), shadowir.Width64
	case shadowir.OpRoundF64toInt:
		return bits64(math.Round(f64(a))), shadowir.Width64
	}
	return a, shadowir.Width64
}

func (h *Harness) evalBinop(v shadowir.Binop) (uint64, shadowir.Width) {
	a, _ := h.evalMachine(v.Arg1)
	b, _ := h.evalMachine(v.Arg2)
	switch v.Op {
	case shadowir.OpAddF64:
		return bits64(f64(a) + f64(b)), shadowir.Width64
	case shadowir.OpAddF32:
		return bits32(f32(a) + f32(b)), shadowir.Width32
	case shadowir.OpSubF64:
		return bits64(f64(a) - f64(b)), shadowir.Width64
	case shadowir.OpSubF32:
		return bits32(f32(a) - f32(b)), shadowir.Width32
	case shadowir.OpMulF64:
		return bits64(f64(a) * f64(b)), shadowir.Width64
	case shadowir.OpMulF32:
		return bits32(f32(a) * f32(b)), shadowir.Width32
	case shadowir.OpDivF64:
		return bits64(f64(a) / f64(b)), shadowir.Width64
	case shadowir.OpDivF32:
		return bits32(f32(a) / f32(b)), shadowir.Width32
	case shadowir.OpMinF64:
		return bits64(math.Min(f64(a), f64(b))), shadowir.Width64
	case shadowir.OpMaxF64:
		return bits64(math.Max(f64(a), f64(b))), shadowir.Width64
	case shadowir.OpCmpF64, shadowir.OpCmpF32:
		switch {
		case f64(a) < f64(b):
			return bits64(-1), shadowir.Width64
		case f64(a) > f64(b):
			return bits64(1), shadowir.Width64
		default:
			return bits64(0), shadowir.Width64
		}
	}
	return a, shadowir.Width64
}

func (h *Harness) evalTriop(v shadowir.Triop) (uint64, shadowir.Width) {
	a, _ := h.evalMachine(v.Arg1)
	b, _ := h.evalMachine(v.Arg2)
	c, _ := h.evalMachine(v.Arg3)
	switch v.Op {
	case shadowir.OpMAddF64:
		return bits64(f64(a)*f64(b) + f64(c)), shadowir.Width64
	case shadowir.OpMSubF64:
		return bits64(f64(a)*f64(b) - f64(c)), shadowir.Width64
	}
	return a, shadowir.Width64
}
