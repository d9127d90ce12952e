// Package instrument is the IR instrumenter (spec §4.4): a backward
// importance pass decides which temporaries are worth shadowing at
// all, and a forward pass walks the superblock inserting callbacks
// after every important float operation, register/memory read and
// write, and conditional move; the conditional-move callback decides
// at run time which branch fired so its shadow can be aliased. There
// is no separate alias pass over value-preserving casts. It mirrors the teacher's multi-pass pipeline
// shape (enumerate candidates, prune the ones that can't matter, then
// act on what's left) applied to IR statements instead of instruction
// sequences.
package instrument

import (
	"github.com/oisee/fpshadow/pkg/interp"
	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

// HostEnv is the execution-time binding the instrumenter's emitted
// callbacks read through: it knows the machine bit pattern and
// current shadow (if any) behind any expression that has already
// been evaluated by the real, unshadowed execution of the superblock.
// A host translator's JIT-time register/temp arrays satisfy this
// shape; pkg/instrument/hostharness is the toy implementation tests
// and cmd/fpshadow drive end to end.
type HostEnv interface {
	Bits(e shadowir.Expr) uint64
	Width(e shadowir.Expr) shadowir.Width
	ShadowOf(e shadowir.Expr) *shadow.Value
	SetTempShadow(temp int, v *shadow.Value)
	SetRegisterShadow(offset int, v *shadow.Value)
}

// Importance runs the backward pass (spec §4.4 step 1): starting from
// every statement with effects visible outside the superblock (Put,
// PutI, Store, Exit), it marks the temps that feed them important,
// then closes that set backward over WrTmp definitions until no more
// temps are added. A temp the result never needs is never worth the
// cost of shadowing.
func Importance(sb *shadowir.Superblock) map[int]bool {
	important := make(map[int]bool)
	mark := func(e shadowir.Expr) {
		for _, t := range tempsOf(e) {
			important[t] = true
		}
	}

	for _, st := range sb.Stmts {
		switch s := st.(type) {
		case shadowir.Put:
			mark(s.Data)
		case shadowir.PutI:
			mark(s.Data)
			mark(s.Index)
		case shadowir.Store:
			mark(s.Data)
			mark(s.Addr)
		case shadowir.Exit:
			mark(s.Guard)
		}
	}

	for changed := true; changed; {
		changed = false
		for i := len(sb.Stmts) - 1; i >= 0; i-- {
			wt, ok := sb.Stmts[i].(shadowir.WrTmp)
			if !ok || !important[wt.Temp] {
				continue
			}
			for _, t := range tempsOf(wt.Data) {
				if !important[t] {
					important[t] = true
					changed = true
				}
			}
		}
	}
	return important
}

// tempsOf collects the temp indices an expression reads directly.
func tempsOf(e shadowir.Expr) []int {
	switch v := e.(type) {
	case shadowir.RdTmp:
		return []int{v.Temp}
	case shadowir.GetI:
		return tempsOf(v.Index)
	case shadowir.Load:
		return tempsOf(v.Addr)
	case shadowir.Unop:
		return tempsOf(v.Arg)
	case shadowir.Binop:
		return append(tempsOf(v.Arg1), tempsOf(v.Arg2)...)
	case shadowir.Triop:
		out := tempsOf(v.Arg1)
		out = append(out, tempsOf(v.Arg2)...)
		return append(out, tempsOf(v.Arg3)...)
	case shadowir.ITE:
		out := tempsOf(v.Cond)
		out = append(out, tempsOf(v.IfTrue)...)
		return append(out, tempsOf(v.IfFalse)...)
	}
	return nil
}

// Instrument runs the forward emission pass (spec §4.4 steps 2–4): it
// returns a copy of sb with a shadowir.Dirty statement inserted after
// every important WrTmp whose Data is a float operation, a
// conditional-move alias, or a register/memory read, and after every
// Put/PutI/Store — those three are importance roots by construction,
// so they are always instrumented regardless of `important`. Every
// callback is bound to env/ip/store at the moment Instrument is
// called. Addresses for ShadowValue.Origin and MeanValue.Key come
// from the most recent IMark seen, never from a synthesized counter.
func Instrument(sb *shadowir.Superblock, important map[int]bool, env HostEnv, ip *interp.Interpreter, store *shadow.Store) *shadowir.Superblock {
	out := &shadowir.Superblock{NumTemps: sb.NumTemps}
	site := uint64(0)

	for _, st := range sb.Stmts {
		out.Stmts = append(out.Stmts, st)

		if im, ok := st.(shadowir.IMark); ok {
			site = im.Addr
			continue
		}

		switch s := st.(type) {
		case shadowir.WrTmp:
			if !important[s.Temp] {
				continue
			}
			switch data := s.Data.(type) {
			case shadowir.Unop, shadowir.Binop, shadowir.Triop:
				temp := s.Temp
				addr := site
				expr := data
				out.Stmts = append(out.Stmts, shadowir.Dirty{
					Name: "shadow_op",
					Call: func() { emitOp(addr, expr, temp, env, ip, store) },
				})
			case shadowir.ITE:
				temp := s.Temp
				ite := data
				out.Stmts = append(out.Stmts, shadowir.Dirty{
					Name: "shadow_alias",
					Call: func() { emitAlias(ite, temp, env, store) },
				})
			case shadowir.Get, shadowir.Load, shadowir.GetI:
				temp := s.Temp
				src := data
				out.Stmts = append(out.Stmts, shadowir.Dirty{
					Name: "shadow_migrate_in",
					Call: func() { emitMigrateToTemp(src, temp, env, store) },
				})
			}
		case shadowir.Put:
			offset := s.Offset
			data := s.Data
			out.Stmts = append(out.Stmts, shadowir.Dirty{
				Name: "shadow_put",
				Call: func() { env.SetRegisterShadow(offset, exprShadow(data, env)) },
			})
		case shadowir.PutI:
			p := s
			out.Stmts = append(out.Stmts, shadowir.Dirty{
				Name: "shadow_puti",
				Call: func() { emitPutI(p, env) },
			})
		case shadowir.Store:
			addr := s.Addr
			data := s.Data
			out.Stmts = append(out.Stmts, shadowir.Dirty{
				Name: "shadow_store",
				Call: func() { store.SetMemory(env.Bits(addr), exprShadow(data, env)) },
			})
		}
	}
	return out
}

// emitMigrateToTemp migrates the shadow behind a Get, Load or GetI
// expression into a destination temp — spec §4.4's register/memory-to
// -temp shadow migration. GetI's circular addressing is resolved by
// synthesizing a plain Get at the computed offset and reusing the
// host's normal register lookup, rather than adding a second HostEnv
// method just for the circular case.
func emitMigrateToTemp(src shadowir.Expr, temp int, env HostEnv, store *shadow.Store) {
	resolved := src
	if g, ok := src.(shadowir.GetI); ok {
		resolved = shadowir.Get{Offset: circularOffset(env, g), Width: g.Width}
	}
	v := exprShadow(resolved, env)
	store.Temps().Set(temp, v)
	env.SetTempShadow(temp, v)
}

// emitPutI migrates a shadow into a circular register-file write,
// resolving the index the same way emitMigrateToTemp's GetI case does
// (spec §4.4, Design Note 9.5: addr = base + (index+bias) mod nElems).
func emitPutI(p shadowir.PutI, env HostEnv) {
	offset := circularOffset(env, shadowir.GetI{Base: p.Base, Bias: p.Bias, Index: p.Index, Len: p.Len})
	env.SetRegisterShadow(offset, exprShadow(p.Data, env))
}

// circularOffset resolves a GetI/PutI's element address at call time:
// base plus the index (wrapped through the file's element count),
// matching the original tool's addr = base + (ix+bias) mod nElems
// (spec Design Note 9.5). Each element occupies one register-offset
// unit, the same convention Get/Put use elsewhere in this engine.
func circularOffset(env HostEnv, g shadowir.GetI) int {
	if g.Len <= 0 {
		return g.Base
	}
	idx := int64(env.Bits(g.Index))
	m := (int(idx) + g.Bias) % g.Len
	if m < 0 {
		m += g.Len
	}
	return g.Base + m
}

// emitOp resolves an operation's operands through env, evaluates it
// through the interpreter and stores the resulting shadow at temp.
func emitOp(site uint64, data shadowir.Expr, temp int, env HostEnv, ip *interp.Interpreter, store *shadow.Store) {
	var op shadowir.OpCode
	var a, b, c shadowir.Expr
	switch v := data.(type) {
	case shadowir.Unop:
		op, a = v.Op, v.Arg
	case shadowir.Binop:
		op, a, b = v.Op, v.Arg1, v.Arg2
	case shadowir.Triop:
		op, a, b, c = v.Op, v.Arg1, v.Arg2, v.Arg3
	}

	aShadow := exprShadow(a, env)
	var bShadow, cShadow *shadow.Value
	var aBits, bBits, cBits uint64
	if a != nil {
		aBits = env.Bits(a)
	}
	if b != nil {
		bShadow = exprShadow(b, env)
		bBits = env.Bits(b)
	}
	if c != nil {
		cShadow = exprShadow(c, env)
		cBits = env.Bits(c)
	}

	machineBits := env.Bits(shadowir.RdTmp{Temp: temp})
	result, ok := ip.Eval(site, op, aShadow, bShadow, cShadow, aBits, bBits, cBits, machineBits)
	if !ok {
		return
	}
	store.Temps().Set(temp, result)
	env.SetTempShadow(temp, result)
}

func exprShadow(e shadowir.Expr, env HostEnv) *shadow.Value {
	if e == nil {
		return nil
	}
	return env.ShadowOf(e)
}

// emitAlias is the run-time callback for a conditional move: the
// real ITE already picked IfTrue or IfFalse, leaving its bit pattern
// in temp; whichever branch's own machine value matches that pattern
// is the shadow the destination temp should inherit.
func emitAlias(ite shadowir.ITE, temp int, env HostEnv, store *shadow.Store) {
	chosen := env.Bits(shadowir.RdTmp{Temp: temp})
	if env.Bits(ite.IfTrue) == chosen {
		v := exprShadow(ite.IfTrue, env)
		store.Temps().Set(temp, v)
		env.SetTempShadow(temp, v)
		return
	}
	if env.Bits(ite.IfFalse) == chosen {
		v := exprShadow(ite.IfFalse, env)
		store.Temps().Set(temp, v)
		env.SetTempShadow(temp, v)
	}
}
