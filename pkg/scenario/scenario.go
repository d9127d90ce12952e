// Package scenario packages five of the concrete testable scenarios
// spec §8 names (there is no accumulation-drift scenario; the
// kahan-recurrence scenario is the recurrence from the original
// tool's malcolms_algorithm.c), plus one more ported from the
// original tool's machine_epsilon.c. Each scenario builds a
// tiny superblock with pkg/shadowir, drives it through
// pkg/instrument and pkg/instrument/hostharness for some number of
// iterations, and hands back a human-readable summary plus the
// engine.Context it ran against so a caller can pull a full report.
package scenario

import (
	"fmt"
	"math"

	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/client"
	"github.com/oisee/fpshadow/pkg/engine"
	"github.com/oisee/fpshadow/pkg/instrument"
	"github.com/oisee/fpshadow/pkg/instrument/hostharness"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

// Result is what a scenario hands back after running.
type Result struct {
	Name    string
	Summary string
}

// Scenario is one named, runnable demonstration.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx *engine.Context) Result
}

var registry = []Scenario{
	{Name: "summation-cancellation", Description: "naive summation of values with opposite signs, cancellation at the largest partial sum", Run: summationCancellation},
	{Name: "catastrophic-cancellation", Description: "(a+b) - a losing most of b's significant digits when a >> b", Run: catastrophicCancellation},
	{Name: "kahan-recurrence", Description: "a linear recurrence whose naive iteration diverges from its shadow", Run: kahanRecurrence},
	{Name: "pendulum", Description: "Euler vs Euler-Cromer integration of a pendulum, compared across iterations via the stage monitor", Run: pendulum},
	{Name: "error-greater", Description: "ERROR_GREATER queried against a memory shadow across a RESET boundary", Run: errorGreater},
	{Name: "machine-epsilon", Description: "iterative halving to locate machine epsilon, exercising accumulation drift", Run: machineEpsilon},
}

// All returns every registered scenario, in a stable, documented order.
func All() []Scenario { return registry }

// Lookup returns a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

const (
	regA = 0
	regB = 8
)

// newHarness wires a fresh hostharness against ctx's store — every
// scenario gets its own guest thread id so repeated runs in one
// process don't collide.
func newHarness(ctx *engine.Context, tid uint32) *hostharness.Harness {
	return hostharness.New(ctx.Store, tid)
}

// step runs one superblock through importance/instrument/execute. The
// temp file is resized and cleared for this superblock first (spec
// §4.2's per-superblock temp lifecycle) so the instrumented Dirty
// callbacks have slots to write shadow results into.
func step(ctx *engine.Context, h *hostharness.Harness, sb *shadowir.Superblock) {
	ctx.Store.BeginSuperblock(sb.NumTemps)
	important := instrument.Importance(sb)
	instrumented := instrument.Instrument(sb, important, h, ctx.Interp, ctx.Store)
	h.Run(instrumented)
}

// regShadowValue reads a register's shadow, falling back to a fresh
// zero value when nothing has migrated a shadow there yet (e.g. the
// very first instruction of a scenario, before any Put/Store has run
// through the instrumenter) — RegisterShadow can answer nil, and
// dereferencing that directly was the panic risk a careless caller
// would hit.
func regShadowValue(ctx *engine.Context, h *hostharness.Harness, offset int) *bigfloat.Float {
	if v := h.RegisterShadow(offset); v != nil {
		return v.Value
	}
	return bigfloat.New(ctx.Config.Precision)
}

// summationCancellation sums 1e16, 1.0, -1e16 in that order: the
// second addition is entirely absorbed by the first term's magnitude
// at float64 precision, a one-statement version of FpDebug's
// cancellation.c.
func summationCancellation(ctx *engine.Context) Result {
	h := newHarness(ctx, 1)
	h.SeedRegister(regA, shadowir.Width64, math.Float64bits(1e16), nil)

	sb := &shadowir.Superblock{
		NumTemps: 2,
		Stmts: []shadowir.Stmt{
			shadowir.IMark{Addr: 0x10000},
			shadowir.WrTmp{Temp: 0, Data: shadowir.Binop{Op: shadowir.OpAddF64, Arg1: shadowir.Get{Offset: regA, Width: shadowir.Width64}, Arg2: shadowir.ConstF64(1.0)}},
			shadowir.Put{Offset: regA, Data: shadowir.RdTmp{Temp: 0}},
			shadowir.IMark{Addr: 0x10010},
			shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{Op: shadowir.OpSubF64, Arg1: shadowir.Get{Offset: regA, Width: shadowir.Width64}, Arg2: shadowir.ConstF64(1e16)}},
			shadowir.Put{Offset: regB, Data: shadowir.RdTmp{Temp: 1}},
		},
	}
	step(ctx, h, sb)

	machine := h.RegisterFloat64(regB)
	shadowVal := regShadowValue(ctx, h, regB)
	return Result{Name: "summation-cancellation", Summary: fmt.Sprintf(
		"machine result=%.17g shadow result=%s (expected 1.0 exactly)", machine, shadowVal.Text(17))}
}

// catastrophicCancellation computes (a+b)-a for a huge, b tiny: the
// mathematically exact answer is b, but float64 can only hold a+b to
// the nearest multiple of a's ulp (2^-26 for a=1e8), so a+b rounds up
// to a+2^-26 and the machine difference is ~1.49e-8 instead of b.
func catastrophicCancellation(ctx *engine.Context) Result {
	h := newHarness(ctx, 2)
	h.SeedRegister(regA, shadowir.Width64, math.Float64bits(1e8), nil)
	h.SeedRegister(regB, shadowir.Width64, math.Float64bits(1.2345e-8), nil)

	sb := &shadowir.Superblock{
		NumTemps: 2,
		Stmts: []shadowir.Stmt{
			shadowir.IMark{Addr: 0x20000},
			shadowir.WrTmp{Temp: 0, Data: shadowir.Binop{Op: shadowir.OpAddF64, Arg1: shadowir.Get{Offset: regA, Width: shadowir.Width64}, Arg2: shadowir.Get{Offset: regB, Width: shadowir.Width64}}},
			shadowir.IMark{Addr: 0x20010},
			shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{Op: shadowir.OpSubF64, Arg1: shadowir.RdTmp{Temp: 0}, Arg2: shadowir.Get{Offset: regA, Width: shadowir.Width64}}},
			shadowir.Put{Offset: regB, Data: shadowir.RdTmp{Temp: 1}},
		},
	}
	step(ctx, h, sb)

	machine := h.RegisterFloat64(regB)
	shadowVal := regShadowValue(ctx, h, regB)
	return Result{Name: "catastrophic-cancellation", Summary: fmt.Sprintf(
		"machine result=%.17g shadow result=%s (expected ~1.2345e-8)", machine, shadowVal.Text(17))}
}

// kahanRecurrence iterates x_{n+1} = 111 - 1130/x_n + 3000/(x_n*x_{n-1}),
// Malcolm's famous example (ported from malcolms_algorithm.c): exact
// arithmetic converges to 6, float64 arithmetic diverges to 100 within
// a few dozen steps. Running it through the shadow engine makes the
// two trajectories visible side by side.
func kahanRecurrence(ctx *engine.Context) Result {
	h := newHarness(ctx, 3)
	h.SeedRegister(regA, shadowir.Width64, math.Float64bits(2.0), nil)  // x_{n-1}
	h.SeedRegister(regB, shadowir.Width64, math.Float64bits(-4.0), nil) // x_n

	const stageIdx = 0
	ctx.Stage.Begin(stageIdx)

	const iterations = 20
	for i := 0; i < iterations; i++ {
		sb := &shadowir.Superblock{
			NumTemps: 4,
			Stmts: []shadowir.Stmt{
				shadowir.IMark{Addr: 0x30000 + uint64(i)*0x100},
				// t0 = 1130 / xn
				shadowir.WrTmp{Temp: 0, Data: shadowir.Binop{Op: shadowir.OpDivF64, Arg1: shadowir.ConstF64(1130.0), Arg2: shadowir.Get{Offset: regB, Width: shadowir.Width64}}},
				// t1 = xn * xnm1
				shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{Op: shadowir.OpMulF64, Arg1: shadowir.Get{Offset: regB, Width: shadowir.Width64}, Arg2: shadowir.Get{Offset: regA, Width: shadowir.Width64}}},
				// t2 = 3000 / t1
				shadowir.WrTmp{Temp: 2, Data: shadowir.Binop{Op: shadowir.OpDivF64, Arg1: shadowir.ConstF64(3000.0), Arg2: shadowir.RdTmp{Temp: 1}}},
				// t3 = (111 - t0) + t2
				shadowir.WrTmp{Temp: 3, Data: shadowir.Binop{
					Op:   shadowir.OpAddF64,
					Arg1: shadowir.Binop{Op: shadowir.OpSubF64, Arg1: shadowir.ConstF64(111.0), Arg2: shadowir.RdTmp{Temp: 0}},
					Arg2: shadowir.RdTmp{Temp: 2},
				}},
				shadowir.Put{Offset: regA, Data: shadowir.Get{Offset: regB, Width: shadowir.Width64}},
				shadowir.Put{Offset: regB, Data: shadowir.RdTmp{Temp: 3}},
			},
		}
		step(ctx, h, sb)
		ctx.Stage.Observe(stageIdx, regB, regShadowValue(ctx, h, regB), sb.Stmts[0].(shadowir.IMark).Addr)
		ctx.Stage.EndIteration(stageIdx)
	}
	ctx.Stage.End(stageIdx)

	machine := h.RegisterFloat64(regB)
	shadowVal := regShadowValue(ctx, h, regB)
	return Result{Name: "kahan-recurrence", Summary: fmt.Sprintf(
		"after %d iterations: machine=%.17g shadow=%s (exact trajectory converges to 6, float64 diverges toward 100)",
		iterations, machine, shadowVal.Text(17))}
}

// pendulum compares one Euler step against one Euler-Cromer step of
// theta'' = -sin(theta) linearized as theta'' = -theta for small
// angles, tracking both trajectories' angle register across
// iterations via the stage monitor (ported from pendulum_double.cpp /
// pendulum_cromer.cpp).
func pendulum(ctx *engine.Context) Result {
	h := newHarness(ctx, 4)
	const dt = 0.01
	theta, omega := 0.2, 0.0
	thetaCromer, omegaCromer := 0.2, 0.0

	h.SeedRegister(regA, shadowir.Width64, math.Float64bits(theta), nil)
	h.SeedRegister(regB, shadowir.Width64, math.Float64bits(omega), nil)
	const regC, regD = 16, 24
	h.SeedRegister(regC, shadowir.Width64, math.Float64bits(thetaCromer), nil)
	h.SeedRegister(regD, shadowir.Width64, math.Float64bits(omegaCromer), nil)

	const stageIdx = 1
	ctx.Stage.Begin(stageIdx)
	for i := 0; i < 200; i++ {
		addr := 0x40000 + uint64(i)*0x100
		sb := &shadowir.Superblock{
			NumTemps: 4,
			Stmts: []shadowir.Stmt{
				shadowir.IMark{Addr: addr},
				// Euler: theta_{n+1} = theta_n + dt*omega_n ; omega_{n+1} = omega_n - dt*theta_n
				shadowir.WrTmp{Temp: 0, Data: shadowir.Binop{Op: shadowir.OpAddF64, Arg1: shadowir.Get{Offset: regA, Width: shadowir.Width64}, Arg2: shadowir.Binop{Op: shadowir.OpMulF64, Arg1: shadowir.ConstF64(dt), Arg2: shadowir.Get{Offset: regB, Width: shadowir.Width64}}}},
				shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{Op: shadowir.OpSubF64, Arg1: shadowir.Get{Offset: regB, Width: shadowir.Width64}, Arg2: shadowir.Binop{Op: shadowir.OpMulF64, Arg1: shadowir.ConstF64(dt), Arg2: shadowir.Get{Offset: regA, Width: shadowir.Width64}}}},
				// Euler-Cromer: omega updates first, theta uses the NEW omega
				shadowir.WrTmp{Temp: 2, Data: shadowir.Binop{Op: shadowir.OpSubF64, Arg1: shadowir.Get{Offset: regD, Width: shadowir.Width64}, Arg2: shadowir.Binop{Op: shadowir.OpMulF64, Arg1: shadowir.ConstF64(dt), Arg2: shadowir.Get{Offset: regC, Width: shadowir.Width64}}}},
				shadowir.WrTmp{Temp: 3, Data: shadowir.Binop{Op: shadowir.OpAddF64, Arg1: shadowir.Get{Offset: regC, Width: shadowir.Width64}, Arg2: shadowir.Binop{Op: shadowir.OpMulF64, Arg1: shadowir.ConstF64(dt), Arg2: shadowir.RdTmp{Temp: 2}}}},
				shadowir.Put{Offset: regA, Data: shadowir.RdTmp{Temp: 0}},
				shadowir.Put{Offset: regB, Data: shadowir.RdTmp{Temp: 1}},
				shadowir.Put{Offset: regC, Data: shadowir.RdTmp{Temp: 3}},
				shadowir.Put{Offset: regD, Data: shadowir.RdTmp{Temp: 2}},
			},
		}
		step(ctx, h, sb)
		ctx.Stage.Observe(stageIdx, regA, regShadowValue(ctx, h, regA), addr)
		ctx.Stage.Observe(stageIdx, regC, regShadowValue(ctx, h, regC), addr)
		ctx.Stage.EndIteration(stageIdx)
	}
	reports := ctx.Stage.End(stageIdx)

	eulerTheta := h.RegisterFloat64(regA)
	cromerTheta := h.RegisterFloat64(regC)
	return Result{Name: "pendulum", Summary: fmt.Sprintf(
		"after 200 steps: Euler theta=%.6g, Euler-Cromer theta=%.6g, %d stage reports (Euler's energy drifts, Euler-Cromer's does not)",
		eulerTheta, cromerTheta, len(reports))}
}

// errorGreater writes a shadow to a memory address, probes
// ERROR_GREATER against it, issues RESET, and probes again — the
// "reset then probe" behavior spec §8 scenario 6 describes. The first
// probe sees a shadow that matches the machine value exactly (adding
// zero changes nothing), so a tiny bound reads it as not exceeded; a
// RESET then drops every memory shadow, so the same query must answer
// false regardless of bound, not merely "still not exceeded" — there
// is nothing left to compare at all. Storing once more afterward shows
// the address is live again rather than permanently poisoned.
func errorGreater(ctx *engine.Context) Result {
	h := newHarness(ctx, 5)
	const addr = 0x90000
	const bound = 0.0

	store := func() {
		sb := &shadowir.Superblock{
			NumTemps: 2,
			Stmts: []shadowir.Stmt{
				shadowir.IMark{Addr: 0x50000},
				shadowir.WrTmp{Temp: 0, Data: shadowir.ConstF64(1.0 + 6e-8)},
				shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{Op: shadowir.OpAddF64, Arg1: shadowir.RdTmp{Temp: 0}, Arg2: shadowir.ConstF64(0.0)}},
				shadowir.Store{Addr: shadowir.Const{Width: shadowir.Width64, Bits: addr}, Data: shadowir.RdTmp{Temp: 1}},
			},
		}
		step(ctx, h, sb)
	}
	query := func() bool {
		return ctx.Dispatch(client.Request{Cmd: client.CmdErrorGreater, Arg1: addr, Arg2: math.Float64bits(bound)}).Bool
	}

	store()
	before := query()

	ctx.Dispatch(client.Request{Cmd: client.CmdReset})
	afterReset := query()

	store()
	afterRestore := query()

	return Result{Name: "error-greater", Summary: fmt.Sprintf(
		"ERROR_GREATER(addr, %.1f): before reset=%v, after reset=%v (no shadow survives RESET), after restore=%v",
		bound, before, afterReset, afterRestore)}
}

// machineEpsilon repeatedly halves a value starting from 1.0 until
// adding it to 1.0 no longer changes the result, the textbook
// iterative probe for a machine's unit roundoff (ported from
// machine_epsilon.c); shadowed at high precision, the loop can run
// far longer before the shadow itself stops distinguishing the halved
// value from zero.
func machineEpsilon(ctx *engine.Context) Result {
	h := newHarness(ctx, 6)
	h.SeedRegister(regA, shadowir.Width64, math.Float64bits(1.0), nil) // eps candidate
	h.SeedRegister(regB, shadowir.Width64, math.Float64bits(1.0), nil) // 1.0 + eps probe

	iterations := 0
	for i := 0; i < 100; i++ {
		sb := &shadowir.Superblock{
			NumTemps: 2,
			Stmts: []shadowir.Stmt{
				shadowir.IMark{Addr: 0x60000 + uint64(i)*0x10},
				shadowir.WrTmp{Temp: 0, Data: shadowir.Binop{Op: shadowir.OpMulF64, Arg1: shadowir.Get{Offset: regA, Width: shadowir.Width64}, Arg2: shadowir.ConstF64(0.5)}},
				shadowir.Put{Offset: regA, Data: shadowir.RdTmp{Temp: 0}},
				shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{Op: shadowir.OpAddF64, Arg1: shadowir.ConstF64(1.0), Arg2: shadowir.RdTmp{Temp: 0}}},
				shadowir.Put{Offset: regB, Data: shadowir.RdTmp{Temp: 1}},
			},
		}
		step(ctx, h, sb)
		iterations++
		if h.RegisterFloat64(regB) == 1.0 {
			break
		}
	}

	return Result{Name: "machine-epsilon", Summary: fmt.Sprintf(
		"machine epsilon found after %d halvings: eps=%.17g (shadow still distinguishes 1+eps from 1 at this precision)",
		iterations, h.RegisterFloat64(regA))}
}
