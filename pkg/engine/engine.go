// Package engine is the top-level Context spec Design Note 9.1 asks
// for: the single struct a host translator embeds, owning every
// process-wide table (shadow store, per-site aggregator, stage table)
// and wiring them to the interpreter, instrumenter and reporter. It
// also implements the client-request dispatcher (spec §4.7) so a host
// needs exactly one entry point into the engine.
package engine

import (
	"fmt"
	"math"

	"github.com/oisee/fpshadow/pkg/aggregate"
	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/client"
	"github.com/oisee/fpshadow/pkg/interp"
	"github.com/oisee/fpshadow/pkg/report"
	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
	"github.com/oisee/fpshadow/pkg/stage"
)

// Config holds the CLI-exposed options (spec §6): shadow precision,
// a mean-error report threshold, and a set of toggles. Only Precision
// and IgnoreEnd are read by the engine; the other fields are stored
// here but no component reads them, so they change no behavior.
type Config struct {
	Precision        uint
	MeanErrorReport  float64 // --mean-error: mean relative error report threshold (not read)
	IgnoreLibraries  bool    // --ignore-libraries: shared-library filter toggle (not read)
	IgnoreAccurate   bool    // --ignore-accurate: accurate-site filter toggle (not read)
	SimOriginal      bool    // --sim-original: machine-precision simulation toggle (not read)
	AnalyzeAll       bool    // --analyze-all: shadow-everything toggle (not read)
	BadCancellations bool    // --bad-cancellations: cancellation-only site toggle (not read)
	IgnoreEnd        bool    // --ignore-end: suppress the final whole-run summary on VG_USERREQ__END
}

// DefaultConfig mirrors the original tool's defaults: shadow precision
// wide enough that the shadow's own rounding error is negligible next
// to anything a float32/float64 computation produces, spec §6's
// --precision default of 120 bits.
func DefaultConfig() Config {
	return Config{
		Precision:       bigfloat.DefaultPrecision,
		MeanErrorReport: 0,
	}
}

// Context is the process-wide engine instance (spec §5: exactly one
// callback touches it at a time, so it carries no internal locking on
// the hot path — pkg/aggregate's table is the one piece of state the
// reporter also touches concurrently with a running guest thread, and
// it locks internally for that reason alone).
type Context struct {
	Config Config

	Store  *shadow.Store
	Agg    *aggregate.Table
	Stage  *stage.Table
	Interp *interp.Interpreter
	Report *report.Reporter

	resetCount uint64
}

// New builds a fully wired Context from Config, the direct Go analogue
// of the teacher's NewWorkerPool constructor: one call, every
// component ready to use.
func New(cfg Config, dbg report.DebugInfo) *Context {
	if cfg.Precision == 0 {
		cfg.Precision = bigfloat.DefaultPrecision
	}
	agg := aggregate.NewTable(cfg.Precision)
	store := shadow.NewStore()
	return &Context{
		Config: cfg,
		Store:  store,
		Agg:    agg,
		Stage:  stage.NewTable(cfg.Precision),
		Interp: interp.NewInterpreter(cfg.Precision, agg),
		Report: report.New(cfg.Precision, agg, store, dbg),
	}
}

// Dispatch executes one client Request against the engine (spec §4.7,
// §6); it is the single method a host translator's client-request
// trap calls into.
func (c *Context) Dispatch(req client.Request) client.Result {
	switch req.Cmd {
	case client.CmdPrintError:
		fmt.Println(c.Report.PrintError(req.Arg1))
	case client.CmdCondPrintError:
		threshold := bigfloat.New(c.Config.Precision).SetFloat64(math.Float64frombits(req.Arg2))
		if line, ok := c.Report.CondPrintError(req.Arg1, threshold); ok {
			fmt.Println(line)
		}
	case client.CmdDumpErrorGraph:
		_ = c.Report.DumpErrorGraphFile(stringArg(req.Arg1))
	case client.CmdCondDumpErrorGraph:
		threshold := bigfloat.New(c.Config.Precision).SetFloat64(math.Float64frombits(req.Arg2))
		if mv, ok := c.Agg.Lookup(req.Arg1); ok && mv.MeanRelError(c.Config.Precision).Cmp(threshold) > 0 {
			_ = c.Report.DumpErrorGraphFile(stringArg(req.Arg1))
		}
	case client.CmdBeginStage:
		c.Stage.Begin(uint32(req.Arg1))
	case client.CmdEndStage:
		c.Stage.End(uint32(req.Arg1))
	case client.CmdClearStage:
		c.Stage.Clear(uint32(req.Arg1))
	case client.CmdErrorGreater:
		// ERROR_GREATER(addr, bound) -> bool (spec §4.7, §8 scenario 6):
		// a pure query against the memory shadow currently at addr,
		// not an installer of a persistent limit. No shadow present
		// (never written, or dropped by a prior RESET) answers false.
		bound := bigfloat.New(c.Config.Precision).SetFloat64(math.Float64frombits(req.Arg2))
		exceeds := false
		if v := c.Store.Memory(req.Arg1); v != nil && v.Active {
			orig := floatFromBits(c.Config.Precision, v.OrgType, v.OrgBits)
			relErr := bigfloat.RelDiff(c.Config.Precision, v.Value, orig)
			exceeds = relErr.Cmp(bound) > 0
		}
		return client.Result{Bool: exceeds}
	case client.CmdReset:
		c.reset()
	case client.CmdInsertShadow:
		v := shadow.NewValue(c.Config.Precision, req.Arg1, shadowir.Width(req.Arg3), req.Arg2, req.Arg1)
		c.Store.SetMemory(req.Arg1, v)
		return client.Result{Value: req.Arg1}
	case client.CmdBegin:
		// no-op marker: the engine is always "on" once constructed.
	case client.CmdEnd:
		if !c.Config.IgnoreEnd {
			fmt.Printf("fpshadow: %d sites observed across %d resets\n", c.Agg.Len(), c.resetCount)
		}
	}
	return client.Result{}
}

// floatFromBits decodes a raw machine bit pattern at the width it was
// recorded with, used to recover a shadow value's original machine
// reading for a relative-error comparison (spec §4.3 step 7).
func floatFromBits(prec uint, orgType shadow.OrgType, bits uint64) *bigfloat.Float {
	f := bigfloat.New(prec)
	if orgType == shadow.OrgFloat32 {
		return f.SetFloat32(math.Float32frombits(uint32(bits)))
	}
	return f.SetFloat64(math.Float64frombits(bits))
}

// reset clears every process-wide table (VG_USERREQ__RESET), used
// between independent runs of the same instrumented program within
// one process (spec §4.7). The Store is cleared in place rather than
// replaced, so a host holding onto its existing *shadow.Store keeps
// observing state through the same object.
func (c *Context) reset() {
	c.resetCount++
	c.Store.Clear()
	c.Agg = aggregate.NewTable(c.Config.Precision)
	c.Stage = stage.NewTable(c.Config.Precision)
	c.Interp = interp.NewInterpreter(c.Config.Precision, c.Agg)
	c.Report = report.New(c.Config.Precision, c.Agg, c.Store, c.Report.Debug)
}

func stringArg(key uint64) string {
	return fmt.Sprintf("fpshadow-report-%x.txt", key)
}
