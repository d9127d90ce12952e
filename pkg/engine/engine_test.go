package engine

import (
	"math"
	"testing"

	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/client"
	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

func TestDispatchBeginStageActivatesMonitor(t *testing.T) {
	ctx := New(DefaultConfig(), nil)
	ctx.Dispatch(client.Request{Cmd: client.CmdBeginStage, Arg1: 0})
	if !ctx.Stage.Active(0) {
		t.Fatalf("expected stage 0 to be active after CmdBeginStage")
	}
	ctx.Dispatch(client.Request{Cmd: client.CmdEndStage, Arg1: 0})
	if ctx.Stage.Active(0) {
		t.Fatalf("expected stage 0 to be inactive after CmdEndStage")
	}
}

func TestDispatchBeginStageIndexesIndependently(t *testing.T) {
	ctx := New(DefaultConfig(), nil)
	ctx.Dispatch(client.Request{Cmd: client.CmdBeginStage, Arg1: 3})
	if !ctx.Stage.Active(3) {
		t.Fatalf("expected stage 3 to be active after CmdBeginStage on index 3")
	}
	// guard against the prior collapsed-to-one-stage bug: begin on 3
	// must not be visible at slot 0.
	if ctx.Stage.Active(0) {
		t.Errorf("expected stage 0 untouched by a CmdBeginStage on index 3")
	}
}

func TestDispatchResetClearsAggregator(t *testing.T) {
	ctx := New(DefaultConfig(), nil)
	ctx.Agg.Get(0x10, 0).Observe(ctx.Config.Precision, bigfloatZero(ctx), 0, 0, 0, 0)
	if ctx.Agg.Len() != 1 {
		t.Fatalf("expected one site before reset")
	}
	ctx.Dispatch(client.Request{Cmd: client.CmdReset})
	if ctx.Agg.Len() != 0 {
		t.Errorf("expected aggregator to be empty after reset, got %d", ctx.Agg.Len())
	}
}

func TestDispatchErrorGreaterNoShadowIsFalse(t *testing.T) {
	ctx := New(DefaultConfig(), nil)
	res := ctx.Dispatch(client.Request{Cmd: client.CmdErrorGreater, Arg1: 0xbeef, Arg2: math.Float64bits(0.5)})
	if res.Bool {
		t.Errorf("expected ERROR_GREATER to answer false with no shadow at the address")
	}
}

func TestDispatchErrorGreaterQueriesMemoryShadow(t *testing.T) {
	ctx := New(DefaultConfig(), nil)
	const addr = 0x9000

	// A memory shadow whose current value has drifted far from its
	// originally recorded machine bits.
	v := shadow.NewValue(ctx.Config.Precision, addr, shadowir.Width64, math.Float64bits(1.0), addr)
	v.Value.SetFloat64(2.0)
	ctx.Store.SetMemory(addr, v)

	exceedsSmallBound := ctx.Dispatch(client.Request{Cmd: client.CmdErrorGreater, Arg1: addr, Arg2: math.Float64bits(0.01)})
	if !exceedsSmallBound.Bool {
		t.Errorf("expected a large drift to exceed a small bound")
	}

	exceedsLargeBound := ctx.Dispatch(client.Request{Cmd: client.CmdErrorGreater, Arg1: addr, Arg2: math.Float64bits(10.0)})
	if exceedsLargeBound.Bool {
		t.Errorf("expected the same drift not to exceed a huge bound")
	}
}

func TestDispatchErrorGreaterFalseAfterReset(t *testing.T) {
	ctx := New(DefaultConfig(), nil)
	const addr = 0x9100

	v := shadow.NewValue(ctx.Config.Precision, addr, shadowir.Width64, math.Float64bits(1.0), addr)
	v.Value.SetFloat64(2.0)
	ctx.Store.SetMemory(addr, v)

	before := ctx.Dispatch(client.Request{Cmd: client.CmdErrorGreater, Arg1: addr, Arg2: math.Float64bits(0.01)})
	if !before.Bool {
		t.Fatalf("expected a drifted shadow to exceed the bound before reset")
	}

	ctx.Dispatch(client.Request{Cmd: client.CmdReset})
	after := ctx.Dispatch(client.Request{Cmd: client.CmdErrorGreater, Arg1: addr, Arg2: math.Float64bits(0.01)})
	if after.Bool {
		t.Errorf("expected ERROR_GREATER to answer false once RESET drops the memory shadow")
	}
}

func bigfloatZero(ctx *Context) *bigfloat.Float {
	return bigfloat.New(ctx.Config.Precision)
}
