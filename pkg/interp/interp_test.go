package interp

import (
	"math"
	"testing"

	"github.com/oisee/fpshadow/pkg/aggregate"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

func TestEvalAddNoShadowPromotesMachineValue(t *testing.T) {
	agg := aggregate.NewTable(128)
	ip := NewInterpreter(128, agg)

	aBits := math.Float64bits(1.0)
	bBits := math.Float64bits(2.0)
	machineBits := math.Float64bits(3.0)

	result, ok := ip.Eval(0x1000, shadowir.OpAddF64, nil, nil, nil, aBits, bBits, 0, machineBits)
	if !ok {
		t.Fatalf("AddF64 should be supported")
	}
	if got := result.Value.Float64(); got != 3.0 {
		t.Errorf("shadow result = %v, want 3.0", got)
	}
	if ip.MissingShadow != 2 {
		t.Errorf("MissingShadow = %d, want 2", ip.MissingShadow)
	}
}

func TestEvalUnsupportedOpcodeCountsAndRefuses(t *testing.T) {
	ip := NewInterpreter(128, aggregate.NewTable(128))
	_, ok := ip.Eval(0x2000, shadowir.OpSinF64, nil, nil, nil, 0, 0, 0, 0)
	if ok {
		t.Fatalf("SinF64 must be reported unsupported")
	}
	if ip.Unsupported != 1 {
		t.Errorf("Unsupported = %d, want 1", ip.Unsupported)
	}
}

func TestEvalSubtractionRecordsCancellation(t *testing.T) {
	agg := aggregate.NewTable(128)
	ip := NewInterpreter(128, agg)

	aBits := math.Float64bits(1.0000001)
	bBits := math.Float64bits(1.0)
	machineBits := math.Float64bits(1.0000001 - 1.0)

	result, ok := ip.Eval(0x3000, shadowir.OpSubF64, nil, nil, nil, aBits, bBits, 0, machineBits)
	if !ok {
		t.Fatalf("SubF64 should be supported")
	}
	if result.Canceled <= 0 {
		t.Errorf("expected cancellation to be recorded, got Canceled=%d", result.Canceled)
	}

	mv, ok := agg.Lookup(0x3000)
	if !ok {
		t.Fatalf("expected a MeanValue recorded at site 0x3000")
	}
	if mv.Count != 1 {
		t.Errorf("Count = %d, want 1", mv.Count)
	}
	if mv.CanceledMax <= 0 {
		t.Errorf("CanceledMax = %d, want > 0", mv.CanceledMax)
	}
}

func TestCatalogUnsupportedOpsMatchNonGoals(t *testing.T) {
	for _, op := range []shadowir.OpCode{
		shadowir.OpMAddF64, shadowir.OpMSubF64,
		shadowir.OpRecipEstF64, shadowir.OpRSqrtEstF64,
		shadowir.OpSinF64, shadowir.OpCosF64, shadowir.OpTanF64, shadowir.OpYlogYtoXF64,
	} {
		if Catalog[op].Supported {
			t.Errorf("opcode %v expected unsupported", op)
		}
	}
}
