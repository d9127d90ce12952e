package instrument

import (
	"math"
	"testing"

	"github.com/oisee/fpshadow/pkg/aggregate"
	"github.com/oisee/fpshadow/pkg/interp"
	"github.com/oisee/fpshadow/pkg/instrument/hostharness"
	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

func TestImportanceDropsDeadTemp(t *testing.T) {
	sb := &shadowir.Superblock{
		NumTemps: 3,
		Stmts: []shadowir.Stmt{
			shadowir.IMark{Addr: 0x1000},
			shadowir.WrTmp{Temp: 0, Data: shadowir.Get{Offset: 0, Width: shadowir.Width64}},
			shadowir.WrTmp{Temp: 1, Data: shadowir.ConstF64(2.0)}, // never consumed
			shadowir.Put{Offset: 8, Data: shadowir.RdTmp{Temp: 0}},
		},
	}
	important := Importance(sb)
	if !important[0] {
		t.Errorf("temp 0 feeds a Put, should be important")
	}
	if important[1] {
		t.Errorf("temp 1 is dead, should not be important")
	}
}

func TestInstrumentAndRunAccumulatesShadow(t *testing.T) {
	store := shadow.NewStore()
	agg := aggregate.NewTable(128)
	ip := interp.NewInterpreter(128, agg)

	h := hostharness.New(store, 0)
	h.SeedRegister(0, shadowir.Width64, math.Float64bits(0.1), nil)

	sb := &shadowir.Superblock{
		NumTemps: 2,
		Stmts: []shadowir.Stmt{
			shadowir.IMark{Addr: 0x2000},
			shadowir.WrTmp{Temp: 0, Data: shadowir.Get{Offset: 0, Width: shadowir.Width64}},
			shadowir.WrTmp{Temp: 1, Data: shadowir.Binop{
				Op:   shadowir.OpAddF64,
				Arg1: shadowir.RdTmp{Temp: 0},
				Arg2: shadowir.ConstF64(0.2),
			}},
			shadowir.Put{Offset: 8, Data: shadowir.RdTmp{Temp: 1}},
		},
	}

	store.BeginSuperblock(sb.NumTemps)
	important := Importance(sb)
	instrumented := Instrument(sb, important, h, ip, store)
	h.Run(instrumented)

	shadowResult := store.Temps().Get(1)
	if shadowResult == nil || !shadowResult.Active {
		t.Fatalf("expected an active shadow for temp 1")
	}

	want := 0.1 + 0.2
	if got := shadowResult.Value.Float64(); math.Abs(got-want) > 1e-9 {
		t.Errorf("shadow value = %v, want ~%v", got, want)
	}

	if agg.Len() != 1 {
		t.Errorf("expected one observed site, got %d", agg.Len())
	}
}

func TestInstrumentMigratesShadowThroughStoreAndLoad(t *testing.T) {
	store := shadow.NewStore()
	agg := aggregate.NewTable(128)
	ip := interp.NewInterpreter(128, agg)

	h := hostharness.New(store, 0)
	h.SeedRegister(0, shadowir.Width64, math.Float64bits(0.1), nil)

	const addr = 0x4000

	// Put regA's shadow into a register via an arithmetic op, store it
	// to memory, then load it back into another temp — every hop
	// should carry the shadow along, not just the machine bits.
	sb := &shadowir.Superblock{
		NumTemps: 2,
		Stmts: []shadowir.Stmt{
			shadowir.IMark{Addr: 0x3000},
			shadowir.WrTmp{Temp: 0, Data: shadowir.Binop{
				Op:   shadowir.OpAddF64,
				Arg1: shadowir.Get{Offset: 0, Width: shadowir.Width64},
				Arg2: shadowir.ConstF64(0.2),
			}},
			shadowir.Store{Addr: shadowir.Const{Width: shadowir.Width64, Bits: addr}, Data: shadowir.RdTmp{Temp: 0}},
			shadowir.WrTmp{Temp: 1, Data: shadowir.Load{Addr: shadowir.Const{Width: shadowir.Width64, Bits: addr}, Width: shadowir.Width64}},
			shadowir.Put{Offset: 8, Data: shadowir.RdTmp{Temp: 1}},
		},
	}

	store.BeginSuperblock(sb.NumTemps)
	important := Importance(sb)
	instrumented := Instrument(sb, important, h, ip, store)
	h.Run(instrumented)

	memShadow := store.Memory(addr)
	if memShadow == nil || !memShadow.Active {
		t.Fatalf("expected the store to migrate a shadow into memory")
	}

	loaded := store.Temps().Get(1)
	if loaded == nil || !loaded.Active {
		t.Fatalf("expected the load to migrate memory's shadow into temp 1")
	}
	want := 0.1 + 0.2
	if got := loaded.Value.Float64(); math.Abs(got-want) > 1e-9 {
		t.Errorf("loaded shadow value = %v, want ~%v", got, want)
	}
}
