package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oisee/fpshadow/pkg/aggregate"
	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/shadow"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

func TestPrintErrorNoRecord(t *testing.T) {
	r := New(128, aggregate.NewTable(128), shadow.NewStore(), nil)
	line := r.PrintError(0xdead)
	if !strings.Contains(line, "no shadow error recorded") {
		t.Errorf("unexpected line: %q", line)
	}
}

func TestCondPrintErrorRespectsThreshold(t *testing.T) {
	agg := aggregate.NewTable(128)
	mv := agg.Get(0x10, shadowir.OpAddF64)
	mv.Observe(128, bigfloat.New(128).SetFloat64(1e-10), 0, 0, 0, 0)

	r := New(128, agg, shadow.NewStore(), nil)
	if _, ok := r.CondPrintError(0x10, bigfloat.New(128).SetFloat64(1.0)); ok {
		t.Errorf("expected no line: error is well below threshold")
	}
	if _, ok := r.CondPrintError(0x10, bigfloat.New(128).SetFloat64(1e-20)); !ok {
		t.Errorf("expected a line: error exceeds the tiny threshold")
	}
}

func TestDumpErrorGraphWritesSummaryAndGraph(t *testing.T) {
	agg := aggregate.NewTable(128)
	root := agg.Get(0x20, shadowir.OpSubF64)
	root.Observe(128, bigfloat.New(128).SetFloat64(0.5), 10, 10, 0x10, 0)
	agg.Get(0x10, shadowir.OpAddF64).Observe(128, bigfloat.New(128).SetFloat64(1e-12), 0, 0, 0, 0)

	r := New(128, agg, shadow.NewStore(), nil)
	var buf bytes.Buffer
	if err := r.DumpErrorGraph(&buf); err != nil {
		t.Fatalf("DumpErrorGraph: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "per-site error summary") {
		t.Errorf("missing summary header in output: %s", out)
	}
	if !strings.Contains(out, "provenance graph") {
		t.Errorf("missing graph header in output: %s", out)
	}
}
