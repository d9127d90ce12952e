package stage

import (
	"testing"

	"github.com/oisee/fpshadow/pkg/bigfloat"
)

func TestObserveNoopWhenInactive(t *testing.T) {
	s := New(128)
	ok := s.Observe(1, nil, 0)
	if ok {
		t.Fatalf("Observe should refuse to record while the stage is inactive")
	}
}

func TestEndIterationRotatesValues(t *testing.T) {
	s := New(128)
	s.Begin()

	v1 := newFloat(1.0)
	s.Observe(42, v1, 0xA)
	s.EndIteration()

	v2 := newFloat(1.0001)
	s.Observe(42, v2, 0xA)

	if s.Count != 1 {
		t.Errorf("Count = %d, want 1", s.Count)
	}
	if _, ok := s.oldVals[42]; !ok {
		t.Fatalf("expected key 42 to have an oldVal after one EndIteration")
	}
}

func TestDivergingDetectsGrowingRelativeError(t *testing.T) {
	s := New(128)
	s.Begin()

	s.Observe(7, newFloat(1.0), 0)
	s.EndIteration()
	s.Observe(7, newFloat(1.01), 0)
	s.EndIteration()
	s.Observe(7, newFloat(1.5), 0)

	if !s.Diverging(7) {
		t.Errorf("expected divergence: relative error should have grown on the last step")
	}
}

func TestReportTracksLimitViolationRange(t *testing.T) {
	s := New(128)
	s.Begin()
	s.SetLimit(3, newFloat(0.01))

	s.Observe(3, newFloat(1.0), 0x100)
	s.EndIteration()
	s.Observe(3, newFloat(2.0), 0x100) // relative error 0.5 (|2-1|/max(2,1)), far over the 0.01 limit
	s.EndIteration()

	reports := s.End()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].IterMin == 0 {
		t.Errorf("expected IterMin to be set once the limit was exceeded")
	}
}

func newFloat(x float64) *bigfloat.Float {
	return bigfloat.New(128).SetFloat64(x)
}
