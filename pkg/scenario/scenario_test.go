package scenario

import (
	"strings"
	"testing"

	"github.com/oisee/fpshadow/pkg/engine"
)

func TestAllScenariosRun(t *testing.T) {
	for _, s := range All() {
		ctx := engine.New(engine.DefaultConfig(), nil)
		result := s.Run(ctx)
		if result.Summary == "" {
			t.Errorf("scenario %s returned an empty summary", s.Name)
		}
	}
}

func TestSummationCancellationShowsMachineDivergesFromShadow(t *testing.T) {
	ctx := engine.New(engine.DefaultConfig(), nil)
	result := summationCancellation(ctx)
	if !strings.Contains(result.Summary, "machine result=") {
		t.Errorf("unexpected summary: %s", result.Summary)
	}
	// 1e16+1 rounds back to 1e16 in float64, so the machine result is 0
	// while the shadow keeps the 1.
	if !strings.Contains(result.Summary, "machine result=0 ") || !strings.Contains(result.Summary, "shadow result=1 ") {
		t.Errorf("expected machine 0 and shadow 1, got summary: %s", result.Summary)
	}
}

func TestLookupUnknownScenario(t *testing.T) {
	if _, ok := Lookup("does-not-exist"); ok {
		t.Errorf("expected Lookup to fail for an unregistered name")
	}
}
