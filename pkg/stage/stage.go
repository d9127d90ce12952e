// Package stage implements the stage monitor (spec §4.5): it tracks a
// watched set of shadow values across loop iterations and flags
// divergence — a value whose relative change between iterations grows
// instead of shrinking, or one that blows past a caller-supplied
// limit. It plays the same "compare a prior snapshot against the
// current one, report what moved" role the teacher's exhaustive
// equivalence verifier plays for candidate instruction sequences,
// just keyed on watched values across iterations instead of on CPU
// state across candidate/target pairs.
package stage

import (
	"sort"

	"github.com/oisee/fpshadow/pkg/bigfloat"
)

// Value is one watched quantity's reading for the current iteration,
// plus its relative change from the prior iteration's reading.
type Value struct {
	Val      *bigfloat.Float
	RelError *bigfloat.Float
}

// Limit is a caller-supplied bound a watched value must not exceed in
// relative error from one iteration to the next. It is installed by
// calling SetLimit directly; no client request installs one.
type Limit struct {
	Limit *bigfloat.Float
}

// Report summarizes one watched key's behavior across the whole
// stage: how many iterations it was observed, and the first and last
// iterations in which its relative error exceeded its limit (0 if it
// never did).
type Report struct {
	Key     uint64
	Count   uint32
	IterMin uint32
	IterMax uint32
	Origin  uint64
}

// Stage is one BEGIN_STAGE..END_STAGE monitoring session (spec §3,
// §4.5). Each slot of a Table holds one Stage, and several slots may
// be active at once; Begin/End/Clear mirror the client-request verbs
// exactly.
type Stage struct {
	prec    uint
	Active  bool
	Count   uint32
	oldVals map[uint64]*Value
	newVals map[uint64]*Value
	limits  map[uint64]*Limit
	reports map[uint64]*Report
}

func New(prec uint) *Stage {
	return &Stage{
		prec:    prec,
		oldVals: make(map[uint64]*Value),
		newVals: make(map[uint64]*Value),
		limits:  make(map[uint64]*Limit),
		reports: make(map[uint64]*Report),
	}
}

// Begin activates monitoring (VG_USERREQ__BEGIN_STAGE). It does not
// clear accumulated state — CLEAR_STAGE does that — so a stage can be
// paused and resumed across a region of code the caller doesn't care
// about (spec §6's client-request semantics).
func (s *Stage) Begin() { s.Active = true }

// End deactivates monitoring and returns every key's final report,
// sorted by key for deterministic output (spec §4.5, §4.6).
func (s *Stage) End() []Report {
	s.Active = false
	out := make([]Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Clear resets all accumulated iteration history and reports
// (VG_USERREQ__CLEAR_STAGE), leaving Active untouched.
func (s *Stage) Clear() {
	s.Count = 0
	s.oldVals = make(map[uint64]*Value)
	s.newVals = make(map[uint64]*Value)
	s.limits = make(map[uint64]*Limit)
	s.reports = make(map[uint64]*Report)
}

// SetLimit installs a relative-error bound for a watched key. The
// ERROR_GREATER client request is a pure query and does not call it.
func (s *Stage) SetLimit(key uint64, limit *bigfloat.Float) {
	s.limits[key] = &Limit{Limit: limit}
}

// Observe records one watched value's reading for the iteration
// currently in progress, computing its relative change from the
// previous iteration's reading if one exists. Returns false if the
// stage is inactive (callers should skip the shadow bookkeeping
// entirely, spec §5's hot-path rule).
func (s *Stage) Observe(key uint64, val *bigfloat.Float, origin uint64) bool {
	if !s.Active {
		return false
	}
	v := &Value{Val: bigfloat.New(s.prec).Set(val)}
	if prev, ok := s.oldVals[key]; ok {
		v.RelError = bigfloat.RelDiff(s.prec, val, prev.Val)
	} else {
		v.RelError = bigfloat.New(s.prec)
	}
	s.newVals[key] = v

	r, ok := s.reports[key]
	if !ok {
		r = &Report{Key: key, Origin: origin}
		s.reports[key] = r
	}
	r.Count++

	if lim, ok := s.limits[key]; ok && v.RelError.Cmp(lim.Limit) > 0 {
		iter := s.Count + 1
		if r.IterMin == 0 || iter < r.IterMin {
			r.IterMin = iter
		}
		if iter > r.IterMax {
			r.IterMax = iter
		}
	}
	return true
}

// EndIteration closes out one pass through the loop body: every
// key's newVal becomes its oldVal for the next iteration's relative
// comparison, and the iteration counter advances (spec §4.5's
// iteration boundary, driven by the host's loop-back-edge detection).
func (s *Stage) EndIteration() {
	s.oldVals = s.newVals
	s.newVals = make(map[uint64]*Value, len(s.oldVals))
	s.Count++
}

// Diverging reports whether a watched key's relative error grew
// monotonically across the last two recorded iterations — the
// signature of scenario 5's Euler-Cromer-vs-Euler divergence and
// scenario 4's accumulated-drift stages (spec §8).
func (s *Stage) Diverging(key uint64) bool {
	cur, ok := s.newVals[key]
	if !ok {
		return false
	}
	prev, ok := s.oldVals[key]
	if !ok {
		return false
	}
	return cur.RelError.Cmp(prev.RelError) > 0
}

// MaxStages bounds the stage table (spec §3 "fixed max stages", §6
// n ∈ [0, MAX_STAGES)): every client-request stage index is taken
// modulo this bound rather than rejected, so a host that numbers
// stages past the limit still gets a usable (if aliased) monitor
// instead of a silently dropped request.
const MaxStages = 16

// Table is the stage table spec §3 and §6 describe: up to MaxStages
// independently addressable Stage monitors, selected by the stage
// index a BEGIN_STAGE/END_STAGE/CLEAR_STAGE client request carries in
// Arg1. Each slot behaves exactly like a standalone Stage; the table
// only adds the indexing spec §6 requires and pkg/engine's Dispatch
// had previously collapsed onto a single implicit stage.
type Table struct {
	prec   uint
	stages [MaxStages]*Stage
}

func NewTable(prec uint) *Table {
	return &Table{prec: prec}
}

func (t *Table) slot(n uint32) *Stage {
	i := int(n) % MaxStages
	if t.stages[i] == nil {
		t.stages[i] = New(t.prec)
	}
	return t.stages[i]
}

func (t *Table) Begin(n uint32)   { t.slot(n).Begin() }
func (t *Table) Clear(n uint32)   { t.slot(n).Clear() }
func (t *Table) End(n uint32) []Report { return t.slot(n).End() }

func (t *Table) SetLimit(n uint32, key uint64, limit *bigfloat.Float) {
	t.slot(n).SetLimit(key, limit)
}

func (t *Table) Observe(n uint32, key uint64, val *bigfloat.Float, origin uint64) bool {
	return t.slot(n).Observe(key, val, origin)
}

func (t *Table) EndIteration(n uint32) { t.slot(n).EndIteration() }

func (t *Table) Diverging(n uint32, key uint64) bool { return t.slot(n).Diverging(key) }

// Active reports whether stage n is currently between a Begin and an
// End (VG_USERREQ__BEGIN_STAGE/END_STAGE's on/off state).
func (t *Table) Active(n uint32) bool { return t.slot(n).Active }
