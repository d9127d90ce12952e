// Package aggregate holds the per-site MeanValue record and the table
// that keys it by instruction address (spec §3, §4.3 step 7) — the
// direct analogue of the teacher's result.Table, a mutex-protected
// slice with a sorted accessor, except keyed by site instead of
// appended in discovery order.
package aggregate

import (
	"math"
	"sort"
	"sync"

	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

// MeanValue accumulates error statistics for every shadow operation
// ever executed at one instruction address, spec §3's process-wide
// per-site table.
type MeanValue struct {
	Key  uint64 // instruction address
	Op   shadowir.OpCode
	Count uint64

	Sum *bigfloat.Float // running sum of relative error (reldiff(shadow, machine)) seen at this site
	Max *bigfloat.Float // largest relative error seen at this site

	CanceledMax int
	CanceledSum int64

	CancellationBadnessMax uint32
	CancellationBadnessSum uint64

	Arg1, Arg2 uint64 // origin addresses of the two most recent operands, for the provenance graph

	Special bool // the machine result was NaN or ±∞ at least once (spec §4.6's special-values report)

	Overflow bool // Sum/CanceledSum saturated (spec §7's recoverable overflow case)

	visited bool // per-dump traversal flag, reset by the reporter before each walk (spec Design Note 9's redesign of the original's sticky flag)
}

func newMeanValue(prec uint, key uint64, op shadowir.OpCode) *MeanValue {
	return &MeanValue{
		Key: key,
		Op:  op,
		Sum: bigfloat.New(prec),
		Max: bigfloat.New(prec),
	}
}

// Visited/SetVisited/ClearVisited back the reporter's per-dump
// traversal set (spec Design Note 9.7): the flag lives on the record
// for locality but is only ever meaningful during one reporter pass;
// the reporter calls Table.Reset to clear every record's flag before
// each pass.
func (m *MeanValue) Visited() bool    { return m.visited }
func (m *MeanValue) SetVisited(v bool) { m.visited = v }

// Observe folds one operation's relative error and cancellation
// reading into the site's running statistics (spec §3, §4.3 step 7).
func (m *MeanValue) Observe(prec uint, relErr *bigfloat.Float, canceled int, badness uint32, origin1, origin2 uint64) {
	m.Count++
	m.Sum.Add(m.Sum, relErr)
	if m.Sum.Sign() != 0 && !m.Sum.IsNumber() {
		m.Overflow = true
	}
	if relErr.Cmp(m.Max) > 0 {
		m.Max.Set(relErr)
	}
	if canceled > m.CanceledMax {
		m.CanceledMax = canceled
	}
	if canceled > 0 && m.CanceledSum > math.MaxInt64-int64(canceled) {
		m.Overflow = true
	}
	m.CanceledSum += int64(canceled)
	if badness > m.CancellationBadnessMax {
		m.CancellationBadnessMax = badness
	}
	m.CancellationBadnessSum += uint64(badness)
	m.Arg1, m.Arg2 = origin1, origin2
}

// MeanRelError is Sum/Count, spec §3 and §4.6's primary reported
// metric: the mean of reldiff(shadow, machine) across every operation
// observed at this site.
func (m *MeanValue) MeanRelError(prec uint) *bigfloat.Float {
	if m.Count == 0 {
		return bigfloat.New(prec)
	}
	out := bigfloat.New(prec)
	out.Set(m.Sum)
	divisor := bigfloat.New(prec).SetInt64(int64(m.Count))
	return out.Div(out, divisor)
}

// Table is the process-wide per-site aggregator (spec §3): one
// MeanValue per distinct instruction address, filled in by the
// interpreter and read by the reporter.
type Table struct {
	prec uint
	mu   sync.Mutex
	byKey map[uint64]*MeanValue
}

func NewTable(prec uint) *Table {
	return &Table{prec: prec, byKey: make(map[uint64]*MeanValue)}
}

// Get returns the MeanValue for a site, creating it on first use.
func (t *Table) Get(key uint64, op shadowir.OpCode) *MeanValue {
	t.mu.Lock()
	defer t.mu.Unlock()
	mv, ok := t.byKey[key]
	if !ok {
		mv = newMeanValue(t.prec, key, op)
		t.byKey[key] = mv
	}
	return mv
}

// Lookup returns the MeanValue for a site without creating it.
func (t *Table) Lookup(key uint64) (*MeanValue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mv, ok := t.byKey[key]
	return mv, ok
}

// Len reports how many distinct sites have been observed.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

// Sites returns every observed MeanValue sorted by mean relative
// error, descending — the teacher's Table.Rules() sorts by bytes then
// cycles saved; this sorts by the metric the reporter leads with.
func (t *Table) Sites() []*MeanValue {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*MeanValue, 0, len(t.byKey))
	for _, mv := range t.byKey {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MeanRelError(t.prec).Cmp(out[j].MeanRelError(t.prec)) > 0
	})
	return out
}

// Reset clears every record's per-dump visited flag, called by the
// reporter before each graph traversal (spec Design Note 9.7).
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, mv := range t.byKey {
		mv.visited = false
	}
}
