// Package shadow holds the ShadowValue record (spec §3) and the
// three-address-space Store that keys shadow values by memory
// address, guest register offset, or superblock temporary — the
// direct Go analogue of the original tool's per-address-space hash
// tables (fd_include.h's ShadowValue, keyed by UWord).
package shadow

import (
	"math"

	"github.com/oisee/fpshadow/pkg/bigfloat"
	"github.com/oisee/fpshadow/pkg/shadowir"
)

// OrgType records the machine width a ShadowValue was created to
// mirror, so the engine can tell a legitimately narrowed result from
// one computed at the wrong width.
type OrgType uint8

const (
	OrgInvalid OrgType = iota
	OrgFloat32
	OrgFloat64
)

// Value is a single shadow value: the arbitrary-precision mirror of
// one machine floating-point value, plus the bookkeeping spec §3
// requires to report error, cancellation and provenance for it.
//
// Lifecycle states (spec §3, invariants I1–I5):
//   - Active==false means every consumer must treat this slot as
//     absent and fall back to "shadow == machine value" (spec §4.3
//     step 2's missing-shadow rule).
//   - Version starts at 1 and is bumped by Retire and Reset, so a
//     holder of a recycled slot can detect the change; Store writes
//     replace the pointer in a slot and leave Version alone.
type Value struct {
	Key     uint64 // address, register offset, or temp index this value lives at
	Value   *bigfloat.Float
	OrgType OrgType
	OrgBits uint64 // raw machine bit pattern at creation time

	OpCount uint64          // shadow operations chained into this value since its origin
	Origin  uint64          // instruction address that created this value's lineage
	LastOp  shadowir.OpCode // the operation that most recently produced this value, 0 if migrated rather than computed

	Canceled     int // exponent of the largest cancellation seen in this lineage (spec §4.3 step 5)
	CancelOrigin uint64

	Active  bool
	Version uint32
}

// NewValue seeds a fresh shadow value from a concrete machine float,
// matching spec §4.3 step 2's "promote machine value to shadow" path.
func NewValue(prec uint, key uint64, width shadowir.Width, bits uint64, origin uint64) *Value {
	v := &Value{
		Key:     key,
		Value:   bigfloat.New(prec),
		Active:  true,
		Version: 1,
		Origin:  origin,
		OrgBits: bits,
	}
	if width == shadowir.Width32 {
		v.OrgType = OrgFloat32
		v.Value.SetFloat32(math.Float32frombits(uint32(bits)))
	} else {
		v.OrgType = OrgFloat64
		v.Value.SetFloat64(math.Float64frombits(bits))
	}
	return v
}

// Retire marks a value inactive without releasing its Float, so the
// slot (and its big.Float's internal buffer) can be reused by Reset
// on the next write to the same key — spec §4.2's temp-slot reuse.
func (v *Value) Retire() {
	v.Active = false
	v.Version++
}

// Reset reinitializes a retired (or fresh) slot for a new value,
// bumping Version so any stale alias observes the change.
func (v *Value) Reset(key uint64, origin uint64) {
	v.Key = key
	v.Origin = origin
	v.OpCount = 0
	v.LastOp = 0
	v.Canceled = 0
	v.CancelOrigin = 0
	v.Active = true
	v.Version++
}
