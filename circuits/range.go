package circuit

import "math/bits"

// RangeChip records range checks. Checks of at most LookupBits bits are served
// by a single lookup table, wider ones by gnark's range checker.
type RangeChip struct {
	lookupBits int
	gate       GateChip
}

func (r *RangeChip) Gate() GateChip { return r.gate }

func (r *RangeChip) LookupBits() int { return r.lookupBits }

// CheckBits constrains 0 <= a < 2^n.
func (r *RangeChip) CheckBits(ctx *Context, a Assigned, n int) {
	ctx.rangeCheck(a, n)
}

// CheckLessThanConst constrains 0 <= a < bound.
func (r *RangeChip) CheckLessThanConst(ctx *Context, a Assigned, bound uint64) {
	if bound == 0 {
		panic("circuit: empty range")
	}
	n := bits.Len64(bound - 1)
	r.CheckBits(ctx, a, n)
	r.CheckBits(ctx, r.gate.Sub(ctx, ctx.LoadConstantUint64(bound-1), a), n)
}

// IsLessThanConst returns a bit that is 1 iff a < bound, given a < 2^n and bound <= 2^n.
func (r *RangeChip) IsLessThanConst(ctx *Context, a Assigned, bound uint64, n int) Assigned {
	var lt uint64
	if a.Value().IsUint64() && a.Uint64() < bound {
		lt = 1
	}
	bit := ctx.LoadWitnessUint64(lt)
	r.gate.AssertBit(ctx, bit)
	below := r.gate.Sub(ctx, ctx.LoadConstantUint64(bound-1), a)
	above := r.gate.Sub(ctx, a, ctx.LoadConstantUint64(bound))
	r.CheckBits(ctx, r.gate.Select(ctx, bit, below, above), n)
	return bit
}
