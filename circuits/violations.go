package circuit

import (
	"fmt"
	"math/big"
)

// Violation is a recorded constraint that the phase-0 values do not satisfy.
type Violation struct {
	Kind   string
	Cells  []int
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %v: %s", v.Kind, v.Cells, v.Detail)
}

// Violations evaluates every recorded assertion and range check natively and
// returns all failures. Phase-1 gadgets are only checked by the solver.
func (c *Circuit) Violations() []Violation {
	if c.prog == nil {
		return nil
	}
	b := c.prog.builder
	ctx := b.ctx
	var out []Violation
	for _, a := range ctx.asserts {
		va, vb := ctx.cells[a.a].val, ctx.cells[a.b].val
		switch a.kind {
		case assertEqual:
			if !va.Equal(&vb) {
				out = append(out, Violation{
					Kind:   "equal",
					Cells:  []int{a.a, a.b},
					Detail: fmt.Sprintf("%s != %s", va.String(), vb.String()),
				})
			}
		case assertBit:
			if !va.IsZero() && !va.IsOne() {
				out = append(out, Violation{
					Kind:   "bit",
					Cells:  []int{a.a},
					Detail: fmt.Sprintf("%s is not boolean", va.String()),
				})
			}
		}
	}
	for _, r := range ctx.ranges {
		var v big.Int
		ctx.cells[r.a].val.BigInt(&v)
		if v.BitLen() > r.bits {
			out = append(out, Violation{
				Kind:   "range",
				Cells:  []int{r.a},
				Detail: fmt.Sprintf("%s exceeds %d bits", v.String(), r.bits),
			})
		}
	}
	return out
}
