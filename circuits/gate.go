package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// GateChip records arithmetic over the cells of a Context.
type GateChip struct{}

func (GateChip) Add(ctx *Context, a, b Assigned) Assigned {
	var v fr.Element
	v.Add(&a.val, &b.val)
	return ctx.op(opAdd, v, a, b)
}

func (GateChip) Sub(ctx *Context, a, b Assigned) Assigned {
	var v fr.Element
	v.Sub(&a.val, &b.val)
	return ctx.op(opSub, v, a, b)
}

func (GateChip) Mul(ctx *Context, a, b Assigned) Assigned {
	var v fr.Element
	v.Mul(&a.val, &b.val)
	return ctx.op(opMul, v, a, b)
}

// MulAdd returns a*b + c.
func (GateChip) MulAdd(ctx *Context, a, b, c Assigned) Assigned {
	var v fr.Element
	v.Mul(&a.val, &b.val).Add(&v, &c.val)
	return ctx.op(opMulAdd, v, a, b, c)
}

func (GateChip) Neg(ctx *Context, a Assigned) Assigned {
	var v fr.Element
	v.Neg(&a.val)
	return ctx.op(opNeg, v, a)
}

// IsZero returns 1 when a is zero and 0 otherwise.
func (GateChip) IsZero(ctx *Context, a Assigned) Assigned {
	var v fr.Element
	if a.val.IsZero() {
		v.SetOne()
	}
	return ctx.op(opIsZero, v, a)
}

// IsEqual returns 1 when a == b and 0 otherwise.
func (g GateChip) IsEqual(ctx *Context, a, b Assigned) Assigned {
	return g.IsZero(ctx, g.Sub(ctx, a, b))
}

// Select returns a when sel is 1 and b when sel is 0. sel must already be a bit.
func (GateChip) Select(ctx *Context, sel, a, b Assigned) Assigned {
	// b + sel*(a-b)
	var v fr.Element
	v.Sub(&a.val, &b.val).Mul(&v, &sel.val).Add(&v, &b.val)
	return ctx.op(opSelect, v, sel, a, b)
}

// Not returns 1-a.
func (g GateChip) Not(ctx *Context, a Assigned) Assigned {
	return g.Sub(ctx, ctx.LoadConstantUint64(1), a)
}

// And returns a*b for bits.
func (g GateChip) And(ctx *Context, a, b Assigned) Assigned { return g.Mul(ctx, a, b) }

// Or returns a+b-a*b for bits.
func (g GateChip) Or(ctx *Context, a, b Assigned) Assigned {
	return g.Sub(ctx, g.Add(ctx, a, b), g.Mul(ctx, a, b))
}

// InnerProduct returns sum a[i]*b[i].
func (g GateChip) InnerProduct(ctx *Context, a, b []Assigned) Assigned {
	if len(a) != len(b) {
		panic("circuit: inner product of unequal lengths")
	}
	acc := ctx.LoadZero()
	for i := range a {
		acc = g.MulAdd(ctx, a[i], b[i], acc)
	}
	return acc
}

// Indicator returns n cells where position idx holds 1 and every other 0.
// All cells are zero when idx >= n.
func (g GateChip) Indicator(ctx *Context, idx Assigned, n int) []Assigned {
	out := make([]Assigned, n)
	for i := range out {
		out[i] = g.IsEqual(ctx, idx, ctx.LoadConstantUint64(uint64(i)))
	}
	return out
}

// SelectFromIdx returns cells[idx], or zero when idx is out of range.
func (g GateChip) SelectFromIdx(ctx *Context, cells []Assigned, idx Assigned) Assigned {
	return g.InnerProduct(ctx, cells, g.Indicator(ctx, idx, len(cells)))
}

// NumToBits decomposes a into bits cells, least significant first.
func (g GateChip) NumToBits(ctx *Context, a Assigned, bits int) []Assigned {
	v := a.Value()
	out := make([]Assigned, bits)
	pows := make([]Assigned, bits)
	for i := range out {
		out[i] = ctx.LoadWitnessUint64(uint64(v.Bit(i)))
		g.AssertBit(ctx, out[i])
		pows[i] = ctx.loadConstant(pow2(i))
	}
	g.AssertEqual(ctx, g.InnerProduct(ctx, out, pows), a)
	return out
}

func (GateChip) AssertEqual(ctx *Context, a, b Assigned) { ctx.assert(assertEqual, a, b) }

func (GateChip) AssertBit(ctx *Context, a Assigned) { ctx.assert(assertBit, a, a) }

// AssertIsZero constrains a to zero.
func (GateChip) AssertIsZero(ctx *Context, a Assigned) {
	ctx.assert(assertEqual, a, ctx.LoadZero())
}

// AssertConstant constrains a to the constant v.
func (GateChip) AssertConstant(ctx *Context, a Assigned, v uint64) {
	ctx.assert(assertEqual, a, ctx.LoadConstantUint64(v))
}

func pow2(i int) fr.Element {
	var two, v fr.Element
	two.SetUint64(2)
	v.SetOne()
	for ; i > 0; i-- {
		v.Mul(&v, &two)
	}
	return v
}
