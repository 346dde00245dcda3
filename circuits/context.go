package circuit

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

type cellKind uint8

const (
	cellWitness cellKind = iota
	cellConstant
	cellOp
)

type opKind uint8

const (
	opAdd opKind = iota
	opSub
	opMul
	opMulAdd
	opNeg
	opIsZero
	opSelect
)

type cell struct {
	kind cellKind
	op   opKind
	args [3]int
	slot int // index into Circuit.Witness for witness cells
	val  fr.Element
}

type assertKind uint8

const (
	assertEqual assertKind = iota
	assertBit
)

type assertion struct {
	kind assertKind
	a, b int
}

type rangeCheck struct {
	a    int
	bits int
}

// Assigned is a handle to a cell of a Context together with its native value.
//
// The zero value refers to the constant zero every Context starts with.
type Assigned struct {
	idx int
	val fr.Element
}

// Index returns the position of the cell inside its Context.
func (a Assigned) Index() int { return a.idx }

// Fr returns the native field value of the cell.
func (a Assigned) Fr() fr.Element { return a.val }

// Value returns the native value of the cell as a big integer.
func (a Assigned) Value() *big.Int {
	var b big.Int
	return a.val.BigInt(&b)
}

// Uint64 returns the low 64 bits of the cell value.
func (a Assigned) Uint64() uint64 { return a.val.Uint64() }

// Context is the append-only phase-0 arena. Every cell carries its value at
// assignment time; gates and assertions are recorded and replayed against the
// constraint system when the owning Circuit is defined.
type Context struct {
	cells     []cell
	nbWitness int
	asserts   []assertion
	ranges    []rangeCheck
	constants map[fr.Element]int
	frozen    bool
}

func newContext() *Context {
	ctx := &Context{constants: make(map[fr.Element]int)}
	var zero fr.Element
	ctx.constants[zero] = ctx.push(cell{kind: cellConstant})
	return ctx
}

func (ctx *Context) push(c cell) int {
	if ctx.frozen {
		panic("circuit: context is frozen")
	}
	ctx.cells = append(ctx.cells, c)
	return len(ctx.cells) - 1
}

func (ctx *Context) ref(i int) Assigned { return Assigned{idx: i, val: ctx.cells[i].val} }

// NbCells returns the number of cells allocated so far.
func (ctx *Context) NbCells() int { return len(ctx.cells) }

// NbWitness returns the number of private witness cells.
func (ctx *Context) NbWitness() int { return ctx.nbWitness }

// LoadWitness allocates a private witness cell holding v.
func (ctx *Context) LoadWitness(v *big.Int) Assigned {
	var e fr.Element
	e.SetBigInt(v)
	return ctx.loadWitness(e)
}

// LoadWitnessUint64 allocates a private witness cell holding v.
func (ctx *Context) LoadWitnessUint64(v uint64) Assigned {
	var e fr.Element
	e.SetUint64(v)
	return ctx.loadWitness(e)
}

// LoadWitnessBytes allocates one witness cell per byte.
func (ctx *Context) LoadWitnessBytes(b []byte) []Assigned {
	out := make([]Assigned, len(b))
	for i, v := range b {
		out[i] = ctx.LoadWitnessUint64(uint64(v))
	}
	return out
}

func (ctx *Context) loadWitness(e fr.Element) Assigned {
	slot := ctx.nbWitness
	ctx.nbWitness++
	return ctx.ref(ctx.push(cell{kind: cellWitness, slot: slot, val: e}))
}

// LoadConstant returns a constant cell holding v. Constants are deduplicated.
func (ctx *Context) LoadConstant(v *big.Int) Assigned {
	var e fr.Element
	e.SetBigInt(v)
	return ctx.loadConstant(e)
}

// LoadConstantUint64 returns a constant cell holding v.
func (ctx *Context) LoadConstantUint64(v uint64) Assigned {
	var e fr.Element
	e.SetUint64(v)
	return ctx.loadConstant(e)
}

// LoadZero returns the constant zero cell.
func (ctx *Context) LoadZero() Assigned { return ctx.ref(0) }

func (ctx *Context) loadConstant(e fr.Element) Assigned {
	if i, ok := ctx.constants[e]; ok {
		return ctx.ref(i)
	}
	i := ctx.push(cell{kind: cellConstant, val: e})
	ctx.constants[e] = i
	return ctx.ref(i)
}

func (ctx *Context) op(op opKind, val fr.Element, args ...Assigned) Assigned {
	c := cell{kind: cellOp, op: op, val: val}
	for i, a := range args {
		c.args[i] = a.idx
	}
	return ctx.ref(ctx.push(c))
}

func (ctx *Context) assert(kind assertKind, a, b Assigned) {
	if ctx.frozen {
		panic("circuit: context is frozen")
	}
	ctx.asserts = append(ctx.asserts, assertion{kind: kind, a: a.idx, b: b.idx})
}

func (ctx *Context) rangeCheck(a Assigned, bits int) {
	if ctx.frozen {
		panic("circuit: context is frozen")
	}
	ctx.ranges = append(ctx.ranges, rangeCheck{a: a.idx, bits: bits})
}
