package circuit

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/lookup/logderivlookup"
	"github.com/consensys/gnark/std/rangecheck"
)

// Synth is the phase-1 view handed to deferred gadgets. It maps every phase-0
// cell to its constraint-system variable and owns the shared range tables.
type Synth struct {
	api        frontend.API
	vars       []frontend.Variable
	lookupBits int
	bitTables  map[int]*logderivlookup.Table
	rc         frontend.Rangechecker
}

func newSynth(api frontend.API, lookupBits, nbCells int) *Synth {
	return &Synth{
		api:        api,
		vars:       make([]frontend.Variable, nbCells),
		lookupBits: lookupBits,
		bitTables:  make(map[int]*logderivlookup.Table),
	}
}

func (s *Synth) API() frontend.API { return s.api }

// Var returns the variable bound to a phase-0 cell.
func (s *Synth) Var(a Assigned) frontend.Variable { return s.vars[a.idx] }

// Vars maps a slice of cells.
func (s *Synth) Vars(as []Assigned) []frontend.Variable {
	out := make([]frontend.Variable, len(as))
	for i, a := range as {
		out[i] = s.vars[a.idx]
	}
	return out
}

// CheckBits constrains 0 <= v < 2^bits.
func (s *Synth) CheckBits(v frontend.Variable, bits int) {
	switch {
	case bits == 0:
		s.api.AssertIsEqual(v, 0)
	case bits <= s.lookupBits:
		s.bitTable(bits).Lookup(v)
	default:
		if s.rc == nil {
			s.rc = rangecheck.New(s.api)
		}
		s.rc.Check(v, bits)
	}
}

func (s *Synth) bitTable(bits int) *logderivlookup.Table {
	if t, ok := s.bitTables[bits]; ok {
		return t
	}
	t := logderivlookup.New(s.api)
	for i := 0; i < 1<<bits; i++ {
		t.Insert(i)
	}
	s.bitTables[bits] = t
	return t
}

// NewTable returns a lookup table over vals followed by pad zero entries, so
// that reads a few positions past the end stay defined.
func (s *Synth) NewTable(vals []frontend.Variable, pad int) *logderivlookup.Table {
	t := logderivlookup.New(s.api)
	for _, v := range vals {
		t.Insert(v)
	}
	for i := 0; i < pad; i++ {
		t.Insert(0)
	}
	return t
}

// LengthMask returns capacity flags where mask[i] == 1 iff i < n, and
// constrains 0 <= n <= capacity.
func (s *Synth) LengthMask(n frontend.Variable, capacity int) []frontend.Variable {
	api := s.api
	mask := make([]frontend.Variable, capacity)
	var hit, running frontend.Variable = 0, 1
	for i := 0; i <= capacity; i++ {
		eq := api.IsZero(api.Sub(n, i))
		hit = api.Add(hit, eq)
		running = api.Sub(running, eq)
		if i < capacity {
			mask[i] = running
		}
	}
	api.AssertIsEqual(hit, 1)
	return mask
}

// AssertIsEqualIf constrains a == b when cond is 1.
func (s *Synth) AssertIsEqualIf(cond, a, b frontend.Variable) {
	s.api.AssertIsEqual(s.api.Mul(cond, s.api.Sub(a, b)), 0)
}

func (s *Synth) apply(c cell) frontend.Variable {
	api := s.api
	x, y, z := s.vars[c.args[0]], s.vars[c.args[1]], s.vars[c.args[2]]
	switch c.op {
	case opAdd:
		return api.Add(x, y)
	case opSub:
		return api.Sub(x, y)
	case opMul:
		return api.Mul(x, y)
	case opMulAdd:
		return api.MulAcc(z, x, y)
	case opNeg:
		return api.Neg(x)
	case opIsZero:
		return api.IsZero(x)
	case opSelect:
		// z + x*(y-z), x is not re-asserted boolean
		return api.MulAcc(z, x, api.Sub(y, z))
	default:
		panic("circuit: unknown op")
	}
}

func constantVar(c cell) frontend.Variable {
	var b big.Int
	return c.val.BigInt(&b)
}
