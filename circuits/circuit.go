package circuit

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
)

var errNoProgram = errors.New("circuit: not produced by a builder")

type program struct {
	builder   *Builder
	instances []Assigned
}

// Circuit is the finalized program. Witness carries every private cell of the
// phase-0 context and Instances the exposed cells, in exposure order. Zero is
// always 0 and keeps the constraint system non-empty.
type Circuit struct {
	Instances []frontend.Variable `gnark:",public"`
	Witness   []frontend.Variable `gnark:",secret"`
	Zero      frontend.Variable   `gnark:",secret"`

	prog *program `gnark:"-"`
}

// Field returns the scalar field every cell lives in.
func Field() *big.Int { return ecc.BN254.ScalarField() }

// Define replays the phase-0 program against api.
func (c *Circuit) Define(api frontend.API) error {
	if c.prog == nil {
		return errNoProgram
	}
	b := c.prog.builder
	ctx := b.ctx
	if len(c.Witness) != ctx.nbWitness || len(c.Instances) != len(c.prog.instances) {
		return fmt.Errorf("circuit: shape mismatch, got %d/%d want %d/%d witness/instances",
			len(c.Witness), len(c.Instances), ctx.nbWitness, len(c.prog.instances))
	}
	s := newSynth(api, b.rng.lookupBits, len(ctx.cells))
	api.AssertIsEqual(c.Zero, 0)

	// Step 1: bind every cell in allocation order
	for i, cl := range ctx.cells {
		switch cl.kind {
		case cellWitness:
			s.vars[i] = c.Witness[cl.slot]
		case cellConstant:
			s.vars[i] = constantVar(cl)
		case cellOp:
			s.vars[i] = s.apply(cl)
		}
	}

	// Step 2: recorded assertions and range checks
	for _, a := range ctx.asserts {
		switch a.kind {
		case assertEqual:
			api.AssertIsEqual(s.vars[a.a], s.vars[a.b])
		case assertBit:
			api.AssertIsBoolean(s.vars[a.a])
		}
	}
	for _, r := range ctx.ranges {
		s.CheckBits(s.vars[r.a], r.bits)
	}

	// Step 3: phase-1 gadgets
	for i, fn := range b.deferred {
		if err := fn(s); err != nil {
			return fmt.Errorf("deferred gadget %d: %w", i, err)
		}
	}

	// Step 4: keccak digests
	if err := b.keccak.synthesize(s); err != nil {
		return err
	}

	// Step 5: public instances
	for i, inst := range c.prog.instances {
		api.AssertIsEqual(c.Instances[i], s.vars[inst.idx])
	}
	return nil
}

// Template returns an unassigned copy suitable for compilation.
func (c *Circuit) Template() *Circuit {
	return &Circuit{
		Instances: make([]frontend.Variable, len(c.Instances)),
		Witness:   make([]frontend.Variable, len(c.Witness)),
		prog:      c.prog,
	}
}

// Assignment returns a copy carrying the phase-0 values.
func (c *Circuit) Assignment() *Circuit {
	a := c.Template()
	a.Zero = 0
	if c.prog == nil {
		return a
	}
	for _, cl := range c.prog.builder.ctx.cells {
		if cl.kind == cellWitness {
			a.Witness[cl.slot] = constantVar(cl)
		}
	}
	for i, v := range c.InstanceValues() {
		a.Instances[i] = v
	}
	return a
}

// InstanceValues returns the native values of the public instances.
func (c *Circuit) InstanceValues() []*big.Int {
	if c.prog == nil {
		return nil
	}
	out := make([]*big.Int, len(c.prog.instances))
	for i, inst := range c.prog.instances {
		out[i] = inst.Value()
	}
	return out
}

// FullWitness builds the solver witness from the phase-0 values.
func (c *Circuit) FullWitness() (witness.Witness, error) {
	return frontend.NewWitness(c.Assignment(), Field())
}

// PublicWitness builds a public-only witness for the given instance values.
func (c *Circuit) PublicWitness(instances []*big.Int) (witness.Witness, error) {
	if len(instances) != len(c.Instances) {
		return nil, fmt.Errorf("circuit: got %d instances, want %d", len(instances), len(c.Instances))
	}
	a := c.Template()
	for i, v := range instances {
		a.Instances[i] = v
	}
	for i := range a.Witness {
		a.Witness[i] = 0
	}
	a.Zero = 0
	return frontend.NewWitness(a, Field(), frontend.PublicOnly())
}

// Stats reports the size of the phase-0 program.
type Stats struct {
	Cells         int
	Witness       int
	Instances     int
	Assertions    int
	RangeChecks   int
	KeccakQueries int
	Gadgets       int
}

func (c *Circuit) Stats() Stats {
	if c.prog == nil {
		return Stats{}
	}
	b := c.prog.builder
	return Stats{
		Cells:         len(b.ctx.cells),
		Witness:       b.ctx.nbWitness,
		Instances:     len(c.prog.instances),
		Assertions:    len(b.ctx.asserts),
		RangeChecks:   len(b.ctx.ranges),
		KeccakQueries: len(b.keccak.queries),
		Gadgets:       len(b.deferred),
	}
}

func (c *Circuit) NbInstances() int { return len(c.Instances) }
