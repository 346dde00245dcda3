package circuit

import "github.com/consensys/gnark/frontend"

// DefaultLookupBits is the width of the shared range lookup table.
const DefaultLookupBits = 8

// Builder owns the phase-0 context, the chips that write into it and the
// phase-1 gadgets queued by callers.
type Builder struct {
	ctx      *Context
	rng      *RangeChip
	keccak   *KeccakChip
	deferred []func(*Synth) error
}

// NewBuilder returns an empty builder. lookupBits <= 0 selects DefaultLookupBits.
func NewBuilder(lookupBits int) *Builder {
	if lookupBits <= 0 {
		lookupBits = DefaultLookupBits
	}
	return &Builder{
		ctx:    newContext(),
		rng:    &RangeChip{lookupBits: lookupBits},
		keccak: &KeccakChip{},
	}
}

func (b *Builder) Context() *Context { return b.ctx }

func (b *Builder) Gate() GateChip { return b.rng.gate }

func (b *Builder) Range() *RangeChip { return b.rng }

func (b *Builder) Keccak() *KeccakChip { return b.keccak }

// Defer queues a phase-1 gadget. Gadgets run in queue order when the circuit
// is defined, after the recorded gates and before keccak binding.
func (b *Builder) Defer(fn func(*Synth) error) {
	if b.ctx.frozen {
		panic("circuit: builder is frozen")
	}
	b.deferred = append(b.deferred, fn)
}

// Build freezes the builder and returns the circuit exposing instances as its
// public inputs in order.
func (b *Builder) Build(instances []Assigned) *Circuit {
	b.ctx.frozen = true
	inst := make([]Assigned, len(instances))
	copy(inst, instances)
	return &Circuit{
		Instances: make([]frontend.Variable, len(inst)),
		Witness:   make([]frontend.Variable, b.ctx.nbWitness),
		prog:      &program{builder: b, instances: inst},
	}
}
