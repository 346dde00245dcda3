package circuit

import (
	"fmt"

	"github.com/consensys/gnark/std/hash/sha3"
	"github.com/consensys/gnark/std/math/uints"
	"github.com/ethereum/go-ethereum/crypto"
)

type keccakQuery struct {
	input  []Assigned
	length Assigned
	fixed  bool
	output [32]Assigned
}

// KeccakChip collects keccak-256 queries during phase 0. Digests are assigned
// natively right away and bound to the in-circuit permutation at definition.
type KeccakChip struct {
	queries []keccakQuery
}

// NbQueries returns the number of recorded queries.
func (k *KeccakChip) NbQueries() int { return len(k.queries) }

// Fixed hashes every input cell.
func (k *KeccakChip) Fixed(ctx *Context, input []Assigned) [32]Assigned {
	q := keccakQuery{input: input, fixed: true}
	return k.record(ctx, q, len(input))
}

// Var hashes the first length cells of input. length must not exceed len(input).
func (k *KeccakChip) Var(ctx *Context, input []Assigned, length Assigned) [32]Assigned {
	q := keccakQuery{input: input, length: length}
	n := len(input)
	if l := length.Value(); l.IsUint64() && l.Uint64() < uint64(n) {
		n = int(l.Uint64())
	}
	return k.record(ctx, q, n)
}

func (k *KeccakChip) record(ctx *Context, q keccakQuery, n int) [32]Assigned {
	data := make([]byte, n)
	for i := 0; i < n; i++ {
		data[i] = byte(q.input[i].Uint64())
	}
	for _, in := range q.input {
		ctx.rangeCheck(in, 8)
	}
	digest := crypto.Keccak256(data)
	for i := range q.output {
		q.output[i] = ctx.LoadWitnessUint64(uint64(digest[i]))
	}
	k.queries = append(k.queries, q)
	return q.output
}

func (k *KeccakChip) synthesize(s *Synth) error {
	api := s.API()
	for i, q := range k.queries {
		h, err := sha3.NewLegacyKeccak256(api)
		if err != nil {
			return fmt.Errorf("keccak query %d: %w", i, err)
		}
		in := make([]uints.U8, len(q.input))
		for j, c := range q.input {
			in[j] = uints.U8{Val: s.Var(c)}
		}
		h.Write(in)

		var out []uints.U8
		if q.fixed {
			out = h.Sum()
		} else {
			out = h.FixedLengthSum(s.Var(q.length))
		}
		for j := range q.output {
			api.AssertIsEqual(out[j].Val, s.Var(q.output[j]))
		}
	}
	return nil
}
