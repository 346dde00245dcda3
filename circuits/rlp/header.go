package rlp

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/consensys/gnark/frontend"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
)

var (
	ErrHeaderTooLong   = errors.New("header exceeds network capacity")
	ErrMalformedHeader = errors.New("malformed header encoding")
)

// HeaderTrace is the phase-0 witness of one block header decomposition.
type HeaderTrace struct {
	Network Network
	Raw     []circuit.Assigned // padded to Network.HeaderMaxBytes
	Len     circuit.Assigned   // encoded length
	List    ListWitness
	Present [NumHeaderFields]circuit.Assigned
	Items   [NumHeaderFields]StringWitness
	Fields  [NumHeaderFields]circuit.ByteString
	Hash    [32]circuit.Assigned
}

// Field returns the decoded field at position i.
func (t *HeaderTrace) Field(i int) circuit.ByteString { return t.Fields[i] }

// DecomposeHeaderPhase0 witnesses the header encoding raw, which may be
// zero-padded up to the network maximum, and registers its keccak digest.
func DecomposeHeaderPhase0(ctx *circuit.Context, keccak *circuit.KeccakChip, raw []byte, network Network) (*HeaderTrace, error) {
	maxLen := network.HeaderMaxBytes()
	if len(raw) > maxLen {
		return nil, fmt.Errorf("%d > %d bytes: %w", len(raw), maxLen, ErrHeaderTooLong)
	}
	padded := make([]byte, maxLen)
	copy(padded, raw)

	// Step 1: split the header natively
	listPrefix, payload, rest, err := SplitList(padded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	total := len(padded) - len(rest)

	type item struct {
		prefix  int
		content []byte
	}
	var items []item
	for len(payload) > 0 {
		if len(items) == NumHeaderFields {
			return nil, fmt.Errorf("%w: more than %d fields", ErrMalformedHeader, NumHeaderFields)
		}
		prefix, content, next, err := SplitString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %w", ErrMalformedHeader, FieldNames[len(items)], err)
		}
		if c := network.FieldsMaxBytes[len(items)]; len(content) > c {
			return nil, fmt.Errorf("field %s has %d bytes, capacity %d: %w",
				FieldNames[len(items)], len(content), c, ErrHeaderTooLong)
		}
		items = append(items, item{prefix: prefix, content: content})
		payload = next
	}
	if len(items) < NumRequiredFields {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformedHeader, len(items))
	}

	// Step 2: witness raw bytes and hints
	t := &HeaderTrace{
		Network: network,
		Raw:     ctx.LoadWitnessBytes(padded),
		Len:     ctx.LoadWitnessUint64(uint64(total)),
		List:    AssignList(ctx, listPrefix, total-listPrefix),
	}
	for i := range t.Fields {
		capacity := network.FieldsMaxBytes[i]
		buf := make([]byte, capacity)
		switch {
		case i < NumRequiredFields:
			t.Present[i] = ctx.LoadConstantUint64(1)
		case i < len(items):
			t.Present[i] = ctx.LoadWitnessUint64(1)
		default:
			t.Present[i] = ctx.LoadWitnessUint64(0)
		}
		if i < len(items) {
			copy(buf, items[i].content)
			t.Items[i] = AssignString(ctx, items[i].prefix, len(items[i].content))
		} else {
			t.Items[i] = AssignAbsentString(ctx)
		}
		t.Fields[i] = circuit.ByteString{Len: t.Items[i].Len, Bytes: ctx.LoadWitnessBytes(buf)}
	}

	// Step 3: block hash over the encoded prefix of the raw bytes
	t.Hash = keccak.Var(ctx, t.Raw, t.Len)
	return t, nil
}

// DecomposeHeaderPhase1 constrains the decomposition recorded by phase 0.
func DecomposeHeaderPhase1(s *circuit.Synth, t *HeaderTrace) error {
	api := s.API()
	maxLen := len(t.Raw)
	if maxLen != t.Network.HeaderMaxBytes() {
		return fmt.Errorf("header trace has %d raw bytes, want %d", maxLen, t.Network.HeaderMaxBytes())
	}
	cur := NewCursor(s, s.Vars(t.Raw))

	// Step 1: outer list spans exactly the hashed prefix
	start, end := cur.List(0, t.List, 1)
	api.AssertIsEqual(s.Var(t.Len), end)
	s.CheckBits(api.Sub(maxLen, end), bits.Len(uint(maxLen)))

	// Step 2: fields in order, optional ones as a monotone prefix
	off := start
	var prev frontend.Variable = 1
	for i := range t.Fields {
		present := s.Var(t.Present[i])
		if i >= NumRequiredFields {
			api.AssertIsBoolean(present)
			api.AssertIsEqual(api.Mul(present, api.Sub(1, prev)), 0)
		}
		_, next, content := cur.String(off, t.Items[i], present, t.Network.FieldsMaxBytes[i])
		for j, v := range content {
			api.AssertIsEqual(s.Var(t.Fields[i].Bytes[j]), v)
		}
		off = next
		prev = present
	}

	// Step 3: no trailing items
	api.AssertIsEqual(off, end)
	return nil
}
