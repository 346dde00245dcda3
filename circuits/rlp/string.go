package rlp

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/lookup/logderivlookup"
	gethrlp "github.com/ethereum/go-ethereum/rlp"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
)

var (
	ErrUnexpectedKind = errors.New("unexpected rlp kind")
	ErrTooLong        = errors.New("rlp item exceeds capacity")
)

// tablePad keeps the prefix reads at off+1 and off+2 inside the table.
const tablePad = 3

// StringWitness holds the phase-0 hints of one RLP string item. Exactly one
// of the prefix flags is set for an enabled item, none for a disabled one.
type StringWitness struct {
	Single circuit.Assigned // one byte below 0x80, no prefix
	Short  circuit.Assigned // 0x80+len
	Long1  circuit.Assigned // 0xb8, one length byte
	Long2  circuit.Assigned // 0xb9, two length bytes
	Len    circuit.Assigned
}

// ListWitness holds the phase-0 hints of one RLP list header.
type ListWitness struct {
	Short      circuit.Assigned
	Long1      circuit.Assigned
	Long2      circuit.Assigned
	PayloadLen circuit.Assigned
}

// AssignString witnesses an item with the given prefix size and content length.
func AssignString(ctx *circuit.Context, prefixLen, length int) StringWitness {
	var flags [4]uint64
	flags[prefixLen] = 1
	return StringWitness{
		Single: ctx.LoadWitnessUint64(flags[0]),
		Short:  ctx.LoadWitnessUint64(flags[1]),
		Long1:  ctx.LoadWitnessUint64(flags[2]),
		Long2:  ctx.LoadWitnessUint64(flags[3]),
		Len:    ctx.LoadWitnessUint64(uint64(length)),
	}
}

// AssignAbsentString witnesses a disabled item.
func AssignAbsentString(ctx *circuit.Context) StringWitness {
	return StringWitness{
		Single: ctx.LoadWitnessUint64(0),
		Short:  ctx.LoadWitnessUint64(0),
		Long1:  ctx.LoadWitnessUint64(0),
		Long2:  ctx.LoadWitnessUint64(0),
		Len:    ctx.LoadWitnessUint64(0),
	}
}

// AssignList witnesses a list header with the given prefix size (1 to 3).
func AssignList(ctx *circuit.Context, prefixLen, payloadLen int) ListWitness {
	var flags [4]uint64
	flags[prefixLen] = 1
	return ListWitness{
		Short:      ctx.LoadWitnessUint64(flags[1]),
		Long1:      ctx.LoadWitnessUint64(flags[2]),
		Long2:      ctx.LoadWitnessUint64(flags[3]),
		PayloadLen: ctx.LoadWitnessUint64(uint64(payloadLen)),
	}
}

// AssignAbsentList witnesses a disabled list.
func AssignAbsentList(ctx *circuit.Context) ListWitness {
	return ListWitness{
		Short:      ctx.LoadWitnessUint64(0),
		Long1:      ctx.LoadWitnessUint64(0),
		Long2:      ctx.LoadWitnessUint64(0),
		PayloadLen: ctx.LoadWitnessUint64(0),
	}
}

// SplitString splits the leading string item of b.
func SplitString(b []byte) (prefixLen int, content, rest []byte, err error) {
	kind, content, rest, err := gethrlp.Split(b)
	if err != nil {
		return 0, nil, nil, err
	}
	if kind == gethrlp.List {
		return 0, nil, nil, fmt.Errorf("want string: %w", ErrUnexpectedKind)
	}
	return len(b) - len(rest) - len(content), content, rest, nil
}

// SplitList splits the leading list item of b.
func SplitList(b []byte) (prefixLen int, payload, rest []byte, err error) {
	kind, payload, rest, err := gethrlp.Split(b)
	if err != nil {
		return 0, nil, nil, err
	}
	if kind != gethrlp.List {
		return 0, nil, nil, fmt.Errorf("want list: %w", ErrUnexpectedKind)
	}
	return len(b) - len(rest) - len(payload), payload, rest, nil
}

// PrefixLen returns the largest string prefix needed for content of at most capacity bytes.
func PrefixLen(capacity int) int {
	switch {
	case capacity <= 55:
		return 1
	case capacity <= 0xff:
		return 2
	default:
		return 3
	}
}

// Cursor reads RLP items from a byte table at phase 1.
type Cursor struct {
	s   *circuit.Synth
	tbl *logderivlookup.Table
}

// NewCursor loads data into a lookup table.
func NewCursor(s *circuit.Synth, data []frontend.Variable) *Cursor {
	return &Cursor{s: s, tbl: s.NewTable(data, tablePad)}
}

// At returns the byte at idx.
func (c *Cursor) At(idx frontend.Variable) frontend.Variable {
	return c.tbl.Lookup(idx)[0]
}

// AtMany returns the bytes at every index.
func (c *Cursor) AtMany(idx []frontend.Variable) []frontend.Variable {
	if len(idx) == 0 {
		return nil
	}
	return c.tbl.Lookup(idx...)
}

// String constrains the string item at off against w and returns the offset
// of its content, the offset of the next item and the content masked to
// capacity. A disabled item must be empty and consumes nothing.
func (c *Cursor) String(off frontend.Variable, w StringWitness, enabled frontend.Variable, capacity int) (start, next frontend.Variable, content []frontend.Variable) {
	s := c.s
	api := s.API()
	single, short, long1, long2 := s.Var(w.Single), s.Var(w.Short), s.Var(w.Long1), s.Var(w.Long2)
	n := s.Var(w.Len)

	for _, f := range []frontend.Variable{single, short, long1, long2} {
		api.AssertIsBoolean(f)
	}
	api.AssertIsEqual(api.Add(single, short, long1, long2), enabled)

	long := api.Add(long1, long2)
	q := c.At(api.Mul(enabled, off))
	b1 := c.At(api.Mul(long, api.Add(off, 1)))
	b2 := c.At(api.Mul(long2, api.Add(off, 2)))

	// Step 1: prefix byte
	expected := api.Add(
		api.Mul(single, q),
		api.Mul(short, api.Add(n, 0x80)),
		api.Mul(long1, 0xb8),
		api.Mul(long2, 0xb9),
	)
	api.AssertIsEqual(api.Mul(enabled, q), expected)

	// Step 2: length bounds per prefix form
	api.AssertIsEqual(api.Mul(single, api.Sub(n, 1)), 0)
	s.CheckBits(api.Mul(single, api.Sub(0x7f, q)), 7)
	s.CheckBits(api.Mul(short, api.Sub(55, n)), 6)
	s.AssertIsEqualIf(long1, n, b1)
	s.CheckBits(api.Mul(long1, api.Sub(n, 56)), 8)
	s.AssertIsEqualIf(long2, n, api.Add(api.Mul(b1, 256), b2))
	s.CheckBits(api.Mul(long2, api.Sub(n, 256)), 16)
	api.AssertIsEqual(api.Mul(api.Sub(1, enabled), n), 0)

	// Step 3: content
	start = api.Add(off, short, api.Mul(long1, 2), api.Mul(long2, 3))
	next = api.Add(start, n)

	mask := s.LengthMask(n, capacity)
	idx := make([]frontend.Variable, capacity)
	for i := range idx {
		idx[i] = api.Mul(mask[i], api.Add(start, i))
	}
	vals := c.AtMany(idx)
	content = make([]frontend.Variable, capacity)
	for i := range content {
		content[i] = api.Mul(mask[i], vals[i])
	}
	return start, next, content
}

// List constrains the list header at off against w and returns the payload bounds.
func (c *Cursor) List(off frontend.Variable, w ListWitness, enabled frontend.Variable) (start, end frontend.Variable) {
	s := c.s
	api := s.API()
	short, long1, long2 := s.Var(w.Short), s.Var(w.Long1), s.Var(w.Long2)
	n := s.Var(w.PayloadLen)

	for _, f := range []frontend.Variable{short, long1, long2} {
		api.AssertIsBoolean(f)
	}
	api.AssertIsEqual(api.Add(short, long1, long2), enabled)

	long := api.Add(long1, long2)
	q := c.At(api.Mul(enabled, off))
	b1 := c.At(api.Mul(long, api.Add(off, 1)))
	b2 := c.At(api.Mul(long2, api.Add(off, 2)))

	expected := api.Add(
		api.Mul(short, api.Add(n, 0xc0)),
		api.Mul(long1, 0xf8),
		api.Mul(long2, 0xf9),
	)
	api.AssertIsEqual(api.Mul(enabled, q), expected)

	s.CheckBits(api.Mul(short, api.Sub(55, n)), 6)
	s.AssertIsEqualIf(long1, n, b1)
	s.CheckBits(api.Mul(long1, api.Sub(n, 56)), 8)
	s.AssertIsEqualIf(long2, n, api.Add(api.Mul(b1, 256), b2))
	s.CheckBits(api.Mul(long2, api.Sub(n, 256)), 16)
	api.AssertIsEqual(api.Mul(api.Sub(1, enabled), n), 0)

	start = api.Add(off, short, api.Mul(long1, 2), api.Mul(long2, 3))
	end = api.Add(start, n)
	return start, end
}
