package circuit

import (
	"errors"
	"fmt"
)

// ErrFieldOverflow is returned by EvaluateExact when the container could hold
// a value that does not fit the scalar field.
var ErrFieldOverflow = errors.New("byte string may exceed the scalar field")

// maxExactBytes is the widest big-endian integer that always fits the field.
const maxExactBytes = 31

// ByteString is a variable-length byte sequence laid out in fixed capacity.
// Bytes past Len are zero and every byte is proven by the gadget producing it.
type ByteString struct {
	Len   Assigned
	Bytes []Assigned
}

// Cap returns the fixed capacity.
func (b ByteString) Cap() int { return len(b.Bytes) }

// Evaluate returns the big-endian base-256 value of Bytes[0:Len], reduced
// modulo the scalar field.
func (b ByteString) Evaluate(ctx *Context, gate GateChip) Assigned {
	if len(b.Bytes) == 0 {
		return ctx.LoadZero()
	}
	base := ctx.LoadConstantUint64(256)
	accs := make([]Assigned, len(b.Bytes)+1)
	accs[0] = ctx.LoadZero()
	for i, v := range b.Bytes {
		accs[i+1] = gate.MulAdd(ctx, accs[i], base, v)
	}
	return gate.SelectFromIdx(ctx, accs, b.Len)
}

// EvaluateExact is Evaluate for containers whose value always fits the field.
func (b ByteString) EvaluateExact(ctx *Context, gate GateChip) (Assigned, error) {
	if len(b.Bytes) > maxExactBytes {
		return Assigned{}, fmt.Errorf("capacity %d: %w", len(b.Bytes), ErrFieldOverflow)
	}
	return b.Evaluate(ctx, gate), nil
}

// Native returns the witnessed content.
func (b ByteString) Native() []byte {
	n := int(b.Len.Uint64())
	if n > len(b.Bytes) {
		n = len(b.Bytes)
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(b.Bytes[i].Uint64())
	}
	return out
}
