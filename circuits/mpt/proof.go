package mpt

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethrlp "github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/circuits/rlp"
)

const (
	// MaxNodeBytes bounds an encoded trie node: a full branch of hashes.
	MaxNodeBytes = 3 + 16*33 + 1
	KeyNibbles   = 64
	maxPathBytes = 33

	DefaultAccountDepth = 10
	DefaultStorageDepth = 10
)

var (
	ErrInvalidProof     = errors.New("invalid merkle proof")
	ErrUnsupportedProof = errors.New("unsupported merkle proof")
)

// Level is the witness of one node along a proof path. Inactive levels past
// the proof depth hold an empty node.
type Level struct {
	Node     []circuit.Assigned // MaxNodeBytes
	Len      circuit.Assigned
	Hash     [32]circuit.Assigned
	List     rlp.ListWitness
	IsBranch circuit.Assigned
	Path     rlp.StringWitness
	PathHi   [maxPathBytes]circuit.Assigned
	PathLo   [maxPathBytes]circuit.Assigned
	Odd      circuit.Assigned
	LeafFlag circuit.Assigned
	Value    rlp.StringWitness
}

// ProofTrace is the phase-0 witness of one MPT proof of key against root.
type ProofTrace struct {
	MaxDepth int
	ValueCap int
	Root     []circuit.Assigned // 32
	Key      []circuit.Assigned // 32, hashed key
	Nibbles  [KeyNibbles]circuit.Assigned
	Depth    circuit.Assigned
	Exists   circuit.Assigned
	Value    circuit.ByteString
	Levels   []Level
}

// VerifyNative checks nodes against root with go-ethereum's trie and returns
// the leaf value, or nil when the key is absent.
func VerifyNative(root common.Hash, key []byte, nodes [][]byte) ([]byte, error) {
	if len(nodes) == 0 {
		if root != types.EmptyRootHash {
			return nil, fmt.Errorf("empty proof for root %s: %w", root, ErrInvalidProof)
		}
		return nil, nil
	}
	db := memorydb.New()
	for _, n := range nodes {
		if err := db.Put(crypto.Keccak256(n), n); err != nil {
			return nil, err
		}
	}
	val, err := trie.VerifyProof(root, key, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	return val, nil
}

func keyToNibbles(key []byte) []byte {
	out := make([]byte, 2*len(key))
	for i, b := range key {
		out[2*i] = b >> 4
		out[2*i+1] = b & 0x0f
	}
	return out
}

// nodeHint is the native shape of one node.
type nodeHint struct {
	listPrefix int
	payloadLen int
	branch     bool
	pathPrefix int
	path       []byte
	valPrefix  int
	value      []byte
}

// ProofWalk is a proof whose shape has been checked natively. Witnessing it
// cannot fail.
type ProofWalk struct {
	nibbles  []byte
	nodes    [][]byte
	hints    []nodeHint
	maxDepth int
	valueCap int
	exists   bool
	value    []byte
}

// Exists reports whether the walk ends in a leaf for the key.
func (w *ProofWalk) Exists() bool { return w.exists }

// Value returns the leaf value, nil when the key is absent.
func (w *ProofWalk) Value() []byte { return w.value }

// AssignProof witnesses nodes as a proof of key (the 32 hashed key bytes whose
// native value is keyBytes) against root.
func AssignProof(ctx *circuit.Context, keccak *circuit.KeccakChip, root, key []circuit.Assigned, keyBytes []byte, nodes [][]byte, maxDepth, valueCap int) (*ProofTrace, error) {
	if len(root) != 32 || len(key) != 32 {
		return nil, fmt.Errorf("%w: key and root must be 32 bytes", ErrUnsupportedProof)
	}
	w, err := WalkProof(keyBytes, nodes, maxDepth, valueCap)
	if err != nil {
		return nil, err
	}
	return w.assign(ctx, keccak, root, key), nil
}

// WalkProof checks the shape of nodes as a proof of keyBytes without
// allocating anything. The walk mirrors the constraints so malformed or
// unsupported shapes fail here rather than in the solver.
func WalkProof(keyBytes []byte, nodes [][]byte, maxDepth, valueCap int) (*ProofWalk, error) {
	if len(nodes) > maxDepth {
		return nil, fmt.Errorf("depth %d exceeds %d: %w", len(nodes), maxDepth, ErrUnsupportedProof)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes", ErrUnsupportedProof)
	}
	nibbles := keyToNibbles(keyBytes)

	hints := make([]nodeHint, len(nodes))
	consumed := 0
	var leafValue []byte
	exists := false
	for l, node := range nodes {
		last := l == len(nodes)-1
		if len(node) > MaxNodeBytes {
			return nil, fmt.Errorf("node %d has %d bytes: %w", l, len(node), ErrUnsupportedProof)
		}
		h := &hints[l]
		var payload []byte
		var err error
		h.listPrefix, payload, _, err = rlp.SplitList(node)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w: %w", l, ErrInvalidProof, err)
		}
		h.payloadLen = len(payload)
		count, err := gethrlp.CountValues(payload)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w: %w", l, ErrInvalidProof, err)
		}
		switch count {
		case 17:
			h.branch = true
			rest := payload
			var child []byte
			for j := 0; j < 17; j++ {
				_, item, next, err := rlp.SplitString(rest)
				if err != nil {
					return nil, fmt.Errorf("node %d item %d: %w: %w", l, j, ErrUnsupportedProof, err)
				}
				if len(item) != 0 && (len(item) != 32 || j == 16) {
					return nil, fmt.Errorf("node %d item %d: %w: embedded node or branch value", l, j, ErrUnsupportedProof)
				}
				if consumed < KeyNibbles && j == int(nibbles[consumed]) {
					child = item
				}
				rest = next
			}
			if consumed >= KeyNibbles {
				return nil, fmt.Errorf("node %d: %w: key exhausted at branch", l, ErrInvalidProof)
			}
			if last != (len(child) == 0) {
				return nil, fmt.Errorf("node %d: %w: branch child does not match proof length", l, ErrInvalidProof)
			}
			consumed++
		case 2:
			var rest []byte
			h.pathPrefix, h.path, rest, err = rlp.SplitString(payload)
			if err != nil || len(h.path) == 0 || len(h.path) > maxPathBytes {
				return nil, fmt.Errorf("node %d: %w: bad path", l, ErrUnsupportedProof)
			}
			h.valPrefix, h.value, _, err = rlp.SplitString(rest)
			if err != nil {
				return nil, fmt.Errorf("node %d: %w: embedded node", l, ErrUnsupportedProof)
			}
			flag := h.path[0] >> 4
			if flag > 3 || (flag&1 == 0 && h.path[0]&0x0f != 0) {
				return nil, fmt.Errorf("node %d: %w: bad path flag", l, ErrInvalidProof)
			}
			odd, leaf := int(flag&1), flag&2 != 0
			pathNibbles := keyToNibbles(h.path)[2-odd:]
			match := consumed+len(pathNibbles) <= KeyNibbles &&
				string(pathNibbles) == string(nibbles[consumed:consumed+len(pathNibbles)])
			if leaf {
				if len(h.value) > max(valueCap, 32) {
					return nil, fmt.Errorf("node %d: %w: leaf value of %d bytes", l, ErrUnsupportedProof, len(h.value))
				}
				if !last {
					return nil, fmt.Errorf("node %d: %w: leaf before end of proof", l, ErrInvalidProof)
				}
				if match {
					if consumed+len(pathNibbles) != KeyNibbles || len(h.value) > valueCap {
						return nil, fmt.Errorf("node %d: %w: leaf shape", l, ErrUnsupportedProof)
					}
					exists = true
					leafValue = h.value
				}
			} else {
				if len(h.value) != 32 {
					return nil, fmt.Errorf("node %d: %w: embedded extension child", l, ErrUnsupportedProof)
				}
				if last == match {
					return nil, fmt.Errorf("node %d: %w: extension does not match proof length", l, ErrInvalidProof)
				}
			}
			consumed += len(pathNibbles)
		default:
			return nil, fmt.Errorf("node %d: %w: %d items", l, ErrInvalidProof, count)
		}
	}

	return &ProofWalk{
		nibbles:  nibbles,
		nodes:    nodes,
		hints:    hints,
		maxDepth: maxDepth,
		valueCap: valueCap,
		exists:   exists,
		value:    leafValue,
	}, nil
}

// assign witnesses key nibbles, levels and the leaf value. root and key are
// 32 cells each.
func (w *ProofWalk) assign(ctx *circuit.Context, keccak *circuit.KeccakChip, root, key []circuit.Assigned) *ProofTrace {
	p := &ProofTrace{
		MaxDepth: w.maxDepth,
		ValueCap: w.valueCap,
		Root:     root,
		Key:      key,
		Depth:    ctx.LoadWitnessUint64(uint64(len(w.nodes))),
		Levels:   make([]Level, w.maxDepth),
	}
	for i, n := range w.nibbles {
		p.Nibbles[i] = ctx.LoadWitnessUint64(uint64(n))
	}
	if w.exists {
		p.Exists = ctx.LoadWitnessUint64(1)
	} else {
		p.Exists = ctx.LoadWitnessUint64(0)
	}
	value := make([]byte, w.valueCap)
	copy(value, w.value)
	p.Value = circuit.ByteString{
		Len:   ctx.LoadWitnessUint64(uint64(len(w.value))),
		Bytes: ctx.LoadWitnessBytes(value),
	}

	for l := range p.Levels {
		var node []byte
		var h nodeHint
		if l < len(w.nodes) {
			node, h = w.nodes[l], w.hints[l]
		}
		p.Levels[l] = assignLevel(ctx, keccak, node, h, l < len(w.nodes))
	}
	return p
}

func assignLevel(ctx *circuit.Context, keccak *circuit.KeccakChip, node []byte, h nodeHint, active bool) Level {
	buf := make([]byte, MaxNodeBytes)
	copy(buf, node)
	lv := Level{
		Node: ctx.LoadWitnessBytes(buf),
		Len:  ctx.LoadWitnessUint64(uint64(len(node))),
	}
	lv.Hash = keccak.Var(ctx, lv.Node, lv.Len)

	var isBranch, odd, leaf uint64
	path := make([]byte, maxPathBytes)
	switch {
	case !active:
		lv.List = rlp.AssignAbsentList(ctx)
		lv.Path = rlp.AssignAbsentString(ctx)
		lv.Value = rlp.AssignAbsentString(ctx)
	case h.branch:
		isBranch = 1
		lv.List = rlp.AssignList(ctx, h.listPrefix, h.payloadLen)
		lv.Path = rlp.AssignAbsentString(ctx)
		lv.Value = rlp.AssignAbsentString(ctx)
	default:
		lv.List = rlp.AssignList(ctx, h.listPrefix, h.payloadLen)
		lv.Path = rlp.AssignString(ctx, h.pathPrefix, len(h.path))
		lv.Value = rlp.AssignString(ctx, h.valPrefix, len(h.value))
		flag := h.path[0] >> 4
		odd, leaf = uint64(flag&1), uint64(flag>>1)
		copy(path, h.path)
	}
	lv.IsBranch = ctx.LoadWitnessUint64(isBranch)
	lv.Odd = ctx.LoadWitnessUint64(odd)
	lv.LeafFlag = ctx.LoadWitnessUint64(leaf)
	for i, b := range path {
		lv.PathHi[i] = ctx.LoadWitnessUint64(uint64(b >> 4))
		lv.PathLo[i] = ctx.LoadWitnessUint64(uint64(b & 0x0f))
	}
	return lv
}
