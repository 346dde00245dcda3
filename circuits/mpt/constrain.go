package mpt

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/selector"
	"github.com/ethereum/go-ethereum/core/types"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/circuits/rlp"
)

// ConstrainProof constrains the walk recorded by AssignProof: every active
// node hashes to the reference held by its parent, branch and extension paths
// follow the key nibbles, and the trace's Exists and Value describe the
// terminal node.
func ConstrainProof(s *circuit.Synth, p *ProofTrace) error {
	if len(p.Levels) != p.MaxDepth || len(p.Root) != 32 || len(p.Key) != 32 {
		return fmt.Errorf("malformed proof trace")
	}
	api := s.API()
	depth := s.Var(p.Depth)
	exists := s.Var(p.Exists)
	api.AssertIsBoolean(exists)
	active := s.LengthMask(depth, p.MaxDepth)

	// Step 1: key nibbles
	nibbles := s.Vars(p.Nibbles[:])
	for i, k := range p.Key {
		s.CheckBits(nibbles[2*i], 4)
		s.CheckBits(nibbles[2*i+1], 4)
		api.AssertIsEqual(s.Var(k), api.Add(api.Mul(nibbles[2*i], 16), nibbles[2*i+1]))
	}
	keyTbl := s.NewTable(nibbles, 0)

	// Step 2: empty trie
	root := s.Vars(p.Root)
	empty := api.IsZero(depth)
	for i, b := range types.EmptyRootHash {
		s.AssertIsEqualIf(empty, root[i], int(b))
	}
	api.AssertIsEqual(api.Mul(empty, exists), 0)

	// Step 3: walk
	valueCap := max(p.ValueCap, 32)
	expected := root
	var consumed frontend.Variable = 0
	var valueLen frontend.Variable = 0
	valueBytes := make([]frontend.Variable, p.ValueCap)
	for i := range valueBytes {
		valueBytes[i] = 0
	}
	for l := range p.Levels {
		lv := &p.Levels[l]
		act := active[l]
		var nextAct frontend.Variable = 0
		if l+1 < p.MaxDepth {
			nextAct = active[l+1]
		}
		last := api.Sub(act, nextAct)

		for i := range lv.Hash {
			s.AssertIsEqualIf(act, s.Var(lv.Hash[i]), expected[i])
		}
		nodeLen := s.Var(lv.Len)
		api.AssertIsEqual(api.Mul(api.Sub(1, act), nodeLen), 0)
		cur := rlp.NewCursor(s, s.Vars(lv.Node))
		start, end := cur.List(0, lv.List, act)
		s.AssertIsEqualIf(act, end, nodeLen)

		isBranch := s.Var(lv.IsBranch)
		api.AssertIsBoolean(isBranch)
		eb := api.Mul(act, isBranch)
		el := api.Sub(act, eb)

		// branch: sixteen empty-or-hash children and an empty value slot
		off := start
		offs := make([]frontend.Variable, 16)
		isHash := make([]frontend.Variable, 16)
		for j := 0; j < 16; j++ {
			q := cur.At(api.Mul(eb, off))
			api.AssertIsEqual(api.Mul(eb, api.Sub(q, 0x80), api.Sub(q, 0xa0)), 0)
			isHash[j] = api.IsZero(api.Sub(q, 0xa0))
			offs[j] = off
			off = api.Add(off, 1, api.Mul(isHash[j], 32))
		}
		s.AssertIsEqualIf(eb, cur.At(api.Mul(eb, off)), 0x80)
		s.AssertIsEqualIf(eb, api.Add(off, 1), nodeLen)

		nib := keyTbl.Lookup(api.Mul(eb, consumed))[0]
		childOff := selector.Mux(api, nib, offs...)
		childIsHash := selector.Mux(api, nib, isHash...)
		api.AssertIsEqual(api.Mul(eb, nextAct, api.Sub(1, childIsHash)), 0)
		api.AssertIsEqual(api.Mul(eb, last, childIsHash), 0)
		api.AssertIsEqual(api.Mul(eb, last, exists), 0)
		refIdx := make([]frontend.Variable, 32)
		for i := range refIdx {
			refIdx[i] = api.Mul(eb, nextAct, api.Add(childOff, 1, i))
		}
		branchRef := cur.AtMany(refIdx)

		// leaf and extension: hex-prefix path then value or child reference
		_, pathNext, path := cur.String(start, lv.Path, el, maxPathBytes)
		odd, leafFlag := s.Var(lv.Odd), s.Var(lv.LeafFlag)
		api.AssertIsBoolean(odd)
		api.AssertIsBoolean(leafFlag)
		api.AssertIsEqual(api.Mul(api.Sub(1, el), api.Add(odd, leafFlag)), 0)

		hi, lo := s.Vars(lv.PathHi[:]), s.Vars(lv.PathLo[:])
		pathNibbles := make([]frontend.Variable, 0, 2*maxPathBytes)
		for u := range path {
			s.CheckBits(hi[u], 4)
			s.CheckBits(lo[u], 4)
			api.AssertIsEqual(path[u], api.Add(api.Mul(hi[u], 16), lo[u]))
			pathNibbles = append(pathNibbles, hi[u], lo[u])
		}
		s.AssertIsEqualIf(el, hi[0], api.Add(api.Mul(leafFlag, 2), odd))
		api.AssertIsEqual(api.Mul(el, api.Sub(1, odd), lo[0]), 0)

		pathLen := s.Var(lv.Path.Len)
		nn := api.Mul(el, api.Sub(api.Add(api.Mul(pathLen, 2), odd), 2))
		pmask := s.LengthMask(nn, KeyNibbles)
		pathTbl := s.NewTable(pathNibbles, 0)
		pIdx := make([]frontend.Variable, KeyNibbles)
		kIdx := make([]frontend.Variable, KeyNibbles)
		for u := range pIdx {
			pIdx[u] = api.Mul(pmask[u], api.Sub(u+2, odd))
			kIdx[u] = api.Mul(pmask[u], api.Add(consumed, u))
		}
		pn := pathTbl.Lookup(pIdx...)
		kn := keyTbl.Lookup(kIdx...)
		var mismatches frontend.Variable = 0
		for u := range pn {
			diff := api.Sub(1, api.IsZero(api.Sub(pn[u], kn[u])))
			mismatches = api.Add(mismatches, api.Mul(pmask[u], diff))
		}
		allMatch := api.IsZero(mismatches)

		_, valNext, val := cur.String(pathNext, lv.Value, el, valueCap)
		s.AssertIsEqualIf(el, valNext, nodeLen)
		valLen := s.Var(lv.Value.Len)

		leaf := api.Mul(el, leafFlag)
		ext := api.Sub(el, leaf)
		s.AssertIsEqualIf(ext, valLen, 32)
		api.AssertIsEqual(api.Mul(ext, nextAct, api.Sub(1, allMatch)), 0)
		api.AssertIsEqual(api.Mul(ext, last, allMatch), 0)
		api.AssertIsEqual(api.Mul(ext, last, exists), 0)
		api.AssertIsEqual(api.Mul(leaf, nextAct), 0)
		s.AssertIsEqualIf(leaf, exists, allMatch)

		consumedNext := api.Add(consumed, eb, nn)
		api.AssertIsEqual(api.Mul(leaf, exists, api.Sub(KeyNibbles, consumedNext)), 0)
		s.CheckBits(api.Sub(KeyNibbles, consumedNext), 7)

		// Step 4: reference for the next level and the leaf value
		next := make([]frontend.Variable, 32)
		for i := range next {
			next[i] = api.Add(api.Mul(eb, branchRef[i]), api.Mul(ext, val[i]))
		}
		expected = next

		take := api.Mul(leaf, exists)
		valueLen = api.Add(valueLen, api.Mul(take, valLen))
		for i := range valueBytes {
			valueBytes[i] = api.Add(valueBytes[i], api.Mul(take, val[i]))
		}
		consumed = consumedNext
	}

	// Step 5: exposed value
	api.AssertIsEqual(s.Var(p.Value.Len), valueLen)
	for i, b := range p.Value.Bytes {
		api.AssertIsEqual(s.Var(b), valueBytes[i])
	}
	return nil
}
