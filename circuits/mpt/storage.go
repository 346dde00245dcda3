package mpt

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/circuits/rlp"
)

const (
	// AccountValueCap bounds the state trie leaf value [nonce, balance, root, codeHash].
	AccountValueCap = 3 + 9 + 33 + 33 + 33
	// StorageValueCap bounds the storage trie leaf value, an rlp string of at most 32 bytes.
	StorageValueCap = 33

	nonceCap   = 8
	balanceCap = 32
)

// StorageInput is the native data of one eth_getProof response.
type StorageInput struct {
	Address      common.Address
	StateRoot    common.Hash
	AccountProof [][]byte
	Slots        []SlotInput
	AccountDepth int
	StorageDepth int
}

// SlotInput is one storage slot and its proof against the account storage root.
type SlotInput struct {
	Key   common.Hash
	Proof [][]byte
}

// AccountFields is the decoded account leaf. Absent accounts carry the empty
// storage root and the empty code hash.
type AccountFields struct {
	List        rlp.ListWitness
	NonceItem   rlp.StringWitness
	BalanceItem rlp.StringWitness
	RootItem    rlp.StringWitness
	CodeItem    rlp.StringWitness
	Nonce       circuit.ByteString
	Balance     circuit.ByteString
	StorageRoot []circuit.Assigned
	CodeHash    []circuit.Assigned
}

type SlotTrace struct {
	Key   common.Hash
	Slot  []circuit.Assigned
	Proof *ProofTrace
	Item  rlp.StringWitness
	Value circuit.ByteString
}

// StorageTrace is the phase-0 witness of one account with its storage slots.
type StorageTrace struct {
	Address   []circuit.Assigned
	StateRoot []circuit.Assigned
	Account   *ProofTrace
	Fields    AccountFields
	Slots     []*SlotTrace
}

// StoragePlan is an eth_getProof response verified natively: both proofs
// against their roots, every walk and every leaf shape. Nothing is allocated
// until Assign.
type StoragePlan struct {
	in      StorageInput
	account *ProofWalk
	leaf    accountLeaf
	slots   []slotPlan
}

type accountLeaf struct {
	absent     bool
	listPrefix int
	payloadLen int
	prefixes   [4]int
	items      [4][]byte
}

type slotPlan struct {
	in      SlotInput
	walk    *ProofWalk
	prefix  int
	content []byte
}

// PrepareStorage runs every native check of DecomposeStoragePhase0.
func PrepareStorage(in StorageInput) (*StoragePlan, error) {
	if in.AccountDepth <= 0 {
		in.AccountDepth = DefaultAccountDepth
	}
	if in.StorageDepth <= 0 {
		in.StorageDepth = DefaultStorageDepth
	}
	p := &StoragePlan{in: in}

	// Step 1: account proof and leaf
	accountKey := crypto.Keccak256(in.Address[:])
	leaf, err := VerifyNative(in.StateRoot, accountKey, in.AccountProof)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", in.Address, err)
	}
	if p.account, err = WalkProof(accountKey, in.AccountProof, in.AccountDepth, AccountValueCap); err != nil {
		return nil, fmt.Errorf("account %s: %w", in.Address, err)
	}
	if (leaf != nil) != p.account.Exists() {
		return nil, fmt.Errorf("account %s: %w: existence mismatch", in.Address, ErrInvalidProof)
	}
	if p.leaf, err = parseAccount(leaf); err != nil {
		return nil, fmt.Errorf("account %s: %w", in.Address, err)
	}

	// Step 2: storage slots against the proven storage root
	storageRoot := p.StorageRoot()
	for _, slot := range in.Slots {
		sp, err := prepareSlot(storageRoot, slot, in.StorageDepth)
		if err != nil {
			return nil, fmt.Errorf("account %s slot %s: %w", in.Address, slot.Key, err)
		}
		p.slots = append(p.slots, sp)
	}
	return p, nil
}

func parseAccount(leaf []byte) (accountLeaf, error) {
	var a accountLeaf
	if leaf == nil {
		a.absent = true
		return a, nil
	}
	listPrefix, payload, _, err := rlp.SplitList(leaf)
	if err != nil {
		return a, fmt.Errorf("%w: account leaf: %w", ErrInvalidProof, err)
	}
	rest := payload
	for i := range a.items {
		a.prefixes[i], a.items[i], rest, err = rlp.SplitString(rest)
		if err != nil {
			return a, fmt.Errorf("%w: account field %d: %w", ErrInvalidProof, i, err)
		}
	}
	if len(rest) != 0 || len(a.items[0]) > nonceCap || len(a.items[1]) > balanceCap ||
		len(a.items[2]) != 32 || len(a.items[3]) != 32 {
		return a, fmt.Errorf("%w: account leaf shape", ErrInvalidProof)
	}
	a.listPrefix, a.payloadLen = listPrefix, len(payload)
	return a, nil
}

func prepareSlot(root common.Hash, in SlotInput, depth int) (slotPlan, error) {
	sp := slotPlan{in: in}
	slotKey := crypto.Keccak256(in.Key[:])
	leaf, err := VerifyNative(root, slotKey, in.Proof)
	if err != nil {
		return sp, err
	}
	if sp.walk, err = WalkProof(slotKey, in.Proof, depth, StorageValueCap); err != nil {
		return sp, err
	}
	if (leaf != nil) != sp.walk.Exists() {
		return sp, fmt.Errorf("%w: existence mismatch", ErrInvalidProof)
	}
	if leaf != nil {
		prefix, c, rest, err := rlp.SplitString(leaf)
		if err != nil || len(rest) != 0 || len(c) > 32 {
			return sp, fmt.Errorf("%w: storage leaf shape", ErrInvalidProof)
		}
		sp.prefix, sp.content = prefix, c
	}
	return sp, nil
}

// Nonce returns the proven account nonce, zero for absent accounts.
func (p *StoragePlan) Nonce() *big.Int { return new(big.Int).SetBytes(p.leaf.items[0]) }

// Balance returns the proven account balance, zero for absent accounts.
func (p *StoragePlan) Balance() *big.Int { return new(big.Int).SetBytes(p.leaf.items[1]) }

// StorageRoot returns the proven storage root.
func (p *StoragePlan) StorageRoot() common.Hash {
	if p.leaf.absent {
		return types.EmptyRootHash
	}
	return common.BytesToHash(p.leaf.items[2])
}

// SlotValue returns the proven value of the i-th slot as a 32-byte word.
func (p *StoragePlan) SlotValue(i int) common.Hash { return common.BytesToHash(p.slots[i].content) }

// Assign witnesses the account proof followed by every slot proof.
func (p *StoragePlan) Assign(ctx *circuit.Context, keccak *circuit.KeccakChip) *StorageTrace {
	t := &StorageTrace{
		Address:   ctx.LoadWitnessBytes(p.in.Address[:]),
		StateRoot: ctx.LoadWitnessBytes(p.in.StateRoot[:]),
	}
	hashed := keccak.Fixed(ctx, t.Address)
	t.Account = p.account.assign(ctx, keccak, t.StateRoot, hashed[:])
	assignAccount(ctx, &t.Fields, p.leaf)
	for _, sp := range p.slots {
		t.Slots = append(t.Slots, assignSlot(ctx, keccak, t.Fields.StorageRoot, sp))
	}
	return t
}

// DecomposeStoragePhase0 verifies in natively and then witnesses it. Nothing
// is allocated when an error is returned.
func DecomposeStoragePhase0(ctx *circuit.Context, keccak *circuit.KeccakChip, in StorageInput) (*StorageTrace, error) {
	p, err := PrepareStorage(in)
	if err != nil {
		return nil, err
	}
	return p.Assign(ctx, keccak), nil
}

func assignAccount(ctx *circuit.Context, f *AccountFields, a accountLeaf) {
	if a.absent {
		f.List = rlp.AssignAbsentList(ctx)
		f.NonceItem = rlp.AssignAbsentString(ctx)
		f.BalanceItem = rlp.AssignAbsentString(ctx)
		f.RootItem = rlp.AssignAbsentString(ctx)
		f.CodeItem = rlp.AssignAbsentString(ctx)
		f.Nonce = circuit.ByteString{Len: f.NonceItem.Len, Bytes: ctx.LoadWitnessBytes(make([]byte, nonceCap))}
		f.Balance = circuit.ByteString{Len: f.BalanceItem.Len, Bytes: ctx.LoadWitnessBytes(make([]byte, balanceCap))}
		f.StorageRoot = ctx.LoadWitnessBytes(types.EmptyRootHash[:])
		f.CodeHash = ctx.LoadWitnessBytes(types.EmptyCodeHash[:])
		return
	}
	f.List = rlp.AssignList(ctx, a.listPrefix, a.payloadLen)
	f.NonceItem = rlp.AssignString(ctx, a.prefixes[0], len(a.items[0]))
	f.BalanceItem = rlp.AssignString(ctx, a.prefixes[1], len(a.items[1]))
	f.RootItem = rlp.AssignString(ctx, a.prefixes[2], 32)
	f.CodeItem = rlp.AssignString(ctx, a.prefixes[3], 32)
	f.Nonce = circuit.ByteString{Len: f.NonceItem.Len, Bytes: ctx.LoadWitnessBytes(padTo(a.items[0], nonceCap))}
	f.Balance = circuit.ByteString{Len: f.BalanceItem.Len, Bytes: ctx.LoadWitnessBytes(padTo(a.items[1], balanceCap))}
	f.StorageRoot = ctx.LoadWitnessBytes(a.items[2])
	f.CodeHash = ctx.LoadWitnessBytes(a.items[3])
}

func assignSlot(ctx *circuit.Context, keccak *circuit.KeccakChip, rootCells []circuit.Assigned, sp slotPlan) *SlotTrace {
	st := &SlotTrace{
		Key:  sp.in.Key,
		Slot: ctx.LoadWitnessBytes(sp.in.Key[:]),
	}
	hashed := keccak.Fixed(ctx, st.Slot)
	st.Proof = sp.walk.assign(ctx, keccak, rootCells, hashed[:])
	if sp.walk.Exists() {
		st.Item = rlp.AssignString(ctx, sp.prefix, len(sp.content))
	} else {
		st.Item = rlp.AssignAbsentString(ctx)
	}
	st.Value = circuit.ByteString{Len: st.Item.Len, Bytes: ctx.LoadWitnessBytes(padTo(sp.content, 32))}
	return st
}

func padTo(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

// DecomposeStoragePhase1 constrains the account proof, the account fields and
// every slot proof recorded by phase 0.
func DecomposeStoragePhase1(s *circuit.Synth, t *StorageTrace) error {
	if err := ConstrainProof(s, t.Account); err != nil {
		return fmt.Errorf("account proof: %w", err)
	}
	constrainAccount(s, t.Account, &t.Fields)
	for i, st := range t.Slots {
		if err := ConstrainProof(s, st.Proof); err != nil {
			return fmt.Errorf("slot %d proof: %w", i, err)
		}
		constrainSlot(s, st)
	}
	return nil
}

func constrainAccount(s *circuit.Synth, p *ProofTrace, f *AccountFields) {
	api := s.API()
	ex := s.Var(p.Exists)
	cur := rlp.NewCursor(s, s.Vars(p.Value.Bytes))

	start, end := cur.List(0, f.List, ex)
	s.AssertIsEqualIf(ex, end, s.Var(p.Value.Len))
	_, n1, nonce := cur.String(start, f.NonceItem, ex, nonceCap)
	_, n2, balance := cur.String(n1, f.BalanceItem, ex, balanceCap)
	_, n3, root := cur.String(n2, f.RootItem, ex, 32)
	_, n4, code := cur.String(n3, f.CodeItem, ex, 32)
	s.AssertIsEqualIf(ex, n4, end)
	s.AssertIsEqualIf(ex, s.Var(f.RootItem.Len), 32)
	s.AssertIsEqualIf(ex, s.Var(f.CodeItem.Len), 32)

	for i, v := range nonce {
		api.AssertIsEqual(s.Var(f.Nonce.Bytes[i]), v)
	}
	for i, v := range balance {
		api.AssertIsEqual(s.Var(f.Balance.Bytes[i]), v)
	}
	absent := api.Sub(1, ex)
	for i := 0; i < 32; i++ {
		api.AssertIsEqual(s.Var(f.StorageRoot[i]), api.Add(root[i], api.Mul(absent, int(types.EmptyRootHash[i]))))
		api.AssertIsEqual(s.Var(f.CodeHash[i]), api.Add(code[i], api.Mul(absent, int(types.EmptyCodeHash[i]))))
	}
}

func constrainSlot(s *circuit.Synth, st *SlotTrace) {
	api := s.API()
	ex := s.Var(st.Proof.Exists)
	cur := rlp.NewCursor(s, s.Vars(st.Proof.Value.Bytes))
	_, next, v := cur.String(0, st.Item, ex, 32)
	s.AssertIsEqualIf(ex, next, s.Var(st.Proof.Value.Len))
	for i, b := range v {
		api.AssertIsEqual(s.Var(st.Value.Bytes[i]), b)
	}
}

// Exists reports whether the account is present in the state trie.
func (t *StorageTrace) Exists() bool { return t.Account.Exists.Uint64() == 1 }

// NativeStorageRoot returns the witnessed storage root.
func (t *StorageTrace) NativeStorageRoot() common.Hash {
	var h common.Hash
	for i, c := range t.Fields.StorageRoot {
		h[i] = byte(c.Uint64())
	}
	return h
}

func (st *SlotTrace) Exists() bool { return st.Proof.Exists.Uint64() == 1 }

// NativeValue returns the slot value as a 32-byte word.
func (st *SlotTrace) NativeValue() common.Hash {
	return common.BytesToHash(st.Value.Native())
}
