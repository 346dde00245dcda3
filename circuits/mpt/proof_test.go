package mpt

import (
	"context"
	"math/big"
	"testing"

	"github.com/consensys/gnark/test"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	chaintest "github.com/kysee/eth-zk-scaffold/test"
)

const (
	testBlock = 19_000_000
	testDepth = 6
)

var (
	vault  = common.HexToAddress("0x00000000219ab540356cbb839cbe05303d7705fa")
	nobody = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

func newChain(t *testing.T) *chaintest.Chain {
	t.Helper()
	accounts := chaintest.FillerAccounts(48)
	accounts = append(accounts, &chaintest.Account{
		Address: vault,
		Nonce:   1,
		Balance: uint256.MustFromDecimal("52000000000000000000000000"),
		Code:    []byte{0x60, 0x80, 0x60, 0x40, 0x52},
		Storage: map[common.Hash]common.Hash{
			common.BigToHash(big.NewInt(0)):  common.BigToHash(big.NewInt(7)),
			common.BigToHash(big.NewInt(1)):  common.HexToHash("0x00000000000000000000000000000000ffffffffffffffffffffffffffffffff"),
			common.BigToHash(big.NewInt(34)): common.HexToHash("0xd70a3c7f2d4a1e8f6b5c9a0e3f1d2c4b5a6978877665544332211000ffeeddcc"),
		},
	})
	c, err := chaintest.NewChain(1, []uint64{testBlock}, accounts...)
	require.NoError(t, err)
	return c
}

func fetch(t *testing.T, c *chaintest.Chain, addr common.Address, slots ...common.Hash) StorageInput {
	t.Helper()
	keys := make([]string, len(slots))
	for i, s := range slots {
		keys[i] = s.Hex()
	}
	res, err := c.GetProof(context.Background(), addr, keys, big.NewInt(testBlock))
	require.NoError(t, err)

	in := StorageInput{
		Address:      addr,
		StateRoot:    c.Headers[testBlock].Root,
		AccountDepth: testDepth,
		StorageDepth: testDepth,
	}
	in.AccountProof, err = chaintest.DecodeNodes(res.AccountProof)
	require.NoError(t, err)
	for i, sr := range res.StorageProof {
		nodes, err := chaintest.DecodeNodes(sr.Proof)
		require.NoError(t, err)
		in.Slots = append(in.Slots, SlotInput{Key: slots[i], Proof: nodes})
	}
	return in
}

func solve(t *testing.T, b *circuit.Builder) error {
	t.Helper()
	c := b.Build(nil)
	require.Empty(t, c.Violations())
	return test.IsSolved(c.Template(), c.Assignment(), circuit.Field())
}

func TestVerifyNative(t *testing.T) {
	c := newChain(t)
	root := c.Headers[testBlock].Root

	in := fetch(t, c, vault)
	val, err := VerifyNative(root, crypto.Keccak256(vault[:]), in.AccountProof)
	require.NoError(t, err)
	require.NotNil(t, val)

	absent := fetch(t, c, nobody)
	val, err = VerifyNative(root, crypto.Keccak256(nobody[:]), absent.AccountProof)
	require.NoError(t, err)
	require.Nil(t, val)

	_, err = VerifyNative(common.HexToHash("0x1234"), crypto.Keccak256(vault[:]), in.AccountProof)
	require.ErrorIs(t, err, ErrInvalidProof)

	val, err = VerifyNative(types.EmptyRootHash, crypto.Keccak256(vault[:]), nil)
	require.NoError(t, err)
	require.Nil(t, val)

	_, err = VerifyNative(root, crypto.Keccak256(vault[:]), nil)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestAssignProofInclusion(t *testing.T) {
	c := newChain(t)
	in := fetch(t, c, vault)
	root := c.Headers[testBlock].Root

	b := circuit.NewBuilder(0)
	ctx := b.Context()
	addr := ctx.LoadWitnessBytes(vault[:])
	key := b.Keccak().Fixed(ctx, addr)
	p, err := AssignProof(ctx, b.Keccak(), ctx.LoadWitnessBytes(root[:]), key[:], crypto.Keccak256(vault[:]), in.AccountProof, testDepth, AccountValueCap)
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.Exists.Uint64())
	require.Equal(t, uint64(len(in.AccountProof)), p.Depth.Uint64())

	leaf, err := VerifyNative(root, crypto.Keccak256(vault[:]), in.AccountProof)
	require.NoError(t, err)
	require.Equal(t, leaf, p.Value.Native())

	b.Defer(func(s *circuit.Synth) error { return ConstrainProof(s, p) })
	require.NoError(t, solve(t, b))
	t.Logf("✓ account inclusion proof of depth %d satisfied", len(in.AccountProof))
}

func TestAssignProofExclusion(t *testing.T) {
	c := newChain(t)
	in := fetch(t, c, nobody)
	root := c.Headers[testBlock].Root

	b := circuit.NewBuilder(0)
	ctx := b.Context()
	addr := ctx.LoadWitnessBytes(nobody[:])
	key := b.Keccak().Fixed(ctx, addr)
	p, err := AssignProof(ctx, b.Keccak(), ctx.LoadWitnessBytes(root[:]), key[:], crypto.Keccak256(nobody[:]), in.AccountProof, testDepth, AccountValueCap)
	require.NoError(t, err)
	require.Zero(t, p.Exists.Uint64())
	require.Empty(t, p.Value.Native())

	b.Defer(func(s *circuit.Synth) error { return ConstrainProof(s, p) })
	require.NoError(t, solve(t, b))
}

func TestAssignProofWrongKey(t *testing.T) {
	c := newChain(t)
	in := fetch(t, c, vault)
	root := c.Headers[testBlock].Root

	// the in-circuit key hashes a different address than the native walk used
	b := circuit.NewBuilder(0)
	ctx := b.Context()
	addr := ctx.LoadWitnessBytes(nobody[:])
	key := b.Keccak().Fixed(ctx, addr)
	p, err := AssignProof(ctx, b.Keccak(), ctx.LoadWitnessBytes(root[:]), key[:], crypto.Keccak256(vault[:]), in.AccountProof, testDepth, AccountValueCap)
	require.NoError(t, err)

	b.Defer(func(s *circuit.Synth) error { return ConstrainProof(s, p) })
	cc := b.Build(nil)
	require.Error(t, test.IsSolved(cc.Template(), cc.Assignment(), circuit.Field()))
}

func TestAssignProofTooDeep(t *testing.T) {
	c := newChain(t)
	in := fetch(t, c, vault)
	root := c.Headers[testBlock].Root

	b := circuit.NewBuilder(0)
	ctx := b.Context()
	key := b.Keccak().Fixed(ctx, ctx.LoadWitnessBytes(vault[:]))
	_, err := AssignProof(ctx, b.Keccak(), ctx.LoadWitnessBytes(root[:]), key[:], crypto.Keccak256(vault[:]), in.AccountProof, len(in.AccountProof)-1, AccountValueCap)
	require.ErrorIs(t, err, ErrUnsupportedProof)
}

func TestDecomposeStorage(t *testing.T) {
	c := newChain(t)
	slots := []common.Hash{
		common.BigToHash(big.NewInt(0)),
		common.BigToHash(big.NewInt(1)),
		common.BigToHash(big.NewInt(34)),
		common.BigToHash(big.NewInt(99)),
	}
	in := fetch(t, c, vault, slots...)

	b := circuit.NewBuilder(0)
	tr, err := DecomposeStoragePhase0(b.Context(), b.Keccak(), in)
	require.NoError(t, err)
	require.True(t, tr.Exists())
	require.Len(t, tr.Slots, 4)

	require.Equal(t, []byte{1}, tr.Fields.Nonce.Native())
	require.Equal(t, uint256.MustFromDecimal("52000000000000000000000000").ToBig().Bytes(), tr.Fields.Balance.Native())
	require.Equal(t, common.BigToHash(big.NewInt(7)), tr.Slots[0].NativeValue())
	require.True(t, tr.Slots[2].Exists())
	require.False(t, tr.Slots[3].Exists())
	require.Equal(t, common.Hash{}, tr.Slots[3].NativeValue())

	b.Defer(func(s *circuit.Synth) error { return DecomposeStoragePhase1(s, tr) })
	require.NoError(t, solve(t, b))
}

func TestDecomposeStorageAbsentAccount(t *testing.T) {
	c := newChain(t)
	in := fetch(t, c, nobody, common.BigToHash(big.NewInt(0)))

	b := circuit.NewBuilder(0)
	tr, err := DecomposeStoragePhase0(b.Context(), b.Keccak(), in)
	require.NoError(t, err)
	require.False(t, tr.Exists())
	require.Equal(t, types.EmptyRootHash, tr.NativeStorageRoot())
	require.False(t, tr.Slots[0].Exists())

	b.Defer(func(s *circuit.Synth) error { return DecomposeStoragePhase1(s, tr) })
	require.NoError(t, solve(t, b))
}

func TestDecomposeStorageRejectsForeignRoot(t *testing.T) {
	c := newChain(t)
	in := fetch(t, c, vault)
	in.StateRoot = types.EmptyRootHash

	b := circuit.NewBuilder(0)
	_, err := DecomposeStoragePhase0(b.Context(), b.Keccak(), in)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestPrepareStorageAllocatesNothing(t *testing.T) {
	c := newChain(t)
	slot := common.BigToHash(big.NewInt(0))
	in := fetch(t, c, vault, slot)

	plan, err := PrepareStorage(in)
	require.NoError(t, err)
	require.Equal(t, uint64(1), plan.Nonce().Uint64())
	require.Equal(t, common.BigToHash(big.NewInt(7)), plan.SlotValue(0))

	b := circuit.NewBuilder(0)
	cells := b.Context().NbCells()

	// slot proof deeper than allowed, account proof fine
	tooDeep := in
	tooDeep.StorageDepth = 1
	_, err = DecomposeStoragePhase0(b.Context(), b.Keccak(), tooDeep)
	require.ErrorIs(t, err, ErrUnsupportedProof)

	// tampered slot proof
	tampered := in
	tampered.Slots = []SlotInput{{Key: slot, Proof: [][]byte{append([]byte{}, in.Slots[0].Proof[0]...)}}}
	tampered.Slots[0].Proof[0][len(tampered.Slots[0].Proof[0])-1] ^= 1
	_, err = DecomposeStoragePhase0(b.Context(), b.Keccak(), tampered)
	require.ErrorIs(t, err, ErrInvalidProof)

	require.Equal(t, cells, b.Context().NbCells())
	require.Zero(t, b.Keccak().NbQueries())

	tr := plan.Assign(b.Context(), b.Keccak())
	require.Equal(t, common.BigToHash(big.NewInt(7)), tr.Slots[0].NativeValue())
	b.Defer(func(s *circuit.Synth) error { return DecomposeStoragePhase1(s, tr) })
	require.NoError(t, solve(t, b))
}
