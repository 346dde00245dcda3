package scaffold

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"

	"github.com/consensys/gnark/test"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	chaintest "github.com/kysee/eth-zk-scaffold/test"
)

const (
	blockNumber = 16_000_000
	testDepth   = 6
)

var (
	vault  = common.HexToAddress("0x00000000219ab540356cbb839cbe05303d7705fa")
	nobody = common.HexToAddress("0x000000000000000000000000000000000000dead")

	slot0  = common.BigToHash(big.NewInt(0))
	slot1  = common.BigToHash(big.NewInt(1))
	slot99 = common.BigToHash(big.NewInt(99))
)

func newChain(t *testing.T, chainID uint64, numbers ...uint64) *chaintest.Chain {
	t.Helper()
	accounts := chaintest.FillerAccounts(32)
	accounts = append(accounts, &chaintest.Account{
		Address: vault,
		Nonce:   1,
		Balance: uint256.MustFromDecimal("1000000000000000000000"),
		Code:    []byte{0x60, 0x80, 0x60, 0x40, 0x52},
		Storage: map[common.Hash]common.Hash{
			slot0: common.BigToHash(big.NewInt(7)),
			slot1: common.HexToHash("0x00000000000000000000000000000000ffffffffffffffffffffffffffffffff"),
		},
	})
	c, err := chaintest.NewChain(chainID, numbers, accounts...)
	require.NoError(t, err)
	return c
}

func newScaffold(opts ...Option) *Scaffold {
	logger := zerolog.New(os.Stdout).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	opts = append([]Option{
		WithLogger(logger),
		WithAccountProofDepth(testDepth),
		WithStorageProofDepth(testDepth),
	}, opts...)
	return New(opts...)
}

func solve(t *testing.T, c *circuit.Circuit) error {
	t.Helper()
	require.Empty(t, c.Violations())
	return test.IsSolved(c.Template(), c.Assignment(), circuit.Field())
}

func TestBlockNumberScenario(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	s := newScaffold()

	block, err := s.EthGetBlockByNumber(context.Background(), chain, blockNumber)
	require.NoError(t, err)
	require.Equal(t, "mainnet", block.Network())

	// 0xf42400 in a 4-byte container
	require.Equal(t, uint64(3), block.Number.Len.Uint64())
	got := make([]uint64, block.Number.Cap())
	for i, b := range block.Number.Bytes {
		got[i] = b.Uint64()
	}
	require.Equal(t, []uint64{0xf4, 0x24, 0x00, 0x00}, got)

	number := block.Number.Evaluate(s.Context(), s.Gate())
	require.Equal(t, uint64(blockNumber), number.Uint64())
	require.NoError(t, s.ExposePublic(number))

	hash := chain.Headers[blockNumber].Hash()
	for i, b := range block.BlockHash {
		require.Equal(t, uint64(hash[i]), b.Uint64())
	}
	require.Equal(t, chain.Headers[blockNumber].Root[:], block.StateRoot.Native())
	require.Equal(t, chain.Headers[blockNumber].BaseFee.Bytes(), block.BaseFee.Native())
	require.Empty(t, block.RequestsHash.Native())

	c, err := s.Finalize()
	require.NoError(t, err)
	require.Equal(t, 1, c.NbInstances())
	require.Equal(t, big.NewInt(blockNumber), c.InstanceValues()[0])
	require.NoError(t, solve(t, c))
	t.Logf("✓ block %d number evaluated and exposed (%+v)", blockNumber, c.Stats())
}

func TestBlockHashAsInstance(t *testing.T) {
	chain := newChain(t, 11155111, blockNumber)
	s := newScaffold()

	block, err := s.EthGetBlockByNumber(context.Background(), chain, blockNumber)
	require.NoError(t, err)
	require.Equal(t, "sepolia", block.Network())
	for _, b := range block.BlockHash {
		require.NoError(t, s.ExposePublic(b))
	}

	c, err := s.Finalize()
	require.NoError(t, err)
	require.NoError(t, solve(t, c))

	hash := chain.Headers[blockNumber].Hash()
	for i, v := range c.InstanceValues() {
		require.Equal(t, uint64(hash[i]), v.Uint64())
	}
}

func TestStorageProofScenario(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	s := newScaffold()
	ctx := context.Background()

	block, err := s.EthGetBlockByNumber(ctx, chain, blockNumber)
	require.NoError(t, err)
	digest, err := s.EthGetProof(ctx, chain, vault, []common.Hash{slot1, slot0, slot99}, blockNumber)
	require.NoError(t, err)

	require.Equal(t, uint64(1), digest.Exists.Uint64())
	require.Equal(t, []common.Hash{slot1, slot0, slot99}, digest.Keys)
	require.Equal(t, uint64(1), digest.Slot(slot0).Exists.Uint64())
	require.Equal(t, []byte{7}, digest.Slot(slot0).Value.Native())
	require.Zero(t, digest.Slot(slot99).Exists.Uint64())
	require.Empty(t, digest.Slot(slot99).Value.Native())
	require.Nil(t, digest.Slot(common.BigToHash(big.NewInt(5))))

	digest.AssertStateRoot(s.Context(), s.Gate(), block)
	require.NoError(t, s.ExposePublic(digest.Slot(slot0).Value.Evaluate(s.Context(), s.Gate())))

	c, err := s.Finalize()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), c.InstanceValues()[0])
	require.NoError(t, solve(t, c))
	t.Logf("✓ storage of %s proven against block %d", vault, blockNumber)
}

func TestAbsentAccountScenario(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	s := newScaffold()
	ctx := context.Background()

	block, err := s.EthGetBlockByNumber(ctx, chain, blockNumber)
	require.NoError(t, err)
	digest, err := s.EthGetProof(ctx, chain, nobody, []common.Hash{slot0}, blockNumber)
	require.NoError(t, err)

	require.Zero(t, digest.Exists.Uint64())
	require.Empty(t, digest.Nonce.Native())
	require.Empty(t, digest.Balance.Native())
	root := ethtypes.EmptyRootHash
	for i, c := range digest.StorageRoot {
		require.Equal(t, uint64(root[i]), c.Uint64())
	}
	code := ethtypes.EmptyCodeHash
	for i, c := range digest.CodeHash {
		require.Equal(t, uint64(code[i]), c.Uint64())
	}
	require.Zero(t, digest.Slot(slot0).Exists.Uint64())

	digest.AssertStateRoot(s.Context(), s.Gate(), block)
	require.NoError(t, s.ExposePublic(digest.Exists))

	c, err := s.Finalize()
	require.NoError(t, err)
	require.NoError(t, solve(t, c))
}

func TestStateRootOfAnotherBlock(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	other := chaintest.Header(blockNumber+1, ethtypes.EmptyRootHash)
	chain.Headers[blockNumber+1] = other
	s := newScaffold()
	ctx := context.Background()

	block, err := s.EthGetBlockByNumber(ctx, chain, blockNumber+1)
	require.NoError(t, err)
	digest, err := s.EthGetProof(ctx, chain, vault, []common.Hash{slot0}, blockNumber)
	require.NoError(t, err)
	digest.AssertStateRoot(s.Context(), s.Gate(), block)

	c, err := s.Finalize()
	require.NoError(t, err)
	require.NotEmpty(t, c.Violations())
	require.Error(t, test.IsSolved(c.Template(), c.Assignment(), circuit.Field()))
}

func TestUnsupportedNetworkScenario(t *testing.T) {
	chain := newChain(t, 999, blockNumber)
	s := newScaffold()

	before := s.Context().NbCells()
	_, err := s.EthGetBlockByNumber(context.Background(), chain, blockNumber)
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
	require.Equal(t, before, s.Context().NbCells())
	require.Zero(t, s.Keccak().NbQueries())

	_, err = s.EthGetProof(context.Background(), chain, vault, []common.Hash{slot0}, blockNumber)
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
	require.Equal(t, before, s.Context().NbCells())
}

func TestEmptyCircuitScenario(t *testing.T) {
	s := newScaffold()
	c, err := s.Finalize()
	require.NoError(t, err)
	require.Zero(t, c.NbInstances())
	require.Zero(t, c.Stats().Witness)
	require.NoError(t, solve(t, c))
}

func TestFinalizeLifecycle(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	s := newScaffold()
	ctx := context.Background()

	_, err := s.Finalize()
	require.NoError(t, err)

	_, err = s.Finalize()
	require.ErrorIs(t, err, ErrFinalized)
	_, err = s.EthGetBlockByNumber(ctx, chain, blockNumber)
	require.ErrorIs(t, err, ErrFinalized)
	_, err = s.EthGetBlocksByNumber(ctx, chain, blockNumber)
	require.ErrorIs(t, err, ErrFinalized)
	_, err = s.EthGetProof(ctx, chain, vault, []common.Hash{slot0}, blockNumber)
	require.ErrorIs(t, err, ErrFinalized)
	require.ErrorIs(t, s.ExposePublic(s.Context().LoadZero()), ErrFinalized)
}

func TestProviderErrors(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	s := newScaffold()
	ctx := context.Background()

	_, err := s.EthGetBlockByNumber(ctx, chain, blockNumber+5)
	require.ErrorIs(t, err, ErrProvider)
	require.ErrorIs(t, err, ethereum.NotFound)

	_, err = s.EthGetProof(ctx, chain, vault, nil, blockNumber)
	require.ErrorIs(t, err, ErrNoSlots)

	_, err = s.EthGetProof(ctx, failingProofs{chain}, vault, []common.Hash{slot0}, blockNumber)
	require.ErrorIs(t, err, ErrProvider)

	// still usable after recoverable failures
	c, err := s.Finalize()
	require.NoError(t, err)
	require.NoError(t, solve(t, c))
}

func TestProviderReportsWrongValue(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	s := newScaffold()

	_, err := s.EthGetProof(context.Background(), lyingProvider{chain}, vault, []common.Hash{slot0}, blockNumber)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestFailedProofWitnessesNothing(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	ctx := context.Background()
	// the vault storage proof is a branch and a leaf
	s := newScaffold(WithStorageProofDepth(1))
	cells, queries := s.Context().NbCells(), s.Keccak().NbQueries()

	_, err := s.EthGetProof(ctx, chain, vault, []common.Hash{slot0}, blockNumber)
	require.ErrorIs(t, err, ErrUnsupportedProof)
	require.Equal(t, cells, s.Context().NbCells())
	require.Equal(t, queries, s.Keccak().NbQueries())

	// the reported value disagrees with the proof at full depth
	full := newScaffold()
	_, err = full.EthGetProof(ctx, lyingProvider{chain}, vault, []common.Hash{slot0}, blockNumber)
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Equal(t, cells, full.Context().NbCells())
	require.Zero(t, full.Keccak().NbQueries())

	_, err = s.EthGetProof(ctx, chain, vault, []common.Hash{slot0, slot1, slot0}, blockNumber)
	require.ErrorIs(t, err, ErrDuplicateSlot)
	require.Equal(t, cells, s.Context().NbCells())

	// an absent account has an empty storage trie, which fits depth 1
	digest, err := s.EthGetProof(ctx, chain, nobody, []common.Hash{slot0}, blockNumber)
	require.NoError(t, err)
	require.Zero(t, digest.Exists.Uint64())

	c, err := s.Finalize()
	require.NoError(t, err)
	// address and slot hashes, one per account level and one storage level
	require.Equal(t, queries+2+testDepth+1, c.Stats().KeccakQueries)
	require.NoError(t, solve(t, c))
	t.Logf("✓ failed proofs left no witness (%+v)", c.Stats())
}

func TestEthGetBlocksByNumber(t *testing.T) {
	numbers := []uint64{blockNumber + 2, blockNumber, blockNumber + 1}
	chain := newChain(t, 1, numbers...)
	s := newScaffold()

	blocks, err := s.EthGetBlocksByNumber(context.Background(), chain, numbers...)
	require.NoError(t, err)
	require.Len(t, blocks, len(numbers))
	for i, b := range blocks {
		n := b.Number.Evaluate(s.Context(), s.Gate())
		require.Equal(t, numbers[i], n.Uint64())
		require.NoError(t, s.ExposePublic(n))
	}
	require.Equal(t, len(numbers), s.Keccak().NbQueries())

	before := s.Context().NbCells()
	_, err = s.EthGetBlocksByNumber(context.Background(), chain, blockNumber, blockNumber+9)
	require.ErrorIs(t, err, ErrProvider)
	require.Equal(t, before, s.Context().NbCells())

	c, err := s.Finalize()
	require.NoError(t, err)
	require.NoError(t, solve(t, c))
}

func TestBeaconAnchor(t *testing.T) {
	chain := newChain(t, 1, blockNumber)
	anchor := &fakeAnchor{err: errors.New("root mismatch")}
	s := newScaffold(WithBeaconAnchor(anchor))

	_, err := s.EthGetBlockByNumber(context.Background(), chain, blockNumber)
	require.ErrorIs(t, err, ErrBeaconAnchor)
	require.Equal(t, 1, anchor.calls)

	anchor.err = nil
	_, err = s.EthGetBlockByNumber(context.Background(), chain, blockNumber)
	require.NoError(t, err)
	require.Equal(t, 2, anchor.calls)
}

type fakeAnchor struct {
	err   error
	calls int
}

func (a *fakeAnchor) VerifyParentBeaconRoot(ctx context.Context, header *ethtypes.Header) error {
	a.calls++
	return a.err
}

type failingProofs struct{ *chaintest.Chain }

func (failingProofs) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	return nil, errors.New("connection reset")
}

type lyingProvider struct{ *chaintest.Chain }

func (p lyingProvider) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	res, err := p.Chain.GetProof(ctx, account, keys, blockNumber)
	if err != nil {
		return nil, err
	}
	res.StorageProof[0].Value = big.NewInt(8)
	return res, nil
}
