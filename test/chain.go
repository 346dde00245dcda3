// Package test builds in-memory chains whose state proofs have the shape of
// eth_getProof responses.
package test

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

// Account describes one state trie entry.
type Account struct {
	Address common.Address
	Nonce   uint64
	Balance *uint256.Int
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Chain holds one state and headers committing to it.
type Chain struct {
	ID      *big.Int
	Headers map[uint64]*types.Header

	accounts map[common.Address]*Account
	state    *trie.Trie
	storage  map[common.Address]*trie.Trie
}

// proofList collects proof nodes root first, as trie.Prove emits them.
type proofList [][]byte

func (n *proofList) Put(key []byte, value []byte) error {
	*n = append(*n, common.CopyBytes(value))
	return nil
}

func (n *proofList) Delete(key []byte) error {
	panic("not supported")
}

func newTrie() *trie.Trie {
	db := rawdb.NewMemoryDatabase()
	return trie.NewEmpty(triedb.NewDatabase(db, nil))
}

// NewChain builds the state tries for accounts and headers for every number.
func NewChain(chainID uint64, numbers []uint64, accounts ...*Account) (*Chain, error) {
	c := &Chain{
		ID:       new(big.Int).SetUint64(chainID),
		Headers:  make(map[uint64]*types.Header),
		accounts: make(map[common.Address]*Account),
		state:    newTrie(),
		storage:  make(map[common.Address]*trie.Trie),
	}
	for _, acc := range accounts {
		st := newTrie()
		for k, v := range acc.Storage {
			if v == (common.Hash{}) {
				continue
			}
			enc, err := rlp.EncodeToBytes(common.TrimLeftZeroes(v[:]))
			if err != nil {
				return nil, err
			}
			st.MustUpdate(crypto.Keccak256(k[:]), enc)
		}
		balance := acc.Balance
		if balance == nil {
			balance = new(uint256.Int)
		}
		sa := types.StateAccount{
			Nonce:    acc.Nonce,
			Balance:  balance,
			Root:     st.Hash(),
			CodeHash: crypto.Keccak256(acc.Code),
		}
		enc, err := rlp.EncodeToBytes(&sa)
		if err != nil {
			return nil, err
		}
		c.state.MustUpdate(crypto.Keccak256(acc.Address[:]), enc)
		c.accounts[acc.Address] = acc
		c.storage[acc.Address] = st
	}
	root := c.state.Hash()
	for _, n := range numbers {
		c.Headers[n] = Header(n, root)
	}
	return c, nil
}

// Header returns a Cancun-shaped header with the given state root.
func Header(number uint64, root common.Hash) *types.Header {
	var bloom types.Bloom
	bloom[7] = 0x80
	withdrawals := types.EmptyWithdrawalsHash
	beacon := crypto.Keccak256Hash(new(big.Int).SetUint64(number).Bytes())
	blobGas, excess := uint64(131072), uint64(0)
	return &types.Header{
		ParentHash:       crypto.Keccak256Hash([]byte("parent"), new(big.Int).SetUint64(number).Bytes()),
		UncleHash:        types.EmptyUncleHash,
		Coinbase:         common.HexToAddress("0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5"),
		Root:             root,
		TxHash:           types.EmptyTxsHash,
		ReceiptHash:      types.EmptyReceiptsHash,
		Bloom:            bloom,
		Difficulty:       new(big.Int),
		Number:           new(big.Int).SetUint64(number),
		GasLimit:         30_000_000,
		GasUsed:          14_977_012,
		Time:             1_700_000_000 + number,
		Extra:            []byte("beaverbuild.org"),
		MixDigest:        crypto.Keccak256Hash([]byte("randao")),
		BaseFee:          big.NewInt(17_000_000_000),
		WithdrawalsHash:  &withdrawals,
		BlobGasUsed:      &blobGas,
		ExcessBlobGas:    &excess,
		ParentBeaconRoot: &beacon,
	}
}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.ID), nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if number == nil || !number.IsUint64() {
		return nil, ethereum.NotFound
	}
	h, ok := c.Headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(h), nil
}

// GetProof answers like eth_getProof. Absent accounts get an exclusion proof
// and empty storage proofs.
func (c *Chain) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	if _, err := c.HeaderByNumber(ctx, blockNumber); err != nil {
		return nil, err
	}
	var accountProof proofList
	if err := c.state.Prove(crypto.Keccak256(account[:]), &accountProof); err != nil {
		return nil, err
	}
	res := &gethclient.AccountResult{
		Address:      account,
		AccountProof: encodeNodes(accountProof),
		Balance:      new(big.Int),
		CodeHash:     types.EmptyCodeHash,
		StorageHash:  types.EmptyRootHash,
	}
	acc, ok := c.accounts[account]
	if ok {
		if acc.Balance != nil {
			res.Balance = acc.Balance.ToBig()
		}
		res.Nonce = acc.Nonce
		res.CodeHash = crypto.Keccak256Hash(acc.Code)
		res.StorageHash = c.storage[account].Hash()
	}

	for _, k := range keys {
		key := common.HexToHash(k)
		sr := gethclient.StorageResult{Key: k, Value: new(big.Int)}
		if ok {
			var proof proofList
			if err := c.storage[account].Prove(crypto.Keccak256(key[:]), &proof); err != nil {
				return nil, fmt.Errorf("storage proof %s: %w", k, err)
			}
			sr.Proof = encodeNodes(proof)
			v := acc.Storage[key]
			sr.Value = new(big.Int).SetBytes(v[:])
		}
		res.StorageProof = append(res.StorageProof, sr)
	}
	return res, nil
}

func encodeNodes(nodes [][]byte) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = hexutil.Encode(n)
	}
	return out
}

// DecodeNodes converts hex proof nodes back to bytes.
func DecodeNodes(nodes []string) ([][]byte, error) {
	out := make([][]byte, len(nodes))
	for i, n := range nodes {
		b, err := hexutil.Decode(n)
		if err != nil {
			return nil, fmt.Errorf("proof node %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// FillerAccounts returns n funded accounts with derived addresses so that
// proofs run through branch nodes.
func FillerAccounts(n int) []*Account {
	out := make([]*Account, n)
	for i := range out {
		out[i] = &Account{
			Address: common.BytesToAddress(crypto.Keccak256([]byte(fmt.Sprintf("filler-%d", i)))),
			Nonce:   uint64(i),
			Balance: uint256.NewInt(uint64(i+1) * 1_000_000_000),
		}
	}
	return out
}
