package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

// ChainSnapshot is a recorded set of provider answers, replayable offline.
type ChainSnapshot struct {
	ChainID hexutil.Uint64     `json:"chainId"`
	Headers []*ethtypes.Header `json:"headers"`
	Proofs  []AccountProof     `json:"proofs"`
}

// AccountProof is one eth_getProof answer at a block.
type AccountProof struct {
	BlockNumber  hexutil.Uint64 `json:"blockNumber"`
	Address      common.Address `json:"address"`
	AccountProof []HexBytes     `json:"accountProof"`
	Balance      *hexutil.Big   `json:"balance"`
	CodeHash     common.Hash    `json:"codeHash"`
	Nonce        hexutil.Uint64 `json:"nonce"`
	StorageHash  common.Hash    `json:"storageHash"`
	StorageProof []StorageProof `json:"storageProof"`
}

type StorageProof struct {
	Key   common.Hash  `json:"key"`
	Value *hexutil.Big `json:"value"`
	Proof []HexBytes   `json:"proof"`
}

// NewAccountProof records res as answered for blockNumber.
func NewAccountProof(blockNumber uint64, res *gethclient.AccountResult) (AccountProof, error) {
	p := AccountProof{
		BlockNumber: hexutil.Uint64(blockNumber),
		Address:     res.Address,
		Balance:     (*hexutil.Big)(res.Balance),
		CodeHash:    res.CodeHash,
		Nonce:       hexutil.Uint64(res.Nonce),
		StorageHash: res.StorageHash,
	}
	var err error
	if p.AccountProof, err = HexToBytesList(res.AccountProof); err != nil {
		return AccountProof{}, fmt.Errorf("account proof: %w", err)
	}
	for _, sr := range res.StorageProof {
		nodes, err := HexToBytesList(sr.Proof)
		if err != nil {
			return AccountProof{}, fmt.Errorf("storage proof %s: %w", sr.Key, err)
		}
		p.StorageProof = append(p.StorageProof, StorageProof{
			Key:   common.HexToHash(sr.Key),
			Value: (*hexutil.Big)(sr.Value),
			Proof: nodes,
		})
	}
	return p, nil
}

// Result converts back to the eth_getProof shape, keeping only the requested keys in order.
func (p AccountProof) Result(keys []string) (*gethclient.AccountResult, error) {
	res := &gethclient.AccountResult{
		Address:      p.Address,
		AccountProof: bytesListToHex(p.AccountProof),
		Balance:      (*big.Int)(p.Balance),
		CodeHash:     p.CodeHash,
		Nonce:        uint64(p.Nonce),
		StorageHash:  p.StorageHash,
	}
	for _, k := range keys {
		key := common.HexToHash(k)
		found := false
		for _, sp := range p.StorageProof {
			if sp.Key != key {
				continue
			}
			res.StorageProof = append(res.StorageProof, gethclient.StorageResult{
				Key:   k,
				Value: (*big.Int)(sp.Value),
				Proof: bytesListToHex(sp.Proof),
			})
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("storage key %s not recorded for %s", k, p.Address)
		}
	}
	return res, nil
}

func bytesListToHex(list []HexBytes) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = hexutil.Encode(b)
	}
	return out
}
