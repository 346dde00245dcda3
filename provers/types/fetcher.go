package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	zrntcommon "github.com/protolambda/zrnt/eth2/beacon/common"
)

// HeaderAPIResponse represents the Beacon API response for /eth/v1/beacon/headers/{block_id}
type HeaderAPIResponse struct {
	ExecutionOptimistic bool `json:"execution_optimistic"`
	Finalized           bool `json:"finalized"`
	Data                struct {
		Root      zrntcommon.Root                    `json:"root"`
		Canonical bool                               `json:"canonical"`
		Header    zrntcommon.SignedBeaconBlockHeader `json:"header"`
	} `json:"data"`
}

// Provider defines the chain data the witness orchestrator consumes
type Provider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	// GetProof mirrors eth_getProof; keys are hex encoded storage slots
	GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error)
}

// BeaconAnchor checks an execution header against the beacon chain before it is witnessed
type BeaconAnchor interface {
	VerifyParentBeaconRoot(ctx context.Context, header *ethtypes.Header) error
}
