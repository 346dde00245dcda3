package rlp

import (
	"errors"
	"fmt"
	"math/big"
)

var ErrUnsupportedNetwork = errors.New("unsupported network")

// Header field positions in RLP order.
const (
	FieldParentHash = iota
	FieldOmmersHash
	FieldBeneficiary
	FieldStateRoot
	FieldTransactionsRoot
	FieldReceiptsRoot
	FieldLogsBloom
	FieldDifficulty
	FieldNumber
	FieldGasLimit
	FieldGasUsed
	FieldTimestamp
	FieldExtraData
	FieldMixHash
	FieldNonce
	FieldBaseFee
	FieldWithdrawalsRoot
	FieldBlobGasUsed
	FieldExcessBlobGas
	FieldParentBeaconRoot
	FieldRequestsHash

	NumHeaderFields
)

// NumRequiredFields is the number of fields every header carries. Later
// fields appear as a prefix of the optional tail.
const NumRequiredFields = FieldBaseFee

var FieldNames = [NumHeaderFields]string{
	"parent_hash", "ommers_hash", "beneficiary", "state_root", "transactions_root",
	"receipts_root", "logs_bloom", "difficulty", "number", "gas_limit", "gas_used",
	"timestamp", "extra_data", "mix_hash", "nonce", "base_fee_per_gas",
	"withdrawals_root", "blob_gas_used", "excess_blob_gas", "parent_beacon_block_root",
	"requests_hash",
}

// Network fixes the per-field capacities of header decoding.
type Network struct {
	Name           string
	ChainID        uint64
	FieldsMaxBytes [NumHeaderFields]int
}

var proofOfStakeCaps = [NumHeaderFields]int{
	32, 32, 20, 32, 32, 32, 256, 7, 4, 4, 4, 4, 32, 32, 8, 6,
	32, 8, 8, 32, 32,
}

var (
	Mainnet = Network{Name: "mainnet", ChainID: 1, FieldsMaxBytes: proofOfStakeCaps}
	Sepolia = Network{Name: "sepolia", ChainID: 11155111, FieldsMaxBytes: proofOfStakeCaps}
)

// NetworkByChainID maps a chain id to its network.
func NetworkByChainID(id *big.Int) (Network, error) {
	if id != nil && id.IsUint64() {
		switch id.Uint64() {
		case Mainnet.ChainID:
			return Mainnet, nil
		case Sepolia.ChainID:
			return Sepolia, nil
		}
	}
	return Network{}, fmt.Errorf("chain id %v: %w", id, ErrUnsupportedNetwork)
}

// HeaderMaxBytes returns the padded length of an encoded header.
func (n Network) HeaderMaxBytes() int {
	payload := 0
	for _, c := range n.FieldsMaxBytes {
		payload += PrefixLen(c) + c
	}
	return PrefixLen(payload) + payload
}
