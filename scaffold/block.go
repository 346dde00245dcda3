package scaffold

import (
	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/circuits/rlp"
)

// EthBlock is a decoded block header whose fields are live cells of the
// scaffold's context. Optional post-London fields are zero-length when absent.
type EthBlock struct {
	ParentHash       circuit.ByteString
	OmmersHash       circuit.ByteString
	Beneficiary      circuit.ByteString
	StateRoot        circuit.ByteString
	TransactionsRoot circuit.ByteString
	ReceiptsRoot     circuit.ByteString
	LogsBloom        circuit.ByteString
	Difficulty       circuit.ByteString
	Number           circuit.ByteString
	GasLimit         circuit.ByteString
	GasUsed          circuit.ByteString
	Timestamp        circuit.ByteString
	ExtraData        circuit.ByteString
	MixHash          circuit.ByteString
	Nonce            circuit.ByteString
	BaseFee          circuit.ByteString

	WithdrawalsRoot  circuit.ByteString
	BlobGasUsed      circuit.ByteString
	ExcessBlobGas    circuit.ByteString
	ParentBeaconRoot circuit.ByteString
	RequestsHash     circuit.ByteString

	// BlockHash is keccak256 of the encoded header, one byte per cell.
	BlockHash [32]circuit.Assigned

	network string
}

func newEthBlock(t *rlp.HeaderTrace) *EthBlock {
	return &EthBlock{
		ParentHash:       t.Field(rlp.FieldParentHash),
		OmmersHash:       t.Field(rlp.FieldOmmersHash),
		Beneficiary:      t.Field(rlp.FieldBeneficiary),
		StateRoot:        t.Field(rlp.FieldStateRoot),
		TransactionsRoot: t.Field(rlp.FieldTransactionsRoot),
		ReceiptsRoot:     t.Field(rlp.FieldReceiptsRoot),
		LogsBloom:        t.Field(rlp.FieldLogsBloom),
		Difficulty:       t.Field(rlp.FieldDifficulty),
		Number:           t.Field(rlp.FieldNumber),
		GasLimit:         t.Field(rlp.FieldGasLimit),
		GasUsed:          t.Field(rlp.FieldGasUsed),
		Timestamp:        t.Field(rlp.FieldTimestamp),
		ExtraData:        t.Field(rlp.FieldExtraData),
		MixHash:          t.Field(rlp.FieldMixHash),
		Nonce:            t.Field(rlp.FieldNonce),
		BaseFee:          t.Field(rlp.FieldBaseFee),
		WithdrawalsRoot:  t.Field(rlp.FieldWithdrawalsRoot),
		BlobGasUsed:      t.Field(rlp.FieldBlobGasUsed),
		ExcessBlobGas:    t.Field(rlp.FieldExcessBlobGas),
		ParentBeaconRoot: t.Field(rlp.FieldParentBeaconRoot),
		RequestsHash:     t.Field(rlp.FieldRequestsHash),
		BlockHash:        t.Hash,
		network:          t.Network.Name,
	}
}

// Network returns the name of the network the header was fetched from.
func (b *EthBlock) Network() string { return b.network }
