package scaffold

import (
	"github.com/ethereum/go-ethereum/common"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/circuits/mpt"
)

// StorageProofDigest ties an account and a set of its storage slots to a
// state root. Address, slots and the state root are private cells.
type StorageProofDigest struct {
	Address     []circuit.Assigned
	BlockNumber circuit.Assigned
	StateRoot   []circuit.Assigned

	// Exists is 1 when the account is present in the state trie. Absent
	// accounts have zero-length Nonce and Balance, the empty trie root as
	// StorageRoot and the empty code hash as CodeHash.
	Exists      circuit.Assigned
	Nonce       circuit.ByteString
	Balance     circuit.ByteString
	StorageRoot []circuit.Assigned
	CodeHash    []circuit.Assigned

	// Keys lists the requested slots in request order.
	Keys  []common.Hash
	Slots map[common.Hash]*SlotValue
}

// SlotValue is a proven storage value. Absent slots have Exists 0 and a
// zero-length Value.
type SlotValue struct {
	Key    []circuit.Assigned
	Value  circuit.ByteString
	Exists circuit.Assigned
}

func newStorageProofDigest(t *mpt.StorageTrace, number circuit.Assigned) *StorageProofDigest {
	d := &StorageProofDigest{
		Address:     t.Address,
		BlockNumber: number,
		StateRoot:   t.StateRoot,
		Exists:      t.Account.Exists,
		Nonce:       t.Fields.Nonce,
		Balance:     t.Fields.Balance,
		StorageRoot: t.Fields.StorageRoot,
		CodeHash:    t.Fields.CodeHash,
		Slots:       make(map[common.Hash]*SlotValue, len(t.Slots)),
	}
	for _, st := range t.Slots {
		d.Keys = append(d.Keys, st.Key)
		d.Slots[st.Key] = &SlotValue{
			Key:    st.Slot,
			Value:  st.Value,
			Exists: st.Proof.Exists,
		}
	}
	return d
}

// Slot returns the value proven for key, or nil when key was not requested.
func (d *StorageProofDigest) Slot(key common.Hash) *SlotValue { return d.Slots[key] }

// AssertStateRoot constrains the digest's state root to equal the state root
// field of block, and its block number to equal the block's number.
func (d *StorageProofDigest) AssertStateRoot(ctx *circuit.Context, gate circuit.GateChip, block *EthBlock) {
	gate.AssertConstant(ctx, block.StateRoot.Len, 32)
	for i, c := range d.StateRoot {
		gate.AssertEqual(ctx, c, block.StateRoot.Bytes[i])
	}
	gate.AssertEqual(ctx, d.BlockNumber, block.Number.Evaluate(ctx, gate))
}
