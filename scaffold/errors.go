package scaffold

import (
	"errors"

	"github.com/kysee/eth-zk-scaffold/circuits/mpt"
	"github.com/kysee/eth-zk-scaffold/circuits/rlp"
)

var (
	// ErrFinalized is returned by every operation after Finalize has started.
	ErrFinalized = errors.New("scaffold already finalized")
	// ErrProvider wraps any failure reported by the chain-data provider.
	ErrProvider = errors.New("provider failure")
	// ErrNoSlots is returned when EthGetProof is called without storage slots.
	ErrNoSlots = errors.New("at least one storage slot is required")
	// ErrDuplicateSlot is returned when EthGetProof is given the same slot twice.
	ErrDuplicateSlot = errors.New("duplicate storage slot")
	// ErrBeaconAnchor is returned when the beacon anchor rejects a header.
	ErrBeaconAnchor = errors.New("header not anchored to the beacon chain")

	ErrUnsupportedNetwork = rlp.ErrUnsupportedNetwork
	ErrHeaderTooLong      = rlp.ErrHeaderTooLong
	ErrInvalidProof       = mpt.ErrInvalidProof
	ErrUnsupportedProof   = mpt.ErrUnsupportedProof
)
