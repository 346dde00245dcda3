package scaffold

import (
	"github.com/rs/zerolog"

	"github.com/kysee/eth-zk-scaffold/circuits/mpt"
	"github.com/kysee/eth-zk-scaffold/provers/types"
)

type options struct {
	lookupBits   int
	logger       zerolog.Logger
	accountDepth int
	storageDepth int
	anchor       types.BeaconAnchor
}

type Option func(*options)

// WithLookupBits sets the width of the range lookup table.
func WithLookupBits(bits int) Option {
	return func(o *options) { o.lookupBits = bits }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAccountProofDepth bounds the number of state trie nodes per account proof.
func WithAccountProofDepth(depth int) Option {
	return func(o *options) { o.accountDepth = depth }
}

// WithStorageProofDepth bounds the number of storage trie nodes per slot proof.
func WithStorageProofDepth(depth int) Option {
	return func(o *options) { o.storageDepth = depth }
}

// WithBeaconAnchor checks every post-Cancun header against the beacon chain
// before it is witnessed.
func WithBeaconAnchor(anchor types.BeaconAnchor) Option {
	return func(o *options) { o.anchor = anchor }
}

func defaultOptions() options {
	return options{
		logger:       zerolog.Nop(),
		accountDepth: mpt.DefaultAccountDepth,
		storageDepth: mpt.DefaultStorageDepth,
	}
}
