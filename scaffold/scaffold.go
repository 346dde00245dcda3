package scaffold

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	gethrlp "github.com/ethereum/go-ethereum/rlp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/circuits/mpt"
	"github.com/kysee/eth-zk-scaffold/circuits/rlp"
	"github.com/kysee/eth-zk-scaffold/provers/types"
	sharedtypes "github.com/kysee/eth-zk-scaffold/types"
)

type state uint8

const (
	stateCollecting state = iota
	stateFinalizing
	stateFinalized
)

func (s state) String() string {
	switch s {
	case stateCollecting:
		return "collecting"
	case stateFinalizing:
		return "finalizing"
	default:
		return "finalized"
	}
}

// Scaffold collects chain data as phase-0 witnesses and turns them into a
// circuit on Finalize. It is not safe for concurrent use.
type Scaffold struct {
	opts    options
	log     zerolog.Logger
	builder *circuit.Builder
	state   state

	instances      []circuit.Assigned
	headerWitness  []*rlp.HeaderTrace
	storageWitness []*mpt.StorageTrace
}

func New(opts ...Option) *Scaffold {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Scaffold{
		opts:    o,
		log:     o.logger.With().Str("module", "scaffold").Logger(),
		builder: circuit.NewBuilder(o.lookupBits),
	}
}

// Context returns the context new cells are allocated in. It stays valid
// until Finalize.
func (s *Scaffold) Context() *circuit.Context { return s.builder.Context() }

func (s *Scaffold) Gate() circuit.GateChip { return s.builder.Gate() }

func (s *Scaffold) Range() *circuit.RangeChip { return s.builder.Range() }

func (s *Scaffold) Keccak() *circuit.KeccakChip { return s.builder.Keccak() }

// Instances returns the exposed cells in public-input order.
func (s *Scaffold) Instances() []circuit.Assigned {
	out := make([]circuit.Assigned, len(s.instances))
	copy(out, s.instances)
	return out
}

func (s *Scaffold) checkCollecting() error {
	if s.state != stateCollecting {
		return fmt.Errorf("%w: state %s", ErrFinalized, s.state)
	}
	return nil
}

// fetchedHeader is a header together with the network it belongs to.
type fetchedHeader struct {
	network rlp.Network
	header  *ethtypes.Header
}

func networkOf(ctx context.Context, provider types.Provider) (rlp.Network, error) {
	id, err := provider.ChainID(ctx)
	if err != nil {
		return rlp.Network{}, fmt.Errorf("%w: chain id: %w", ErrProvider, err)
	}
	return rlp.NetworkByChainID(id)
}

func (s *Scaffold) fetchHeader(ctx context.Context, provider types.Provider, number uint64) (*ethtypes.Header, error) {
	header, err := provider.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("%w: header %d: %w", ErrProvider, number, err)
	}
	if header == nil || header.Number == nil || header.Number.Uint64() != number {
		return nil, fmt.Errorf("%w: header %d: provider returned a different block", ErrProvider, number)
	}
	if s.opts.anchor != nil && header.ParentBeaconRoot != nil {
		if err := s.opts.anchor.VerifyParentBeaconRoot(ctx, header); err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", ErrBeaconAnchor, number, err)
		}
	}
	return header, nil
}

// EthGetBlockByNumber fetches block number from provider and witnesses its
// header. Nothing is witnessed when an error is returned.
func (s *Scaffold) EthGetBlockByNumber(ctx context.Context, provider types.Provider, number uint64) (*EthBlock, error) {
	if err := s.checkCollecting(); err != nil {
		return nil, err
	}
	network, err := networkOf(ctx, provider)
	if err != nil {
		return nil, err
	}
	header, err := s.fetchHeader(ctx, provider, number)
	if err != nil {
		return nil, err
	}
	return s.witnessHeader(fetchedHeader{network: network, header: header})
}

// EthGetBlocksByNumber fetches every block concurrently and witnesses them in
// argument order. Either all blocks are witnessed or none.
func (s *Scaffold) EthGetBlocksByNumber(ctx context.Context, provider types.Provider, numbers ...uint64) ([]*EthBlock, error) {
	if err := s.checkCollecting(); err != nil {
		return nil, err
	}
	network, err := networkOf(ctx, provider)
	if err != nil {
		return nil, err
	}

	// Step 1: fetch
	start := time.Now()
	fetched := make([]fetchedHeader, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range numbers {
		g.Go(func() error {
			header, err := s.fetchHeader(gctx, provider, n)
			if err != nil {
				return err
			}
			fetched[i] = fetchedHeader{network: network, header: header}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug().Int("blocks", len(numbers)).Dur("elapsed", time.Since(start)).Msg("headers fetched")

	// Step 2: encode every header before witnessing any of them
	raws := make([][]byte, len(fetched))
	for i, f := range fetched {
		if raws[i], err = encodeHeader(f); err != nil {
			return nil, err
		}
	}

	// Step 3: witness in order
	blocks := make([]*EthBlock, len(fetched))
	for i, f := range fetched {
		if blocks[i], err = s.witnessRaw(f, raws[i]); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

func encodeHeader(f fetchedHeader) ([]byte, error) {
	raw, err := gethrlp.EncodeToBytes(f.header)
	if err != nil {
		return nil, fmt.Errorf("encode header %d: %w", f.header.Number, err)
	}
	if maxLen := f.network.HeaderMaxBytes(); len(raw) > maxLen {
		return nil, fmt.Errorf("header %d: %d > %d bytes: %w", f.header.Number, len(raw), maxLen, ErrHeaderTooLong)
	}
	return raw, nil
}

func (s *Scaffold) witnessHeader(f fetchedHeader) (*EthBlock, error) {
	raw, err := encodeHeader(f)
	if err != nil {
		return nil, err
	}
	return s.witnessRaw(f, raw)
}

func (s *Scaffold) witnessRaw(f fetchedHeader, raw []byte) (*EthBlock, error) {
	b := s.builder
	trace, err := rlp.DecomposeHeaderPhase0(b.Context(), b.Keccak(), raw, f.network)
	if err != nil {
		return nil, fmt.Errorf("header %d: %w", f.header.Number, err)
	}
	s.headerWitness = append(s.headerWitness, trace)

	s.log.Info().
		Str("network", f.network.Name).
		Uint64("block", f.header.Number.Uint64()).
		Str("hash", f.header.Hash().Hex()).
		Int("bytes", len(raw)).
		Int("cells", b.Context().NbCells()).
		Msg("header witnessed")
	return newEthBlock(trace), nil
}

// EthGetProof fetches the eth_getProof response for address and slots at
// block number and witnesses it against that block's state root. Absent
// accounts and slots are proven absent rather than reported as errors.
func (s *Scaffold) EthGetProof(ctx context.Context, provider types.Provider, address common.Address, slots []common.Hash, number uint64) (*StorageProofDigest, error) {
	if err := s.checkCollecting(); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}
	seen := make(map[common.Hash]struct{}, len(slots))
	for _, slot := range slots {
		if _, ok := seen[slot]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSlot, slot)
		}
		seen[slot] = struct{}{}
	}
	if _, err := networkOf(ctx, provider); err != nil {
		return nil, err
	}

	// Step 1: state root of the block
	header, err := s.fetchHeader(ctx, provider, number)
	if err != nil {
		return nil, err
	}

	// Step 2: proofs
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = slot.Hex()
	}
	res, err := provider.GetProof(ctx, address, keys, header.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: proof %s at %d: %w", ErrProvider, address, number, err)
	}
	in, err := storageInput(address, slots, header.Root, res)
	if err != nil {
		return nil, err
	}
	in.AccountDepth = s.opts.accountDepth
	in.StorageDepth = s.opts.storageDepth

	// Step 3: verify natively, nothing is witnessed on failure
	plan, err := mpt.PrepareStorage(in)
	if err != nil {
		return nil, fmt.Errorf("proof %s at %d: %w", address, number, err)
	}
	if err := crossCheck(plan, res); err != nil {
		return nil, fmt.Errorf("proof %s at %d: %w", address, number, err)
	}

	// Step 4: witness
	b := s.builder
	trace := plan.Assign(b.Context(), b.Keccak())
	s.storageWitness = append(s.storageWitness, trace)

	s.log.Info().
		Str("address", address.Hex()).
		Uint64("block", number).
		Bool("exists", trace.Exists()).
		Int("slots", len(slots)).
		Int("cells", b.Context().NbCells()).
		Msg("storage proof witnessed")
	return newStorageProofDigest(trace, b.Context().LoadWitnessUint64(number)), nil
}

func storageInput(address common.Address, slots []common.Hash, root common.Hash, res *gethclient.AccountResult) (mpt.StorageInput, error) {
	in := mpt.StorageInput{Address: address, StateRoot: root}
	if res.Address != address {
		return in, fmt.Errorf("%w: proof is for %s, want %s", ErrProvider, res.Address, address)
	}
	nodes, err := sharedtypes.HexToBytesList(res.AccountProof)
	if err != nil {
		return in, fmt.Errorf("%w: account proof: %w", ErrProvider, err)
	}
	in.AccountProof = sharedtypes.Bytes(nodes)

	if len(res.StorageProof) != len(slots) {
		return in, fmt.Errorf("%w: %d storage proofs for %d slots", ErrProvider, len(res.StorageProof), len(slots))
	}
	for i, sr := range res.StorageProof {
		if common.HexToHash(sr.Key) != slots[i] {
			return in, fmt.Errorf("%w: storage proof %d is for %s, want %s", ErrProvider, i, sr.Key, slots[i])
		}
		nodes, err := sharedtypes.HexToBytesList(sr.Proof)
		if err != nil {
			return in, fmt.Errorf("%w: storage proof %s: %w", ErrProvider, sr.Key, err)
		}
		in.Slots = append(in.Slots, mpt.SlotInput{Key: slots[i], Proof: sharedtypes.Bytes(nodes)})
	}
	return in, nil
}

// crossCheck compares the values recovered from the proofs with the values
// the provider reported alongside them.
func crossCheck(p *mpt.StoragePlan, res *gethclient.AccountResult) error {
	if n := p.Nonce(); !n.IsUint64() || n.Uint64() != res.Nonce {
		return fmt.Errorf("%w: nonce %s, provider reported %d", ErrInvalidProof, n, res.Nonce)
	}
	if balance := p.Balance(); res.Balance != nil && balance.Cmp(res.Balance) != 0 {
		return fmt.Errorf("%w: balance %s, provider reported %s", ErrInvalidProof, balance, res.Balance)
	}
	for i, sp := range res.StorageProof {
		want := sp.Value
		if want == nil {
			want = new(big.Int)
		}
		if got := p.SlotValue(i).Big(); got.Cmp(want) != 0 {
			return fmt.Errorf("%w: slot %s is %s, provider reported %s", ErrInvalidProof, sp.Key, got, want)
		}
	}
	return nil
}

// ExposePublic appends v to the public instances.
func (s *Scaffold) ExposePublic(v circuit.Assigned) error {
	if err := s.checkCollecting(); err != nil {
		return err
	}
	s.instances = append(s.instances, v)
	return nil
}

// Finalize queues the phase-1 constraints of every witnessed header and then
// every witnessed proof, in the order they were fetched, and returns the
// circuit. It can be called once.
func (s *Scaffold) Finalize() (*circuit.Circuit, error) {
	if err := s.checkCollecting(); err != nil {
		return nil, err
	}
	s.state = stateFinalizing

	for i, trace := range s.headerWitness {
		s.builder.Defer(func(syn *circuit.Synth) error {
			if err := rlp.DecomposeHeaderPhase1(syn, trace); err != nil {
				return fmt.Errorf("header %d: %w", i, err)
			}
			return nil
		})
	}
	for i, trace := range s.storageWitness {
		s.builder.Defer(func(syn *circuit.Synth) error {
			if err := mpt.DecomposeStoragePhase1(syn, trace); err != nil {
				return fmt.Errorf("storage proof %d: %w", i, err)
			}
			return nil
		})
	}
	c := s.builder.Build(s.instances)
	s.headerWitness, s.storageWitness = nil, nil
	s.state = stateFinalized

	st := c.Stats()
	s.log.Info().
		Int("cells", st.Cells).
		Int("witness", st.Witness).
		Int("instances", st.Instances).
		Int("keccak", st.KeccakQueries).
		Int("gadgets", st.Gadgets).
		Msg("circuit finalized")
	return c, nil
}
