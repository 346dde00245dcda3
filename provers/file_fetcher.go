package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	cfgtypes "github.com/kysee/eth-zk-scaffold/provers/types"
	"github.com/kysee/eth-zk-scaffold/types"
)

// SnapshotProvider implements Provider by replaying a recorded ChainSnapshot
type SnapshotProvider struct {
	snap    *types.ChainSnapshot
	headers map[uint64]*ethtypes.Header
}

var _ cfgtypes.Provider = (*SnapshotProvider)(nil)

func NewSnapshotProvider(snap *types.ChainSnapshot) *SnapshotProvider {
	p := &SnapshotProvider{snap: snap, headers: make(map[uint64]*ethtypes.Header)}
	for _, h := range snap.Headers {
		p.headers[h.Number.Uint64()] = h
	}
	return p
}

// NewFileProvider reads and parses a snapshot from a local JSON file
func NewFileProvider(filePath string) (*SnapshotProvider, error) {
	// Read the file
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	// Parse JSON
	var snap types.ChainSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return NewSnapshotProvider(&snap), nil
}

func (p *SnapshotProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(uint64(p.snap.ChainID)), nil
}

func (p *SnapshotProvider) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	if number == nil || !number.IsUint64() {
		return nil, ethereum.NotFound
	}
	h, ok := p.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return ethtypes.CopyHeader(h), nil
}

func (p *SnapshotProvider) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	if blockNumber == nil || !blockNumber.IsUint64() {
		return nil, ethereum.NotFound
	}
	for _, ap := range p.snap.Proofs {
		if ap.Address == account && uint64(ap.BlockNumber) == blockNumber.Uint64() {
			return ap.Result(keys)
		}
	}
	return nil, fmt.Errorf("proof of %s at %d: %w", account, blockNumber, ethereum.NotFound)
}

// Recorder wraps a Provider and records every answer into a ChainSnapshot
// that a SnapshotProvider can replay. It is safe for concurrent use.
type Recorder struct {
	provider cfgtypes.Provider

	mu   sync.Mutex
	snap types.ChainSnapshot
	seen map[uint64]bool
}

var _ cfgtypes.Provider = (*Recorder)(nil)

func NewRecorder(provider cfgtypes.Provider) *Recorder {
	return &Recorder{provider: provider, seen: make(map[uint64]bool)}
}

func (r *Recorder) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := r.provider.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if !id.IsUint64() {
		return nil, fmt.Errorf("chain id %s does not fit in 64 bits", id)
	}
	r.mu.Lock()
	r.snap.ChainID = hexutil.Uint64(id.Uint64())
	r.mu.Unlock()
	return id, nil
}

func (r *Recorder) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	h, err := r.provider.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if h == nil || h.Number == nil {
		return nil, fmt.Errorf("header %v without a number: %w", number, ethereum.NotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := h.Number.Uint64(); !r.seen[n] {
		r.seen[n] = true
		r.snap.Headers = append(r.snap.Headers, ethtypes.CopyHeader(h))
	}
	return h, nil
}

// GetProof pins a nil blockNumber (latest) to the current head so the
// recording replays.
func (r *Recorder) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	if blockNumber == nil {
		head, err := r.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, err
		}
		blockNumber = head.Number
	}
	if !blockNumber.IsUint64() {
		return nil, fmt.Errorf("block %s does not fit in 64 bits", blockNumber)
	}
	res, err := r.provider.GetProof(ctx, account, keys, blockNumber)
	if err != nil {
		return nil, err
	}
	ap, err := types.NewAccountProof(blockNumber.Uint64(), res)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snap.Proofs = append(r.snap.Proofs, ap)
	r.mu.Unlock()
	return res, nil
}

// Snapshot returns the answers recorded so far.
func (r *Recorder) Snapshot() *types.ChainSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snap
	snap.Headers = append([]*ethtypes.Header(nil), r.snap.Headers...)
	snap.Proofs = append([]types.AccountProof(nil), r.snap.Proofs...)
	return &snap
}

// WriteFile saves the recorded snapshot as indented JSON.
func (r *Recorder) WriteFile(filePath string) error {
	jsonBlob, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filePath, jsonBlob, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}
