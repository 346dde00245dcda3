package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/protolambda/ztyp/tree"

	cfgtypes "github.com/kysee/eth-zk-scaffold/provers/types"
)

// BeaconFetcher implements BeaconAnchor by calling the Beacon API REST endpoint
type BeaconFetcher struct {
	BaseURL string
	Client  *http.Client
}

var _ cfgtypes.BeaconAnchor = (*BeaconFetcher)(nil)

// NewBeaconFetcher creates a new BeaconFetcher with the given base URL
func NewBeaconFetcher(baseURL string) *BeaconFetcher {
	return &BeaconFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

// Header retrieves a beacon block header
// GET /eth/v1/beacon/headers/{block_id}
func (a *BeaconFetcher) Header(ctx context.Context, blockID string) (*cfgtypes.HeaderAPIResponse, error) {
	// Build URL with block id
	endpoint, err := url.Parse(a.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	endpoint.Path = "/eth/v1/beacon/headers/" + blockID

	// Send HTTP GET request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Check HTTP status code
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Parse API response
	var headerResponse cfgtypes.HeaderAPIResponse
	if err := json.Unmarshal(body, &headerResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &headerResponse, nil
}

// VerifyParentBeaconRoot fetches the beacon block header the execution header
// commits to and checks that its hash tree root is the committed root.
func (a *BeaconFetcher) VerifyParentBeaconRoot(ctx context.Context, header *ethtypes.Header) error {
	if header.ParentBeaconRoot == nil {
		return fmt.Errorf("block %d has no parent beacon root", header.Number)
	}
	want := *header.ParentBeaconRoot

	res, err := a.Header(ctx, want.Hex())
	if err != nil {
		return fmt.Errorf("failed to fetch beacon header %s: %w", want.Hex(), err)
	}

	got := res.Data.Header.Message.HashTreeRoot(tree.GetHashFn())
	if got != [32]byte(want) {
		return fmt.Errorf("%w: block %d commits to %s, beacon header at slot %d hashes to %s",
			ErrBeaconMismatch, header.Number, want.Hex(), res.Data.Header.Message.Slot, got)
	}
	return nil
}
