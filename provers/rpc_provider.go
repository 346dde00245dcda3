package prover

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	cfgtypes "github.com/kysee/eth-zk-scaffold/provers/types"
)

// RPCProvider implements Provider over one long-lived JSON-RPC client. Every
// call runs under its own timeout and is retried with exponential backoff;
// missing blocks are not retried.
type RPCProvider struct {
	client  *rpc.Client
	eth     *ethclient.Client
	geth    *gethclient.Client
	timeout time.Duration
	retries uint64
	log     zerolog.Logger
}

var _ cfgtypes.Provider = (*RPCProvider)(nil)

// NewRPCProvider dials cfg.RPCEndpoint.
func NewRPCProvider(ctx context.Context, cfg *cfgtypes.Config, logger zerolog.Logger) (*RPCProvider, error) {
	return DialRPC(ctx, cfg.RPCEndpoint, cfg.RPCTimeout, cfg.RPCRetries, logger)
}

func DialRPC(ctx context.Context, endpoint string, timeout time.Duration, retries uint64, logger zerolog.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCProvider{
		client:  client,
		eth:     ethclient.NewClient(client),
		geth:    gethclient.New(client),
		timeout: timeout,
		retries: retries,
		log:     logger.With().Str("module", "rpc").Str("endpoint", endpoint).Logger(),
	}, nil
}

func (p *RPCProvider) Close() { p.client.Close() }

func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, p, "eth_chainId", p.eth.ChainID)
}

func (p *RPCProvider) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return call(ctx, p, "eth_getBlockByNumber", func(ctx context.Context) (*ethtypes.Header, error) {
		return p.eth.HeaderByNumber(ctx, number)
	})
}

func (p *RPCProvider) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	return call(ctx, p, "eth_getProof", func(ctx context.Context) (*gethclient.AccountResult, error) {
		return p.geth.GetProof(ctx, account, keys, blockNumber)
	})
}

func call[T any](ctx context.Context, p *RPCProvider, method string, fn func(context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		v, err := fn(cctx)
		if errors.Is(err, ethereum.NotFound) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.retries), ctx)
	return backoff.RetryNotifyWithData(op, b, func(err error, next time.Duration) {
		p.log.Warn().Err(err).Str("method", method).Dur("retry_in", next).Msg("rpc call failed")
	})
}
