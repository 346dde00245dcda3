package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	prover "github.com/kysee/eth-zk-scaffold/provers"
	"github.com/kysee/eth-zk-scaffold/provers/types"
	"github.com/kysee/eth-zk-scaffold/scaffold"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	config, err := types.NewConfig(os.Args...)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := run(context.Background(), config, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed")
	}
}

// run proves the number of config.BlockNumber as the only public instance.
func run(ctx context.Context, config *types.Config, logger zerolog.Logger) error {
	provider, err := prover.OpenProvider(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close provider")
		}
	}()

	opts := []scaffold.Option{
		scaffold.WithLogger(logger),
		scaffold.WithLookupBits(config.LookupBits),
	}
	if config.BeaconEndpoint != "" {
		opts = append(opts, scaffold.WithBeaconAnchor(prover.NewBeaconFetcher(config.BeaconEndpoint)))
	}
	s := scaffold.New(opts...)

	// Step 1: witness the header and expose its number
	block, err := s.EthGetBlockByNumber(ctx, provider, config.BlockNumber)
	if err != nil {
		return err
	}
	number := block.Number.Evaluate(s.Context(), s.Gate())
	if err := s.ExposePublic(number); err != nil {
		return err
	}
	logger.Info().Uint64("number", number.Uint64()).Msg("block number exposed")

	// Step 2: finalize and mock
	c, err := s.Finalize()
	if err != nil {
		return err
	}
	return prover.NewProver(config, logger).Mock(c, config.Degree)
}
