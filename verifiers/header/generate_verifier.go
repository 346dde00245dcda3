package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

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
	if err := generate(context.Background(), config, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed")
	}
}

// generate proves the hash and number of config.BlockNumber with Groth16 and
// writes the Solidity verifier together with the proof calldata.
func generate(ctx context.Context, config *types.Config, logger zerolog.Logger) error {
	provider, err := prover.OpenProvider(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close provider")
		}
	}()

	// Step 1: block hash bytes then the number as public instances
	s := scaffold.New(scaffold.WithLogger(logger), scaffold.WithLookupBits(config.LookupBits))
	block, err := s.EthGetBlockByNumber(ctx, provider, config.BlockNumber)
	if err != nil {
		return err
	}
	for _, b := range block.BlockHash {
		if err := s.ExposePublic(b); err != nil {
			return err
		}
	}
	if err := s.ExposePublic(block.Number.Evaluate(s.Context(), s.Gate())); err != nil {
		return err
	}
	c, err := s.Finalize()
	if err != nil {
		return err
	}

	// Step 2: prove
	proof, err := prover.NewProver(config, logger, prover.WithBackend(prover.Groth16)).Prove(c, config.Degree)
	if err != nil {
		return err
	}

	// Step 3: Solidity verifier
	contracts := filepath.Join(config.RootDir, "contracts")
	if err := os.MkdirAll(contracts, 0755); err != nil {
		return err
	}
	sol, err := os.Create(filepath.Join(contracts, "BlockHeaderVerifier.sol"))
	if err != nil {
		return err
	}
	defer sol.Close()
	if err := proof.ExportSolidity(sol); err != nil {
		return fmt.Errorf("failed to export verifier: %w", err)
	}

	// Step 4: proof calldata
	data, err := proof.SolidityProof()
	if err != nil {
		return err
	}
	bz, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	output := filepath.Join(config.RootDir, "output")
	if err := os.MkdirAll(output, 0755); err != nil {
		return err
	}
	proofFile := filepath.Join(output, fmt.Sprintf("proof-block-%d.json", config.BlockNumber))
	if err := os.WriteFile(proofFile, bz, 0644); err != nil {
		return err
	}

	logger.Info().Str("verifier", sol.Name()).Str("proof", proofFile).Msg("✅ Solidity verifier generated")
	return nil
}
