package prover

import (
	"context"

	"github.com/rs/zerolog"

	cfgtypes "github.com/kysee/eth-zk-scaffold/provers/types"
)

// Source is the provider selected by configuration: a snapshot file when one
// is configured, the RPC endpoint otherwise, optionally recorded.
type Source struct {
	cfgtypes.Provider

	rpc      *RPCProvider
	recorder *Recorder
	record   string
	log      zerolog.Logger
}

func OpenProvider(ctx context.Context, cfg *cfgtypes.Config, logger zerolog.Logger) (*Source, error) {
	s := &Source{record: cfg.RecordFile, log: logger}
	if cfg.SnapshotFile != "" {
		fp, err := NewFileProvider(cfg.SnapshotFile)
		if err != nil {
			return nil, err
		}
		s.Provider = fp
		logger.Info().Str("file", cfg.SnapshotFile).Msg("replaying snapshot")
	} else {
		p, err := NewRPCProvider(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.Provider, s.rpc = p, p
	}
	if s.record != "" {
		s.recorder = NewRecorder(s.Provider)
		s.Provider = s.recorder
	}
	return s, nil
}

// Close writes the recording, if any, and releases the RPC connection.
func (s *Source) Close() error {
	if s.rpc != nil {
		defer s.rpc.Close()
	}
	if s.recorder == nil {
		return nil
	}
	if err := s.recorder.WriteFile(s.record); err != nil {
		return err
	}
	s.log.Info().Str("file", s.record).Msg("snapshot recorded")
	return nil
}
