package types

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the prover configuration
type Config struct {
	RootDir string

	// RPCEndpoint is the execution-layer JSON-RPC endpoint
	RPCEndpoint string
	// BeaconEndpoint is the Beacon API endpoint, empty disables the parent beacon root check
	BeaconEndpoint string
	RPCTimeout     time.Duration
	RPCRetries     uint64

	// Degree k bounds the circuit to 2^k rows
	Degree       int
	UnusableRows int
	LookupBits   int

	// Backend is "plonk" or "groth16"
	Backend     string
	KeyCacheDir string

	// SnapshotFile replays a recorded ChainSnapshot instead of dialing RPCEndpoint
	SnapshotFile string
	// RecordFile saves every provider answer as a ChainSnapshot
	RecordFile string

	BlockNumber uint64
}

func NewConfig(args ...string) (*Config, error) {
	// Parse configuration from environment variables or command line args
	config := Config{
		RootDir:        getEnv("ROOT", "."),
		RPCEndpoint:    getEnv("RPC_ENDPOINT", "http://localhost:8545"),
		BeaconEndpoint: getEnv("BEACON_ENDPOINT", ""),
		Backend:        getEnv("BACKEND", "plonk"),
		KeyCacheDir:    getEnv("KEY_CACHE", ""),
		SnapshotFile:   getEnv("SNAPSHOT", ""),
		RecordFile:     getEnv("RECORD", ""),
		BlockNumber:    16_000_000,
	}

	var err error
	if config.Degree, err = getEnvInt("DEGREE", 18); err != nil {
		return nil, err
	}
	if config.UnusableRows, err = getEnvInt("UNUSABLE_ROWS", 109); err != nil {
		return nil, err
	}
	if config.LookupBits, err = getEnvInt("LOOKUP_BITS", 8); err != nil {
		return nil, err
	}
	timeout, err := getEnvInt("RPC_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	config.RPCTimeout = time.Duration(timeout) * time.Second
	retries, err := getEnvInt("RPC_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	config.RPCRetries = uint64(retries)

	strFlags := map[string]*string{
		"--root":      &config.RootDir,
		"--rpc":       &config.RPCEndpoint,
		"--beacon":    &config.BeaconEndpoint,
		"--backend":   &config.Backend,
		"--key-cache": &config.KeyCacheDir,
		"--snapshot":  &config.SnapshotFile,
		"--record":    &config.RecordFile,
	}
	intFlags := map[string]*int{
		"--degree":        &config.Degree,
		"--unusable-rows": &config.UnusableRows,
		"--lookup-bits":   &config.LookupBits,
	}

	for i := 0; i < len(args); i++ {
		name := args[i]
		strTarget, isStr := strFlags[name]
		intTarget, isInt := intFlags[name]
		if !isStr && !isInt && name != "--block" {
			continue
		}
		if i+1 == len(args) {
			return nil, fmt.Errorf("missing argument for %s", name)
		}
		i++

		switch {
		case isStr:
			*strTarget = args[i]
		case isInt:
			if *intTarget, err = strconv.Atoi(args[i]); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", name, err)
			}
		default:
			if config.BlockNumber, err = strconv.ParseUint(args[i], 10, 64); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", name, err)
			}
		}
	}

	if config.Backend != "plonk" && config.Backend != "groth16" {
		return nil, fmt.Errorf("unknown backend %q", config.Backend)
	}
	return &config, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
