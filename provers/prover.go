// Package prover runs finalized scaffold circuits through the gnark solver
// and proving backends, and provides chain-data providers for the scaffold.
package prover

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/constraint/solver"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/frontend/cs/scs"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/consensys/gnark/test/unsafekzg"
	"github.com/rs/zerolog"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	cfgtypes "github.com/kysee/eth-zk-scaffold/provers/types"
)

type Backend string

const (
	PLONK   Backend = "plonk"
	Groth16 Backend = "groth16"
)

type Option func(*Prover)

func WithBackend(b Backend) Option {
	return func(p *Prover) { p.backend = b }
}

// WithKeyCache persists proving and verifying keys under dir, keyed by the
// constraint system digest.
func WithKeyCache(dir string) Option {
	return func(p *Prover) { p.keys = keyCache{dir: dir} }
}

// Prover executes finalized circuits. Every call compiles its circuit anew;
// no state is shared between calls except the key cache directory.
type Prover struct {
	backend      Backend
	degree       int
	unusableRows int
	keys         keyCache
	log          zerolog.Logger
}

func NewProver(cfg *cfgtypes.Config, logger zerolog.Logger, opts ...Option) *Prover {
	p := &Prover{
		backend:      Backend(cfg.Backend),
		degree:       cfg.Degree,
		unusableRows: cfg.UnusableRows,
		keys:         keyCache{dir: cfg.KeyCacheDir},
		log:          logger.With().Str("module", "prover").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	gnarklogger.Set(logger.Level(zerolog.WarnLevel))
	return p
}

// Degree returns the configured size exponent k.
func (p *Prover) Degree() int { return p.degree }

func (p *Prover) Backend() Backend { return p.backend }

func (p *Prover) compile(c *circuit.Circuit) (constraint.ConstraintSystem, error) {
	builder := scs.NewBuilder
	if p.backend == Groth16 {
		builder = r1cs.NewBuilder
	}
	return frontend.Compile(circuit.Field(), builder, c.Template())
}

// checkBudget fails when the compiled system needs more than 2^k rows minus the unusable margin.
func (p *Prover) checkBudget(ccs constraint.ConstraintSystem, k int) error {
	rows := ccs.GetNbConstraints()
	if p.backend == PLONK {
		rows += ccs.GetNbPublicVariables()
	}
	budget := (1 << k) - p.unusableRows
	if rows > budget {
		return fmt.Errorf("%w: %d rows > 2^%d - %d", ErrRowBudget, rows, k, p.unusableRows)
	}
	return nil
}

// Mock checks that c is satisfied by its phase-0 values and fits in 2^k rows,
// without generating keys or proofs. A failure lists every violated builder
// assertion and range check. Failures inside phase-1 gadgets (header, RLP and
// MPT constraints) are reported by the solver, which stops at the first one.
func (p *Prover) Mock(c *circuit.Circuit, k int) error {
	start := time.Now()

	// Step 1: native assertions and range checks
	if v := c.Violations(); len(v) > 0 {
		for _, violation := range v {
			p.log.Error().Stringer("violation", violation).Msg("mock: constraint failed")
		}
		p.log.Error().Int("violations", len(v)).Msg("mock: circuit not satisfied")
		return &UnsatisfiedError{Violations: v}
	}

	// Step 2: compile and check the row budget
	ccs, err := p.compile(c)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	if err := p.checkBudget(ccs, k); err != nil {
		return err
	}

	// Step 3: solve every constraint, including the phase-1 gadgets
	w, err := c.FullWitness()
	if err != nil {
		return fmt.Errorf("witness: %w", err)
	}
	if err := ccs.IsSolved(w, solver.WithLogger(p.log)); err != nil {
		p.log.Error().Err(err).Msg("mock: circuit not satisfied")
		return &UnsatisfiedError{Err: err}
	}

	p.log.Info().
		Int("k", k).
		Int("constraints", ccs.GetNbConstraints()).
		Int("instances", c.NbInstances()).
		Dur("elapsed", time.Since(start)).
		Msg("✓ mock: circuit satisfied")
	return nil
}

// Prove sets up keys for c, proves it against its exposed instances and
// verifies the result before returning it. The PLONK SRS comes from
// unsafekzg and is sized to the compiled circuit rather than to 2^k.
func (p *Prover) Prove(c *circuit.Circuit, k int) (*Proof, error) {
	if v := c.Violations(); len(v) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrProofGeneration, &UnsatisfiedError{Violations: v})
	}

	// Step 1: compile
	start := time.Now()
	ccs, err := p.compile(c)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if err := p.checkBudget(ccs, k); err != nil {
		return nil, err
	}
	p.log.Info().
		Str("backend", string(p.backend)).
		Int("constraints", ccs.GetNbConstraints()).
		Int("public", ccs.GetNbPublicVariables()).
		Dur("elapsed", time.Since(start)).
		Msg("circuit compiled")

	// Step 2: keys
	proof := &Proof{backend: p.backend, circuit: c}
	if err := p.setup(ccs, proof); err != nil {
		return nil, fmt.Errorf("%w: setup: %w", ErrProofGeneration, err)
	}

	// Step 3: prove
	full, err := c.FullWitness()
	if err != nil {
		return nil, fmt.Errorf("%w: witness: %w", ErrProofGeneration, err)
	}
	start = time.Now()
	if err := p.prove(ccs, proof, full); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGeneration, err)
	}
	p.log.Info().Dur("elapsed", time.Since(start)).Msg("proof generated")

	// Step 4: verify against the exposed instances
	start = time.Now()
	proof.instances = c.InstanceValues()
	if err := p.Verify(proof, proof.instances); err != nil {
		return nil, err
	}
	p.log.Info().Dur("elapsed", time.Since(start)).Msg("✓ proof verified")
	return proof, nil
}

func (p *Prover) setup(ccs constraint.ConstraintSystem, proof *Proof) error {
	var id string
	if p.keys.enabled() {
		var err error
		if id, err = p.keys.id(p.backend, ccs); err != nil {
			return err
		}
	}

	start := time.Now()
	switch p.backend {
	case PLONK:
		pk, vk := plonk.NewProvingKey(ecc.BN254), plonk.NewVerifyingKey(ecc.BN254)
		if ok, err := p.loadKeys(id, pk, vk); err != nil || ok {
			proof.plonkPK, proof.plonkVK = pk, vk
			return err
		}
		srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
		if err != nil {
			return fmt.Errorf("srs: %w", err)
		}
		p.log.Info().Dur("elapsed", time.Since(start)).Msg("srs generated")
		start = time.Now()
		if pk, vk, err = plonk.Setup(ccs, srs, srsLagrange); err != nil {
			return err
		}
		proof.plonkPK, proof.plonkVK = pk, vk
		p.log.Info().Dur("elapsed", time.Since(start)).Msg("keys generated")
		return p.storeKeys(id, pk, vk)
	case Groth16:
		pk, vk := groth16.NewProvingKey(ecc.BN254), groth16.NewVerifyingKey(ecc.BN254)
		if ok, err := p.loadKeys(id, pk, vk); err != nil || ok {
			proof.grothPK, proof.grothVK = pk, vk
			return err
		}
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			return err
		}
		proof.grothPK, proof.grothVK = pk, vk
		p.log.Info().Dur("elapsed", time.Since(start)).Msg("keys generated")
		return p.storeKeys(id, pk, vk)
	default:
		return fmt.Errorf("unknown backend %q", p.backend)
	}
}

func (p *Prover) loadKeys(id string, pk, vk io.ReaderFrom) (bool, error) {
	if id == "" {
		return false, nil
	}
	ok, err := p.keys.load(id, pk, vk)
	if ok {
		p.log.Info().Str("id", id[:16]).Msg("keys loaded from cache")
	}
	return ok, err
}

func (p *Prover) storeKeys(id string, pk, vk io.WriterTo) error {
	if id == "" {
		return nil
	}
	return p.keys.store(id, pk, vk)
}

func (p *Prover) prove(ccs constraint.ConstraintSystem, proof *Proof, full witness.Witness) error {
	var err error
	switch p.backend {
	case PLONK:
		proof.plonkProof, err = plonk.Prove(ccs, proof.plonkPK, full)
	case Groth16:
		proof.grothProof, err = groth16.Prove(ccs, proof.grothPK, full,
			backend.WithProverHashToFieldFunction(sha256.New()))
	}
	return err
}

// Verify checks proof against instances, which may differ from the values
// the proof was generated for.
func (p *Prover) Verify(proof *Proof, instances []*big.Int) error {
	pub, err := proof.circuit.PublicWitness(instances)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	switch proof.backend {
	case PLONK:
		err = plonk.Verify(proof.plonkProof, proof.plonkVK, pub)
	case Groth16:
		err = groth16.Verify(proof.grothProof, proof.grothVK, pub,
			backend.WithVerifierHashToFieldFunction(sha256.New()))
	default:
		err = fmt.Errorf("unknown backend %q", proof.backend)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return nil
}
