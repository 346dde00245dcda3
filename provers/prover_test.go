package prover

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	cfgtypes "github.com/kysee/eth-zk-scaffold/provers/types"
	"github.com/kysee/eth-zk-scaffold/scaffold"
	chaintest "github.com/kysee/eth-zk-scaffold/test"
)

const testDegree = 14

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

func newTestProver(backend Backend, opts ...Option) *Prover {
	cfg := &cfgtypes.Config{Backend: string(backend), Degree: testDegree, UnusableRows: 109}
	return NewProver(cfg, testLogger(), opts...)
}

// productCircuit exposes x*y and x+y, with x checked to 8 bits and x*y to 16 bits.
func productCircuit(x, y uint64, extra ...func(*circuit.Builder, circuit.Assigned)) *circuit.Circuit {
	b := circuit.NewBuilder(0)
	ctx, gate := b.Context(), b.Gate()
	a := ctx.LoadWitnessUint64(x)
	c := ctx.LoadWitnessUint64(y)
	prod := gate.Mul(ctx, a, c)
	b.Range().CheckBits(ctx, a, 8)
	b.Range().CheckBits(ctx, prod, 16)
	for _, fn := range extra {
		fn(b, a)
	}
	return b.Build([]circuit.Assigned{prod, gate.Add(ctx, a, c)})
}

func TestMockSatisfied(t *testing.T) {
	p := newTestProver(PLONK)
	c := productCircuit(200, 300)

	require.NoError(t, p.Mock(c, testDegree))
	// same verdict on the unmodified circuit
	require.NoError(t, p.Mock(c, testDegree))
	t.Logf("✓ mock satisfied twice (%+v)", c.Stats())
}

func TestMockViolations(t *testing.T) {
	p := newTestProver(PLONK)

	// 300 does not fit in 8 bits, 300*2 fits in 16
	c := productCircuit(300, 2, func(b *circuit.Builder, a circuit.Assigned) {
		ctx := b.Context()
		b.Gate().AssertConstant(ctx, a, 299)
	})
	err := p.Mock(c, testDegree)
	var unsat *UnsatisfiedError
	require.ErrorAs(t, err, &unsat)
	require.Len(t, unsat.Violations, 2)
	require.Contains(t, err.Error(), "2 violation(s)")

	// verdict does not change between runs
	err2 := p.Mock(c, testDegree)
	require.ErrorAs(t, err2, &unsat)
	require.Equal(t, err.Error(), err2.Error())
}

func TestMockPhaseOneFailure(t *testing.T) {
	p := newTestProver(PLONK)
	c := productCircuit(3, 4, func(b *circuit.Builder, a circuit.Assigned) {
		b.Defer(func(s *circuit.Synth) error {
			s.API().AssertIsEqual(s.Var(a), 5)
			return nil
		})
	})
	require.Empty(t, c.Violations())

	err := p.Mock(c, testDegree)
	var unsat *UnsatisfiedError
	require.ErrorAs(t, err, &unsat)
	require.Empty(t, unsat.Violations)
	require.Error(t, unsat.Err)
}

func TestMockRowBudget(t *testing.T) {
	p := NewProver(&cfgtypes.Config{Backend: "plonk", UnusableRows: 0}, testLogger())
	err := p.Mock(productCircuit(2, 3), 4)
	require.ErrorIs(t, err, ErrRowBudget)

	p = NewProver(&cfgtypes.Config{Backend: "plonk", UnusableRows: 1 << testDegree}, testLogger())
	require.ErrorIs(t, p.Mock(productCircuit(2, 3), testDegree), ErrRowBudget)
}

func TestMockEmptyCircuit(t *testing.T) {
	for _, backend := range []Backend{PLONK, Groth16} {
		t.Run(string(backend), func(t *testing.T) {
			c, err := scaffold.New().Finalize()
			require.NoError(t, err)
			require.Zero(t, c.NbInstances())
			p := newTestProver(backend)
			require.NoError(t, p.Mock(c, testDegree))
			require.NoError(t, p.Mock(c, testDegree))

			ccs, err := p.compile(c)
			require.NoError(t, err)
			require.NotZero(t, ccs.GetNbConstraints())
			t.Logf("✓ empty circuit satisfied with %d constraint(s)", ccs.GetNbConstraints())
		})
	}
}

func TestProveVerify(t *testing.T) {
	for _, backend := range []Backend{PLONK, Groth16} {
		t.Run(string(backend), func(t *testing.T) {
			p := newTestProver(backend)
			c := productCircuit(200, 300)

			proof, err := p.Prove(c, testDegree)
			require.NoError(t, err)
			require.Equal(t, []*big.Int{big.NewInt(60000), big.NewInt(500)}, proof.Instances())
			require.NoError(t, p.Verify(proof, proof.Instances()))

			// altering any single instance must fail
			for i := range proof.Instances() {
				altered := proof.Instances()
				altered[i].Add(altered[i], big.NewInt(1))
				require.ErrorIs(t, p.Verify(proof, altered), ErrVerification)
			}
			require.ErrorIs(t, p.Verify(proof, proof.Instances()[:1]), ErrVerification)

			var buf bytes.Buffer
			require.NoError(t, proof.ExportSolidity(&buf))
			require.Contains(t, buf.String(), "pragma solidity")
			buf.Reset()
			_, err = proof.WriteTo(&buf)
			require.NoError(t, err)
			require.NotZero(t, buf.Len())
			t.Logf("✓ %s proof verified, %d bytes", backend, buf.Len())
		})
	}
}

func TestProveRejectsUnsatisfied(t *testing.T) {
	p := newTestProver(Groth16)
	c := productCircuit(300, 2)
	_, err := p.Prove(c, testDegree)
	require.ErrorIs(t, err, ErrProofGeneration)
	var unsat *UnsatisfiedError
	require.ErrorAs(t, err, &unsat)
}

func TestGroth16SolidityProof(t *testing.T) {
	p := newTestProver(Groth16)
	proof, err := p.Prove(productCircuit(7, 9), testDegree)
	require.NoError(t, err)

	data, err := proof.SolidityProof()
	require.NoError(t, err)
	require.Len(t, data.Proof, 8)
	// the range check tables commit
	require.NotEmpty(t, data.Commitments)
	require.Len(t, data.CommitmentPok, 2)
}

func TestKeyCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	p := newTestProver(PLONK, WithKeyCache(dir))

	first, err := p.Prove(productCircuit(2, 3), testDegree)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// same constraint system, different witness: keys come from the cache
	second, err := p.Prove(productCircuit(4, 5), testDegree)
	require.NoError(t, err)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, p.Verify(second, []*big.Int{big.NewInt(20), big.NewInt(9)}))
	// the first proof verifies under the cached key as well
	require.NoError(t, p.Verify(&Proof{backend: PLONK, circuit: second.circuit, plonkVK: second.plonkVK, plonkProof: first.plonkProof}, first.Instances()))
}

func TestMockHeaderCircuit(t *testing.T) {
	if testing.Short() {
		t.Skip("compiles a full header decomposition")
	}
	chain, err := chaintest.NewChain(1, []uint64{16_000_000}, chaintest.FillerAccounts(4)...)
	require.NoError(t, err)

	s := scaffold.New(scaffold.WithLogger(testLogger()))
	block, err := s.EthGetBlockByNumber(context.Background(), chain, 16_000_000)
	require.NoError(t, err)
	require.NoError(t, s.ExposePublic(block.Number.Evaluate(s.Context(), s.Gate())))
	c, err := s.Finalize()
	require.NoError(t, err)

	p := newTestProver(PLONK)
	require.ErrorIs(t, p.Mock(c, testDegree), ErrRowBudget)
	require.NoError(t, p.Mock(c, 26))
}
