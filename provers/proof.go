package prover

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/solidity"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
	"github.com/kysee/eth-zk-scaffold/types"
)

// Proof is a verified proof together with the verifying key it verified under.
type Proof struct {
	backend   Backend
	circuit   *circuit.Circuit
	instances []*big.Int

	plonkPK    plonk.ProvingKey
	plonkVK    plonk.VerifyingKey
	plonkProof plonk.Proof

	grothPK    groth16.ProvingKey
	grothVK    groth16.VerifyingKey
	grothProof groth16.Proof
}

func (p *Proof) Backend() Backend { return p.backend }

// Instances returns the public instances the proof was generated for.
func (p *Proof) Instances() []*big.Int {
	out := make([]*big.Int, len(p.instances))
	for i, v := range p.instances {
		out[i] = new(big.Int).Set(v)
	}
	return out
}

// WriteTo writes the proof in the backend's binary encoding.
func (p *Proof) WriteTo(w io.Writer) (int64, error) {
	if p.backend == Groth16 {
		return p.grothProof.WriteTo(w)
	}
	return p.plonkProof.WriteTo(w)
}

// ExportSolidity writes a solidity verifier contract for the proof's verifying key.
func (p *Proof) ExportSolidity(w io.Writer) error {
	if p.backend == Groth16 {
		return p.grothVK.ExportSolidity(w, solidity.WithHashToFieldFunction(sha256.New()))
	}
	return p.plonkVK.ExportSolidity(w)
}

// SolidityProof returns the proof as calldata words for the exported verifier.
func (p *Proof) SolidityProof() (*types.ProofData, error) {
	var raw any = p.plonkProof
	if p.backend == Groth16 {
		raw = p.grothProof
	}
	_proof, ok := raw.(interface{ MarshalSolidity() []byte })
	if !ok {
		return nil, fmt.Errorf("proof does not implement MarshalSolidity()")
	}
	proofSolidity := _proof.MarshalSolidity()

	if p.backend == Groth16 {
		return types.CreateProofData(proofSolidity)
	}
	const word = 32
	if len(proofSolidity)%word != 0 {
		return nil, fmt.Errorf("solidity proof has %d bytes, not a multiple of %d", len(proofSolidity), word)
	}
	data := &types.ProofData{}
	for i := 0; i < len(proofSolidity); i += word {
		data.Proof = append(data.Proof, proofSolidity[i:i+word])
	}
	return data, nil
}
