package types

import (
	"encoding/binary"
	"fmt"

	bn254_fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ProofData is a groth16 proof split into the calldata words the generated
// solidity verifier expects.
type ProofData struct {
	Proof         []HexBytes `json:"proof"`
	Commitments   []HexBytes `json:"commitments"`
	CommitmentPok []HexBytes `json:"commitmentPok"`
}

// CreateProofData splits the output of groth16 Proof.MarshalSolidity:
// A, B, C as 8 words, a 4-byte commitment count, two words per commitment
// and two words for the batched proof of knowledge.
func CreateProofData(proofSolidity []byte) (*ProofData, error) {
	const word = bn254_fr.Bytes
	if len(proofSolidity) < 8*word+4 {
		return nil, fmt.Errorf("solidity proof too short: %d bytes", len(proofSolidity))
	}

	// A, B, C
	proof := make([]HexBytes, 8)
	for i := 0; i < len(proof); i++ {
		proof[i] = proofSolidity[i*word : (i+1)*word]
	}

	nbCommitments := int(binary.BigEndian.Uint32(proofSolidity[8*word : 8*word+4]))
	startIdx0 := 8*word + 4
	nbWords := 2 * nbCommitments
	if nbCommitments > 0 {
		nbWords += 2
	}
	if len(proofSolidity) != startIdx0+nbWords*word {
		return nil, fmt.Errorf("solidity proof has %d bytes, want %d for %d commitments",
			len(proofSolidity), startIdx0+nbWords*word, nbCommitments)
	}
	words := make([]HexBytes, nbWords)
	for i := range words {
		startIdx := startIdx0 + (i * word)
		words[i] = proofSolidity[startIdx : startIdx+word]
	}

	data := &ProofData{Proof: proof}
	if nbCommitments > 0 {
		data.Commitments = words[:2*nbCommitments]
		data.CommitmentPok = words[2*nbCommitments:]
	}
	return data, nil
}
