package types

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/stretchr/testify/require"
)

func TestHexBytesJSON(t *testing.T) {
	var hb HexBytes
	require.NoError(t, json.Unmarshal([]byte(`"0xdeadbeef"`), &hb))
	require.Equal(t, HexBytes{0xde, 0xad, 0xbe, 0xef}, hb)

	require.NoError(t, json.Unmarshal([]byte(`"3q2+7w=="`), &hb))
	require.Equal(t, HexBytes{0xde, 0xad, 0xbe, 0xef}, hb)

	out, err := json.Marshal(hb)
	require.NoError(t, err)
	require.Equal(t, `"0xdeadbeef"`, string(out))

	require.Error(t, json.Unmarshal([]byte(`deadbeef`), &hb))
}

func TestCreateProofData(t *testing.T) {
	word := func(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }
	var sol []byte
	for i := 0; i < 8; i++ {
		sol = append(sol, word(byte(i))...)
	}
	sol = binary.BigEndian.AppendUint32(sol, 1)
	for i := 0; i < 4; i++ {
		sol = append(sol, word(byte(0x10+i))...)
	}

	pd, err := CreateProofData(sol)
	require.NoError(t, err)
	require.Len(t, pd.Proof, 8)
	require.Len(t, pd.Commitments, 2)
	require.Len(t, pd.CommitmentPok, 2)
	require.Equal(t, HexBytes(word(0x12)), pd.CommitmentPok[0])

	noCommit := binary.BigEndian.AppendUint32(append([]byte{}, sol[:8*32]...), 0)
	pd, err = CreateProofData(noCommit)
	require.NoError(t, err)
	require.Empty(t, pd.Commitments)

	_, err = CreateProofData(sol[:len(sol)-1])
	require.Error(t, err)
}

func TestAccountProofRoundTrip(t *testing.T) {
	res := &gethclient.AccountResult{
		Address:      common.HexToAddress("0x01"),
		AccountProof: []string{"0xf851", "0xe2a0"},
		Balance:      big.NewInt(1000),
		CodeHash:     common.HexToHash("0xc0de"),
		Nonce:        3,
		StorageHash:  common.HexToHash("0x5707"),
		StorageProof: []gethclient.StorageResult{
			{Key: common.HexToHash("0x0").Hex(), Value: big.NewInt(7), Proof: []string{"0xe3"}},
			{Key: common.HexToHash("0x1").Hex(), Value: big.NewInt(0), Proof: []string{}},
		},
	}
	p, err := NewAccountProof(42, res)
	require.NoError(t, err)

	enc, err := json.Marshal(ChainSnapshot{ChainID: 1, Proofs: []AccountProof{p}})
	require.NoError(t, err)
	var snap ChainSnapshot
	require.NoError(t, json.Unmarshal(enc, &snap))
	require.Len(t, snap.Proofs, 1)

	back, err := snap.Proofs[0].Result([]string{common.HexToHash("0x1").Hex(), common.HexToHash("0x0").Hex()})
	require.NoError(t, err)
	require.Equal(t, res.AccountProof, back.AccountProof)
	require.Equal(t, uint64(3), back.Nonce)
	require.Equal(t, 0, big.NewInt(1000).Cmp(back.Balance))
	require.Len(t, back.StorageProof, 2)
	require.Equal(t, 0, big.NewInt(7).Cmp(back.StorageProof[1].Value))

	_, err = snap.Proofs[0].Result([]string{common.HexToHash("0x2").Hex()})
	require.Error(t, err)
}
