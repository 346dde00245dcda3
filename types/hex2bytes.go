package types

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

func HexToBytes(hexStr string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
}

// HexToBytesList decodes proof nodes as returned by eth_getProof.
func HexToBytesList(list []string) ([]HexBytes, error) {
	out := make([]HexBytes, len(list))
	for i, s := range list {
		b, err := HexToBytes(s)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// Bytes converts a list to plain byte slices.
func Bytes(list []HexBytes) [][]byte {
	out := make([][]byte, len(list))
	for i, b := range list {
		out[i] = b
	}
	return out
}

type HexBytes []byte

func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

func (hb HexBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hb.String() + `"`), nil
}

// UnmarshalJSON accepts 0x-prefixed or bare hex, falling back to base64.
func (hb *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid hex string: %s", data)
	}

	// escape double quote
	val := string(data[1 : len(data)-1])
	if isHex(val) {
		bz, err := HexToBytes(val)
		if err != nil {
			return err
		}
		*hb = bz
		return nil
	}
	bz, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return err
	}
	*hb = bz
	return nil
}

func isHex(s string) bool {
	v := strings.TrimPrefix(s, "0x")
	if len(v)%2 != 0 {
		return false
	}
	for _, b := range []byte(v) {
		if !(b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F') {
			return false
		}
	}
	return true
}
