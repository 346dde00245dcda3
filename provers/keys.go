package prover

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/constraint"
)

// keyCache stores proving and verifying keys under the digest of the
// constraint system they were set up for.
type keyCache struct {
	dir string
}

func (kc keyCache) enabled() bool { return kc.dir != "" }

// id derives the cache entry name from the backend and the serialized constraint system.
func (kc keyCache) id(backend Backend, ccs constraint.ConstraintSystem) (string, error) {
	h := sha256.New()
	h.Write([]byte(backend))
	if _, err := ccs.WriteTo(h); err != nil {
		return "", fmt.Errorf("hash constraint system: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (kc keyCache) paths(id string) (string, string) {
	return filepath.Join(kc.dir, id+".pk"), filepath.Join(kc.dir, id+".vk")
}

// load reads both keys. It reports false without error when the entry does not exist.
func (kc keyCache) load(id string, pk, vk io.ReaderFrom) (bool, error) {
	pkPath, vkPath := kc.paths(id)
	for _, f := range []struct {
		path string
		dst  io.ReaderFrom
	}{{pkPath, pk}, {vkPath, vk}} {
		fd, err := os.Open(f.path)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		_, err = f.dst.ReadFrom(fd)
		_ = fd.Close()
		if err != nil {
			return false, fmt.Errorf("failed to read %s: %w", f.path, err)
		}
	}
	return true, nil
}

func (kc keyCache) store(id string, pk, vk io.WriterTo) error {
	if err := os.MkdirAll(kc.dir, 0755); err != nil {
		return err
	}
	pkPath, vkPath := kc.paths(id)
	for _, f := range []struct {
		path string
		src  io.WriterTo
	}{{pkPath, pk}, {vkPath, vk}} {
		fd, err := os.Create(f.path)
		if err != nil {
			return err
		}
		_, err = f.src.WriteTo(fd)
		if cerr := fd.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}
	return nil
}
