package noise

import (
	"io"

	"github.com/flynn/noise"
	"golang.org/x/crypto/hkdf"
)

// deriveKeys runs HKDF with the chaining key as salt and fills n outputs of
// HashLen bytes each.
func deriveKeys(h noise.HashFunc, chainingKey, ikm []byte, n int) [][]byte {
	keyReader := hkdf.New(h.Hash, ikm, chainingKey, nil)
	size := hashLen(h)
	outputs := make([][]byte, n)
	for i := range outputs {
		outputs[i] = make([]byte, size)
		// at most three HashLen blocks are read, far below the HKDF limit
		_, _ = io.ReadFull(keyReader, outputs[i])
	}
	return outputs
}

func hkdf2(h noise.HashFunc, chainingKey, ikm []byte) (out1, out2 []byte) {
	out := deriveKeys(h, chainingKey, ikm, 2)
	return out[0], out[1]
}

func hkdf3(h noise.HashFunc, chainingKey, ikm []byte) (out1, out2, out3 []byte) {
	out := deriveKeys(h, chainingKey, ikm, 3)
	return out[0], out[1], out[2]
}
