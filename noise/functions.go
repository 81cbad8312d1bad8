package noise

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/flynn/noise"
)

// DH is the Diffie-Hellman capability a handshake is built on. On top of
// noise.DHFunc it derives the public half of a known private key, which is
// what deterministic key pairs are made from.
type DH interface {
	noise.DHFunc

	// PublicKey returns the public key matching priv.
	PublicKey(priv []byte) ([]byte, error)
}

// Secp256k1 is the BOLT8 Diffie-Hellman function. Public keys are 33-byte
// compressed points and the shared secret is SHA256 of the compressed
// product point.
var Secp256k1 DH = secp256k1DH{}

const secp256k1PubKeyLen = 33

var errInvalidPrivateKey = errors.New("noise: invalid secp256k1 private key")

type secp256k1DH struct{}

// GenerateKeypair draws private keys from random until one is a valid
// scalar.
func (secp256k1DH) GenerateKeypair(random io.Reader) (noise.DHKey, error) {
	if random == nil {
		random = rand.Reader
	}

	priv := make([]byte, privateKeySize)
	for {
		if _, err := io.ReadFull(random, priv); err != nil {
			return noise.DHKey{}, err
		}

		pub, err := secp256k1PublicKey(priv)
		if errors.Is(err, errInvalidPrivateKey) {
			continue
		}
		if err != nil {
			zeroBytes(priv)
			return noise.DHKey{}, err
		}
		return noise.DHKey{Private: priv, Public: pub}, nil
	}
}

// DH multiplies pubkey by privkey and hashes the compressed result.
func (secp256k1DH) DH(privkey, pubkey []byte) ([]byte, error) {
	if len(pubkey) != secp256k1PubKeyLen {
		return nil, fmt.Errorf("noise: secp256k1 public key must be %d bytes, got %d",
			secp256k1PubKeyLen, len(pubkey))
	}
	pub, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("noise: invalid secp256k1 public key: %w", err)
	}

	k, err := secp256k1Scalar(privkey)
	if err != nil {
		return nil, err
	}
	defer k.Zero()

	var point, product btcec.JacobianPoint
	pub.AsJacobian(&point)
	btcec.ScalarMultNonConst(k, &point, &product)
	product.ToAffine()

	shared := btcec.NewPublicKey(&product.X, &product.Y)
	digest := sha256.Sum256(shared.SerializeCompressed())
	return digest[:], nil
}

func (secp256k1DH) DHLen() int {
	return secp256k1PubKeyLen
}

func (secp256k1DH) DHName() string {
	return "secp256k1"
}

func (secp256k1DH) PublicKey(priv []byte) ([]byte, error) {
	return secp256k1PublicKey(priv)
}

func secp256k1Scalar(priv []byte) (*btcec.ModNScalar, error) {
	if len(priv) != privateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			errInvalidPrivateKey, privateKeySize, len(priv))
	}

	k := new(btcec.ModNScalar)
	if overflow := k.SetByteSlice(priv); overflow || k.IsZero() {
		k.Zero()
		return nil, errInvalidPrivateKey
	}
	return k, nil
}

func secp256k1PublicKey(priv []byte) ([]byte, error) {
	k, err := secp256k1Scalar(priv)
	if err != nil {
		return nil, err
	}
	k.Zero()

	sk, pk := btcec.PrivKeyFromBytes(priv)
	sk.Zero()
	return pk.SerializeCompressed(), nil
}

var (
	dhFuncs = map[string]DH{
		Secp256k1.DHName(): Secp256k1,
	}

	cipherFuncs = map[string]noise.CipherFunc{
		noise.CipherChaChaPoly.CipherName(): noise.CipherChaChaPoly,
		noise.CipherAESGCM.CipherName():     noise.CipherAESGCM,
	}

	hashFuncs = map[string]noise.HashFunc{
		noise.HashSHA256.HashName():  noise.HashSHA256,
		noise.HashSHA512.HashName():  noise.HashSHA512,
		noise.HashBLAKE2s.HashName(): noise.HashBLAKE2s,
		noise.HashBLAKE2b.HashName(): noise.HashBLAKE2b,
	}
)

func hashLen(h noise.HashFunc) int {
	return h.Hash().Size()
}

// toKey truncates a HashLen output to a cipher key.
func toKey(b []byte) (k [keySize]byte) {
	copy(k[:], b)
	return
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// zeroBytes fills all slices passed in with zeros.
func zeroBytes(keys ...[]byte) {
	for _, key := range keys {
		for i := range key {
			key[i] = 0
		}
		runtime.KeepAlive(key)
	}
}
