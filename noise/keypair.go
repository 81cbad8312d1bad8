package noise

import (
	"fmt"
	"io"
)

// KeyPair is a Diffie-Hellman key pair.
type KeyPair struct {
	priv []byte
	pub  []byte
}

// NewKeyPair copies priv and pub into a KeyPair after checking their lengths
// against dh.
func NewKeyPair(dh DH, priv, pub []byte) (*KeyPair, error) {
	if len(priv) != privateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrInvalidHandshakeConfiguration, privateKeySize, len(priv))
	}
	if len(pub) != dh.DHLen() {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrInvalidHandshakeConfiguration, dh.DHLen(), len(pub))
	}
	return &KeyPair{priv: cloneBytes(priv), pub: cloneBytes(pub)}, nil
}

// GenerateKeyPair creates a random key pair, reading entropy from random.
// A nil random uses crypto/rand.
func GenerateKeyPair(dh DH, random io.Reader) (*KeyPair, error) {
	k, err := dh.GenerateKeypair(random)
	if err != nil {
		return nil, fmt.Errorf("noise: generating %s key pair: %w", dh.DHName(), err)
	}
	defer zeroBytes(k.Private)
	return NewKeyPair(dh, k.Private, k.Public)
}

// KeyPairFromPrivate derives the public key for priv.
func KeyPairFromPrivate(dh DH, priv []byte) (*KeyPair, error) {
	pub, err := dh.PublicKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandshakeConfiguration, err)
	}
	return NewKeyPair(dh, priv, pub)
}

// PrivateKey returns the private key. The slice is owned by the KeyPair.
func (k *KeyPair) PrivateKey() []byte {
	return k.priv
}

// PublicKey returns the public key. The slice is owned by the KeyPair.
func (k *KeyPair) PublicKey() []byte {
	return k.pub
}

// Wipe zeroes the private key and drops both halves. It is safe to call on
// a nil KeyPair.
func (k *KeyPair) Wipe() {
	if k == nil {
		return
	}
	zeroBytes(k.priv)
	k.priv = nil
	k.pub = nil
}
