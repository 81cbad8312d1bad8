package noise

import (
	"fmt"
	"math"

	"github.com/flynn/noise"
)

// CipherState holds a key and nonce and encrypts with associated data. The
// key of a transport cipher may also carry a salt, the chaining key used for
// Lightning-style key recycling.
type CipherState struct {
	cipher noise.CipherFunc
	hash   noise.HashFunc

	key    [keySize]byte
	hasKey bool
	nonce  uint64
	salt   []byte
	aead   noise.Cipher
}

func newCipherState(cipher noise.CipherFunc, hash noise.HashFunc) *CipherState {
	return &CipherState{cipher: cipher, hash: hash}
}

// InitializeKey sets the key and resets the nonce.
func (c *CipherState) InitializeKey(key [keySize]byte) {
	c.key = key
	c.hasKey = true
	c.nonce = 0
	c.aead = c.cipher.Cipher(key)
}

// InitializeKeyWithSalt sets the key and records the chaining key used by
// KeyRecycle.
func (c *CipherState) InitializeKeyWithSalt(salt []byte, key [keySize]byte) {
	zeroBytes(c.salt)
	c.salt = cloneBytes(salt)
	c.InitializeKey(key)
}

// HasKey returns whether the CipherState has a key
func (c *CipherState) HasKey() bool {
	return c.hasKey
}

// Nonce returns the nonce the next operation will use.
func (c *CipherState) Nonce() uint64 {
	return c.nonce
}

// SetNonce sets the nonce for the CipherState
func (c *CipherState) SetNonce(nonce uint64) {
	c.nonce = nonce
}

// EncryptWithAd appends the encryption of plaintext to out. Without a key the
// plaintext is appended as is.
func (c *CipherState) EncryptWithAd(out, ad, plaintext []byte) ([]byte, error) {
	if !c.hasKey {
		return append(out, plaintext...), nil
	}
	if c.nonce == math.MaxUint64 {
		return nil, ErrNonceOverflow
	}
	out = c.aead.Encrypt(out, c.nonce, ad, plaintext)
	c.nonce++
	return out, nil
}

// DecryptWithAd appends the decryption of ciphertext to out. The nonce only
// advances when authentication succeeds.
func (c *CipherState) DecryptWithAd(out, ad, ciphertext []byte) ([]byte, error) {
	if !c.hasKey {
		return append(out, ciphertext...), nil
	}
	if c.nonce == math.MaxUint64 {
		return nil, ErrNonceOverflow
	}
	plaintext, err := c.aead.Decrypt(out, c.nonce, ad, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	c.nonce++
	return plaintext, nil
}

// Rekey replaces the key with the first 32 bytes of an encryption of zeros
// under the maximum nonce. The nonce is left alone.
func (c *CipherState) Rekey() {
	if !c.hasKey {
		return
	}
	var zeros [keySize]byte
	tmp := c.aead.Encrypt(nil, math.MaxUint64, nil, zeros[:])
	nonce := c.nonce
	c.InitializeKey(toKey(tmp))
	c.nonce = nonce
	zeroBytes(tmp)
}

// KeyRecycle derives a new salt and key from HKDF(salt, key) and resets the
// nonce.
func (c *CipherState) KeyRecycle() {
	if !c.hasKey {
		return
	}
	salt, key := hkdf2(c.hash, c.salt, c.key[:])
	zeroBytes(c.salt)
	c.salt = salt
	c.InitializeKey(toKey(key))
	zeroBytes(key)
}

// Wipe zeroes the key and salt.
func (c *CipherState) Wipe() {
	if c == nil {
		return
	}
	zeroBytes(c.key[:], c.salt)
	c.salt = nil
	c.hasKey = false
	c.aead = nil
	c.nonce = 0
}
