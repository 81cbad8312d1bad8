package noise

import (
	"github.com/flynn/noise"
)

// SymmetricState holds the chaining key and handshake hash alongside the
// handshake CipherState.
type SymmetricState struct {
	cipherFunc  noise.CipherFunc
	hash        noise.HashFunc
	cipher      *CipherState
	chainingKey []byte
	h           []byte
}

func newSymmetricState(cipher noise.CipherFunc, hash noise.HashFunc) *SymmetricState {
	return &SymmetricState{
		cipherFunc: cipher,
		hash:       hash,
		cipher:     newCipherState(cipher, hash),
	}
}

// InitializeSymmetric sets h to the protocol name, zero padded to HashLen, or
// to its hash when the name is longer than HashLen.
func (s *SymmetricState) InitializeSymmetric(protocolName []byte) {
	size := hashLen(s.hash)
	if len(protocolName) <= size {
		s.h = make([]byte, size)
		copy(s.h, protocolName)
	} else {
		hh := s.hash.Hash()
		hh.Write(protocolName)
		s.h = hh.Sum(nil)
	}
	s.chainingKey = cloneBytes(s.h)
	s.cipher.Wipe()
}

// MixKey mixes chaining key with input data
func (s *SymmetricState) MixKey(input []byte) {
	ck, tmp := hkdf2(s.hash, s.chainingKey, input)
	zeroBytes(s.chainingKey)
	s.chainingKey = ck
	s.cipher.InitializeKey(toKey(tmp))
	zeroBytes(tmp)
}

// MixHash mixes hash with input data
func (s *SymmetricState) MixHash(input []byte) {
	hh := s.hash.Hash()
	hh.Write(s.h)
	hh.Write(input)
	s.h = hh.Sum(s.h[:0])
}

// MixKeyAndHash mixes key and hash with input data
func (s *SymmetricState) MixKeyAndHash(input []byte) {
	ck, tmpHash, tmpKey := hkdf3(s.hash, s.chainingKey, input)
	zeroBytes(s.chainingKey)
	s.chainingKey = ck
	s.MixHash(tmpHash)
	s.cipher.InitializeKey(toKey(tmpKey))
	zeroBytes(tmpHash, tmpKey)
}

// HasKey reports whether the handshake cipher has been keyed.
func (s *SymmetricState) HasKey() bool {
	return s.cipher.HasKey()
}

// HandshakeHash returns a copy of h.
func (s *SymmetricState) HandshakeHash() []byte {
	return cloneBytes(s.h)
}

// EncryptAndHash appends the encryption of plaintext to out and mixes the
// ciphertext into h.
func (s *SymmetricState) EncryptAndHash(out, plaintext []byte) ([]byte, error) {
	ciphertext, err := s.cipher.EncryptWithAd(out, s.h, plaintext)
	if err != nil {
		return nil, err
	}
	s.MixHash(ciphertext[len(out):])
	return ciphertext, nil
}

// DecryptAndHash appends the decryption of ciphertext to out and mixes the
// ciphertext into h.
func (s *SymmetricState) DecryptAndHash(out, ciphertext []byte) ([]byte, error) {
	plaintext, err := s.cipher.DecryptWithAd(out, s.h, ciphertext)
	if err != nil {
		return nil, err
	}
	s.MixHash(ciphertext)
	return plaintext, nil
}

// Split returns a pair of CipherStates for encrypting transport messages.
// Both carry the final chaining key as their key recycling salt.
func (s *SymmetricState) Split() (c1, c2 *CipherState) {
	tmpKey1, tmpKey2 := hkdf2(s.hash, s.chainingKey, nil)
	defer zeroBytes(tmpKey1, tmpKey2)

	c1 = newCipherState(s.cipherFunc, s.hash)
	c1.InitializeKeyWithSalt(s.chainingKey, toKey(tmpKey1))
	c2 = newCipherState(s.cipherFunc, s.hash)
	c2.InitializeKeyWithSalt(s.chainingKey, toKey(tmpKey2))
	return c1, c2
}

// Wipe zeroes the chaining key, the hash and the handshake cipher.
func (s *SymmetricState) Wipe() {
	if s == nil {
		return
	}
	zeroBytes(s.chainingKey, s.h)
	s.chainingKey = nil
	s.h = nil
	s.cipher.Wipe()
}
