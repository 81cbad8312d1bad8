package noise

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// MaxMessageLength is the largest handshake or transport message, in
	// bytes, that may be written or read.
	MaxMessageLength = 65535

	// MinNameLength and MaxNameLength bound the length of a protocol name.
	MinNameLength = 21
	MaxNameLength = 255

	keySize        = chacha20poly1305.KeySize
	tagSize        = chacha20poly1305.Overhead
	privateKeySize = 32
)

var (
	// ErrInvalidProtocolName is returned when a protocol name can't be
	// parsed or names an unsupported primitive.
	ErrInvalidProtocolName = errors.New("noise: invalid protocol name")
	// ErrInvalidHandshakeConfiguration is returned when keys or pre-shared
	// keys don't match what the handshake pattern needs.
	ErrInvalidHandshakeConfiguration = errors.New("noise: invalid handshake configuration")
	// ErrUnsupportedVersion is returned when a handshake message carries an
	// unexpected version prefix.
	ErrUnsupportedVersion = errors.New("noise: unsupported handshake version")
	// ErrTurnViolation is returned when a handshake operation is called out
	// of turn.
	ErrTurnViolation = errors.New("noise: handshake operation called out of turn")
	// ErrHandshakeCompleted is returned when a handshake is used after it
	// produced a Transport.
	ErrHandshakeCompleted = errors.New("noise: handshake already completed")
	// ErrHandshakeFailed is returned when a handshake is used after one of
	// its messages failed.
	ErrHandshakeFailed = errors.New("noise: handshake failed")
	// ErrMessageTooLarge occurs when a message exceeds MaxMessageLength or
	// doesn't fit its destination.
	ErrMessageTooLarge = errors.New("noise: message too large")
	// ErrMessageTooSmall occurs when a received message is shorter than its
	// fixed overhead.
	ErrMessageTooSmall = errors.New("noise: message too small")
	// ErrBufferTooSmall occurs when a destination buffer can't hold the
	// result of an operation.
	ErrBufferTooSmall = errors.New("noise: buffer too small")
	// ErrDecryptionFailure represents all authentication failures.
	ErrDecryptionFailure = errors.New("noise: decryption failure")
	// ErrNonceOverflow occurs when a cipher state exhausts its nonces.
	ErrNonceOverflow = errors.New("noise: nonce overflow")
	// ErrOneWayViolation occurs when a one-way transport is used in the
	// wrong direction.
	ErrOneWayViolation = errors.New("noise: one-way transport used in the wrong direction")

	// ErrTransportClosed occurs when a Transport is used after Close.
	ErrTransportClosed = errors.New("noise: transport closed")
)

// Role identifies a handshake party. Alice is the party that sends the
// first message of the original pattern, even after a fallback hands the
// first message to Bob.
type Role uint8

const (
	// Alice is the initiator of the original pattern.
	Alice Role = iota
	// Bob is the responder of the original pattern.
	Bob
)

func (r Role) String() string {
	if r == Alice {
		return "alice"
	}
	return "bob"
}

func (r Role) peer() Role {
	if r == Alice {
		return Bob
	}
	return Alice
}
