package noise

import (
	"fmt"
)

// Transport encrypts and decrypts messages after a handshake. c1 carries
// messages from the side that wrote the first handshake message, c2 the
// other direction. One-way transports have no c2. A Transport is not safe
// for concurrent use.
type Transport struct {
	initiator bool
	closed    bool
	c1        *CipherState
	c2        *CipherState
}

func newTransport(initiator bool, c1, c2 *CipherState) *Transport {
	return &Transport{initiator: initiator, c1: c1, c2: c2}
}

// IsInitiator reports whether this side wrote the first handshake message.
func (t *Transport) IsInitiator() bool {
	return t.initiator
}

// IsOneWay reports whether only the initiator may send.
func (t *Transport) IsOneWay() bool {
	return t.c2 == nil
}

func (t *Transport) sendCipher() (*CipherState, error) {
	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.initiator {
		return t.c1, nil
	}
	if t.c2 == nil {
		return nil, ErrOneWayViolation
	}
	return t.c2, nil
}

func (t *Transport) recvCipher() (*CipherState, error) {
	if t.closed {
		return nil, ErrTransportClosed
	}
	if !t.initiator {
		return t.c1, nil
	}
	if t.c2 == nil {
		return nil, ErrOneWayViolation
	}
	return t.c2, nil
}

// WriteMessage encrypts payload into messageBuffer and returns the message
// length.
func (t *Transport) WriteMessage(payload, messageBuffer []byte) (int, error) {
	cs, err := t.sendCipher()
	if err != nil {
		return 0, err
	}

	size := len(payload) + tagSize
	if size > MaxMessageLength {
		return 0, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}
	// The message doesn't fit the destination either way, so a short
	// buffer matches both sentinels.
	if len(messageBuffer) < size {
		return 0, fmt.Errorf("%w: %w: need %d bytes, got %d",
			ErrMessageTooLarge, ErrBufferTooSmall, size, len(messageBuffer))
	}

	ciphertext, err := cs.EncryptWithAd(messageBuffer[:0], nil, payload)
	if err != nil {
		return 0, err
	}
	return len(ciphertext), nil
}

// ReadMessage decrypts message into payloadBuffer and returns the payload
// length. A failed read leaves the Transport usable.
func (t *Transport) ReadMessage(message, payloadBuffer []byte) (int, error) {
	cs, err := t.recvCipher()
	if err != nil {
		return 0, err
	}

	if len(message) > MaxMessageLength {
		return 0, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(message))
	}
	if len(message) < tagSize {
		return 0, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrMessageTooSmall, tagSize, len(message))
	}
	if size := len(message) - tagSize; len(payloadBuffer) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d",
			ErrBufferTooSmall, size, len(payloadBuffer))
	}

	plaintext, err := cs.DecryptWithAd(payloadBuffer[:0], nil, message)
	if err != nil {
		return 0, err
	}
	return len(plaintext), nil
}

// NumInitiatorMessages returns how many messages the initiator has sent
// under the current key.
func (t *Transport) NumInitiatorMessages() uint64 {
	return t.c1.Nonce()
}

// NumResponderMessages returns how many messages the responder has sent
// under the current key. It is always zero for one-way transports.
func (t *Transport) NumResponderMessages() uint64 {
	if t.c2 == nil {
		return 0
	}
	return t.c2.Nonce()
}

// RekeyInitiatorToResponder applies Noise REKEY to the initiator's sending
// direction.
func (t *Transport) RekeyInitiatorToResponder() {
	t.c1.Rekey()
}

// RekeyResponderToInitiator applies Noise REKEY to the responder's sending
// direction.
func (t *Transport) RekeyResponderToInitiator() error {
	if t.c2 == nil {
		return ErrOneWayViolation
	}
	t.c2.Rekey()
	return nil
}

// KeyRecycleInitiatorToResponder rotates the initiator's sending key with
// the Lightning HKDF rotation and resets its nonce.
func (t *Transport) KeyRecycleInitiatorToResponder() {
	t.c1.KeyRecycle()
}

// KeyRecycleResponderToInitiator rotates the responder's sending key with
// the Lightning HKDF rotation and resets its nonce.
func (t *Transport) KeyRecycleResponderToInitiator() error {
	if t.c2 == nil {
		return ErrOneWayViolation
	}
	t.c2.KeyRecycle()
	return nil
}

// Close wipes both cipher states. Later reads and writes fail with
// ErrTransportClosed.
func (t *Transport) Close() error {
	t.closed = true
	t.c1.Wipe()
	t.c2.Wipe()
	return nil
}
