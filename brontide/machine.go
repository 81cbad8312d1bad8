package brontide

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/malcolmseyd/lnnoise/noise"
)

const (
	// ActOneSize is the size of the first handshake message: version,
	// ephemeral key and MAC.
	ActOneSize = 50

	// ActTwoSize is the size of the second handshake message.
	ActTwoSize = 50

	// ActThreeSize is the size of the third handshake message: version,
	// encrypted static key and MAC.
	ActThreeSize = 66

	// MaxPayloadLength is the largest payload a single message can carry.
	MaxPayloadLength = noise.MaxMessageLength - macSize

	macSize = 16

	// lengthHeaderSize is the plaintext length prefix of every message.
	lengthHeaderSize = 2

	// encHeaderSize is the encrypted length prefix plus its MAC.
	encHeaderSize = lengthHeaderSize + macSize

	// keyRotationInterval is the number of cipher operations in one
	// direction after which that direction's key is rotated forwards.
	keyRotationInterval = 1000
)

var (
	// Prologue is mixed into every BOLT8 handshake.
	Prologue = []byte("lightning")

	// ErrMaxMessageLengthExceeded is returned when a message to be written
	// exceeds MaxPayloadLength.
	ErrMaxMessageLengthExceeded = errors.New("brontide: message exceeds the max payload length")

	// ErrMessageNotFlushed signals that the prior message hasn't been fully
	// flushed yet.
	ErrMessageNotFlushed = errors.New("brontide: prior message not flushed")

	// ErrHandshakeIncomplete is returned when transport operations are
	// attempted before the handshake completed.
	ErrHandshakeIncomplete = errors.New("brontide: handshake not complete")
)

// Machine runs the BOLT8 three act handshake and then frames messages as an
// encrypted 2-byte length followed by the encrypted body. Each direction
// rotates its key every 1000 cipher operations.
type Machine struct {
	cfg *config

	handshake *noise.HandshakeState
	transport *noise.Transport
	initiator bool
	remote    []byte

	// nextCipherHeader is a static buffer that we'll use to read in the
	// next ciphertext header from the wire.
	nextCipherHeader [encHeaderSize]byte

	// nextHeaderSend and nextBodySend hold the unwritten parts of a
	// pending message so Flush can resume after a partial write.
	nextHeaderSend []byte
	nextBodySend   []byte
}

// NewMachine creates the handshake state for one side of a BOLT8
// connection. remoteStatic must be set for the initiator and nil for the
// responder, which learns it in act three.
func NewMachine(initiator bool, localStatic, remoteStatic []byte,
	opts ...Option) (*Machine, error) {

	cfg := newConfig(opts)

	var hsOpts []noise.HandshakeOption
	if cfg.ephemeralGen != nil {
		hsOpts = append(hsOpts, noise.EphemeralGenerator(cfg.ephemeralGen))
	}

	handshake, err := noise.Bolt8().Create(noise.Config{
		Initiator:    initiator,
		Prologue:     Prologue,
		LocalStatic:  localStatic,
		RemoteStatic: remoteStatic,
	}, hsOpts...)
	if err != nil {
		return nil, err
	}

	return &Machine{
		cfg:       cfg,
		handshake: handshake,
		initiator: initiator,
		remote:    append([]byte(nil), remoteStatic...),
	}, nil
}

// GenActOne generates the initiator's first message.
func (b *Machine) GenActOne() ([ActOneSize]byte, error) {
	var actOne [ActOneSize]byte
	err := b.writeAct(actOne[:])
	return actOne, err
}

// RecvActOne processes the initiator's first message.
func (b *Machine) RecvActOne(actOne [ActOneSize]byte) error {
	return b.readAct(actOne[:])
}

// GenActTwo generates the responder's reply.
func (b *Machine) GenActTwo() ([ActTwoSize]byte, error) {
	var actTwo [ActTwoSize]byte
	err := b.writeAct(actTwo[:])
	return actTwo, err
}

// RecvActTwo processes the responder's reply.
func (b *Machine) RecvActTwo(actTwo [ActTwoSize]byte) error {
	return b.readAct(actTwo[:])
}

// GenActThree generates the final message, which carries the initiator's
// encrypted static key. The Machine is ready for transport messages
// afterwards.
func (b *Machine) GenActThree() ([ActThreeSize]byte, error) {
	var actThree [ActThreeSize]byte
	err := b.writeAct(actThree[:])
	return actThree, err
}

// RecvActThree processes the final message and learns the initiator's static
// key.
func (b *Machine) RecvActThree(actThree [ActThreeSize]byte) error {
	return b.readAct(actThree[:])
}

func (b *Machine) writeAct(act []byte) error {
	if b.handshake == nil {
		return noise.ErrHandshakeCompleted
	}
	n, _, transport, err := b.handshake.WriteMessage(nil, act)
	if err != nil {
		b.cfg.metrics.handshake(b.initiator, err)
		return err
	}
	if n != len(act) {
		return fmt.Errorf("brontide: act is %d bytes, expected %d", n, len(act))
	}
	b.finish(transport)
	return nil
}

func (b *Machine) readAct(act []byte) error {
	if b.handshake == nil {
		return noise.ErrHandshakeCompleted
	}
	_, _, transport, err := b.handshake.ReadMessage(act, nil)
	if err != nil {
		b.cfg.metrics.handshake(b.initiator, err)
		return err
	}
	b.finish(transport)
	return nil
}

func (b *Machine) finish(transport *noise.Transport) {
	if transport == nil {
		return
	}
	b.transport = transport
	b.remote = b.handshake.RemoteStaticPublicKey()
	b.handshake = nil
	b.cfg.metrics.handshake(b.initiator, nil)
}

// RemoteStatic returns the remote static public key. For the responder it is
// only known once act three was received.
func (b *Machine) RemoteStatic() []byte {
	return append([]byte(nil), b.remote...)
}

// HandshakeComplete reports whether transport messages can be exchanged.
func (b *Machine) HandshakeComplete() bool {
	return b.transport != nil
}

// WriteMessage encrypts and buffers the next message p. The ciphertext of the
// message is prepended with an encrypted and authenticated length.
//
// NOTE: This DOES NOT write the message to the wire, it should be followed by a
// call to Flush to ensure the message is written.
func (b *Machine) WriteMessage(p []byte) error {
	if b.transport == nil {
		return ErrHandshakeIncomplete
	}
	if len(p) > MaxPayloadLength {
		return ErrMaxMessageLengthExceeded
	}
	if len(b.nextHeaderSend) > 0 || len(b.nextBodySend) > 0 {
		return ErrMessageNotFlushed
	}

	var pktLen [lengthHeaderSize]byte
	binary.BigEndian.PutUint16(pktLen[:], uint16(len(p)))

	header, err := b.encrypt(pktLen[:])
	if err != nil {
		return err
	}
	body, err := b.encrypt(p)
	if err != nil {
		return err
	}

	b.nextHeaderSend = header
	b.nextBodySend = body
	return nil
}

// Flush writes a message buffered by WriteMessage to w, continuing where a
// previous partial write left off. It returns the number of plaintext
// payload bytes written, which never counts header or MAC bytes.
//
// NOTE: It is safe to call this method again iff a timeout error is returned.
func (b *Machine) Flush(w io.Writer) (int, error) {
	if len(b.nextHeaderSend) > 0 {
		n, err := w.Write(b.nextHeaderSend)
		b.nextHeaderSend = b.nextHeaderSend[n:]
		if err != nil {
			return 0, err
		}
	}

	var flushed int
	if len(b.nextBodySend) > 0 {
		n, err := w.Write(b.nextBodySend)
		b.nextBodySend = b.nextBodySend[n:]

		// Only payload bytes count. Everything within the trailing
		// macSize bytes of the body is MAC.
		before := n + len(b.nextBodySend)
		after := len(b.nextBodySend)
		payloadBefore := max(before-macSize, 0)
		payloadAfter := max(after-macSize, 0)
		flushed = payloadBefore - payloadAfter

		if err != nil {
			return flushed, err
		}
	}

	return flushed, nil
}

// ReadMessage reads and decrypts the next message from r.
func (b *Machine) ReadMessage(r io.Reader) ([]byte, error) {
	pktLen, err := b.ReadHeader(r)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, pktLen)
	return b.ReadBody(r, buf)
}

// ReadHeader reads and decrypts the next length header from r. It returns
// the size of the body that follows, including its MAC.
//
// NOTE: The split ReadHeader and ReadBody methods exist so callers can set
// separate deadlines for each read.
func (b *Machine) ReadHeader(r io.Reader) (uint32, error) {
	if b.transport == nil {
		return 0, ErrHandshakeIncomplete
	}

	if _, err := io.ReadFull(r, b.nextCipherHeader[:]); err != nil {
		return 0, err
	}

	var pktLenBytes [lengthHeaderSize]byte
	if _, err := b.decrypt(b.nextCipherHeader[:], pktLenBytes[:]); err != nil {
		return 0, err
	}

	return uint32(binary.BigEndian.Uint16(pktLenBytes[:])) + macSize, nil
}

// ReadBody reads the body announced by ReadHeader into buf and decrypts it
// in place. buf must have exactly the length ReadHeader returned.
func (b *Machine) ReadBody(r io.Reader, buf []byte) ([]byte, error) {
	if b.transport == nil {
		return nil, ErrHandshakeIncomplete
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	n, err := b.decrypt(buf, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (b *Machine) encrypt(p []byte) ([]byte, error) {
	out := make([]byte, len(p)+macSize)
	n, err := b.transport.WriteMessage(p, out)
	if err != nil {
		return nil, err
	}

	if b.sendCount() >= keyRotationInterval {
		b.rotate(true)
	}
	return out[:n], nil
}

func (b *Machine) decrypt(ciphertext, out []byte) (int, error) {
	n, err := b.transport.ReadMessage(ciphertext, out)
	if err != nil {
		b.cfg.metrics.decryptFailure()
		return 0, err
	}

	if b.recvCount() >= keyRotationInterval {
		b.rotate(false)
	}
	return n, nil
}

func (b *Machine) sendCount() uint64 {
	if b.initiator {
		return b.transport.NumInitiatorMessages()
	}
	return b.transport.NumResponderMessages()
}

func (b *Machine) recvCount() uint64 {
	if b.initiator {
		return b.transport.NumResponderMessages()
	}
	return b.transport.NumInitiatorMessages()
}

// rotate recycles the key of the sending or receiving direction.
func (b *Machine) rotate(send bool) {
	initiatorToResponder := send == b.initiator
	if initiatorToResponder {
		b.transport.KeyRecycleInitiatorToResponder()
	} else {
		// BOLT8 transports are never one-way.
		_ = b.transport.KeyRecycleResponderToInitiator()
	}

	direction := "recv"
	if send {
		direction = "send"
	}
	b.cfg.metrics.rotation(direction)
	log.WithField("direction", direction).Trace("Rotated transport key")
}

// Close wipes the handshake and transport keys.
func (b *Machine) Close() error {
	if b.handshake != nil {
		b.handshake.Close()
	}
	if b.transport != nil {
		b.transport.Close()
	}
	return nil
}
