package noise

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
)

// HandshakeState drives one side of a handshake. It is not safe for
// concurrent use.
//
// A handshake that fails part way through a message is unusable afterwards:
// every later WriteMessage or ReadMessage returns ErrHandshakeFailed. The
// only way forward from such a state is Fallback, and only when the failure
// happened on the first message exchange of an Alice-initiated handshake.
type HandshakeState struct {
	protocol *Protocol
	script   *handshakeScript
	opts     handshakeOptions

	ss   *SymmetricState
	role Role

	s    *KeyPair
	e    *KeyPair
	rs   []byte
	re   []byte
	psks [][]byte

	cursor      int
	turnToWrite bool
	completed   bool
	failed      bool
	finalHash   []byte
}

func newHandshakeState(p *Protocol, cfg *Config, options []HandshakeOption) (*HandshakeState, error) {
	hs := &HandshakeState{
		protocol: p,
		script:   p.script,
		role:     cfg.role(),
	}
	for _, option := range options {
		option(&hs.opts)
	}

	if err := hs.configure(p, cfg); err != nil {
		return nil, err
	}
	hs.initialize(cfg.Prologue)

	log.WithFields(logrus.Fields{
		"protocol": p.name,
		"role":     hs.role,
	}).Debug("Handshake created")

	return hs, nil
}

// configure validates cfg and loads its keys.
func (hs *HandshakeState) configure(p *Protocol, cfg *Config) error {
	if err := cfg.validate(p); err != nil {
		return err
	}

	var s *KeyPair
	if len(cfg.LocalStatic) != 0 {
		var err error
		s, err = KeyPairFromPrivate(p.dh, cfg.LocalStatic)
		if err != nil {
			return err
		}
	}

	psks := make([][]byte, len(cfg.PreSharedKeys))
	for i, psk := range cfg.PreSharedKeys {
		psks[i] = cloneBytes(psk)
	}

	hs.s = s
	hs.rs = cloneBytes(cfg.RemoteStatic)
	hs.psks = psks
	return nil
}

// initialize starts the symmetric state and hashes the pre-messages, Alice's
// first.
func (hs *HandshakeState) initialize(prologue []byte) {
	hs.ss = newSymmetricState(hs.protocol.cipher, hs.protocol.hash)
	hs.ss.InitializeSymmetric([]byte(hs.protocol.name))
	hs.ss.MixHash(prologue)

	for _, owner := range []Role{Alice, Bob} {
		for _, t := range hs.script.preMessage(owner) {
			hs.mixPreMessageKey(t, owner)
		}
	}

	hs.cursor = 0
	hs.turnToWrite = hs.script.sender(0) == hs.role
}

func (hs *HandshakeState) mixPreMessageKey(t Token, owner Role) {
	var key []byte
	switch {
	case t == TokenE && owner == hs.role:
		key = hs.e.PublicKey()
	case t == TokenE:
		key = hs.re
	case t == TokenS && owner == hs.role:
		key = hs.s.PublicKey()
	default:
		key = hs.rs
	}

	hs.ss.MixHash(key)
	if t == TokenE && hs.script.psk {
		hs.ss.MixKey(key)
	}
}

// WriteMessage writes the next handshake message into messageBuffer and
// returns its length and the handshake hash after the message. On the last
// message it also returns the Transport; the HandshakeState is spent then.
func (hs *HandshakeState) WriteMessage(payload, messageBuffer []byte) (int, []byte, *Transport, error) {
	if err := hs.checkUsable(true); err != nil {
		return 0, nil, nil, err
	}

	tokens := hs.script.messages[hs.cursor]
	prefix := hs.protocol.versionPrefix
	size := len(prefix) + hs.overhead(tokens) + len(payload)
	if size > MaxMessageLength {
		return 0, nil, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}
	if len(messageBuffer) < size {
		return 0, nil, nil, fmt.Errorf("%w: need %d bytes, got %d",
			ErrBufferTooSmall, size, len(messageBuffer))
	}

	msg := append(messageBuffer[:0], prefix...)
	msg, err := hs.writeTokens(msg, tokens)
	if err == nil {
		msg, err = hs.ss.EncryptAndHash(msg, payload)
	}
	if err != nil {
		hs.fail(err)
		return 0, nil, nil, err
	}

	hash, transport := hs.advance()
	return len(msg), hash, transport, nil
}

// ReadMessage reads the next handshake message and decrypts its payload into
// payloadBuffer. It returns the payload length and the handshake hash after
// the message, and the Transport once the handshake is complete.
func (hs *HandshakeState) ReadMessage(message, payloadBuffer []byte) (int, []byte, *Transport, error) {
	if err := hs.checkUsable(false); err != nil {
		return 0, nil, nil, err
	}

	if len(message) > MaxMessageLength {
		return 0, nil, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(message))
	}
	tokens := hs.script.messages[hs.cursor]
	prefix := hs.protocol.versionPrefix
	overhead := len(prefix) + hs.overhead(tokens)
	if len(message) < overhead {
		return 0, nil, nil, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrMessageTooSmall, overhead, len(message))
	}
	if payloadLen := len(message) - overhead; len(payloadBuffer) < payloadLen {
		return 0, nil, nil, fmt.Errorf("%w: need %d bytes, got %d",
			ErrBufferTooSmall, payloadLen, len(payloadBuffer))
	}
	if !bytes.Equal(message[:len(prefix)], prefix) {
		return 0, nil, nil, fmt.Errorf("%w: %x", ErrUnsupportedVersion, message[:len(prefix)])
	}

	rest, err := hs.readTokens(message[len(prefix):], tokens)
	var payload []byte
	if err == nil {
		payload, err = hs.ss.DecryptAndHash(payloadBuffer[:0], rest)
	}
	if err != nil {
		hs.fail(err)
		return 0, nil, nil, err
	}

	hash, transport := hs.advance()
	return len(payload), hash, transport, nil
}

func (hs *HandshakeState) checkUsable(write bool) error {
	switch {
	case hs.completed:
		return ErrHandshakeCompleted
	case hs.failed:
		return ErrHandshakeFailed
	case write != hs.turnToWrite:
		return ErrTurnViolation
	}
	return nil
}

// overhead returns the bytes the tokens and the payload tag add to a
// message, given the current key state.
func (hs *HandshakeState) overhead(tokens []Token) int {
	dhLen := hs.protocol.dh.DHLen()
	hasKey := hs.ss.HasKey()

	size := 0
	for _, t := range tokens {
		switch t {
		case TokenE:
			size += dhLen
			if hs.script.psk {
				hasKey = true
			}
		case TokenS:
			size += dhLen
			if hasKey {
				size += tagSize
			}
		default:
			hasKey = true
		}
	}
	if hasKey {
		size += tagSize
	}
	return size
}

func (hs *HandshakeState) writeTokens(msg []byte, tokens []Token) ([]byte, error) {
	for _, t := range tokens {
		var err error
		switch t {
		case TokenE:
			var e *KeyPair
			e, err = hs.newEphemeral()
			if err != nil {
				return nil, err
			}
			hs.e.Wipe()
			hs.e = e
			msg = append(msg, e.PublicKey()...)
			hs.ss.MixHash(e.PublicKey())
			if hs.script.psk {
				hs.ss.MixKey(e.PublicKey())
			}
		case TokenS:
			msg, err = hs.ss.EncryptAndHash(msg, hs.s.PublicKey())
		case TokenPSK:
			hs.mixPsk()
		default:
			err = hs.mixDH(t, false)
		}
		if err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// readTokens consumes the tokens from msg and returns the rest, the
// encrypted payload. The caller has checked msg is long enough.
func (hs *HandshakeState) readTokens(msg []byte, tokens []Token) ([]byte, error) {
	dhLen := hs.protocol.dh.DHLen()
	for _, t := range tokens {
		switch t {
		case TokenE:
			hs.re = cloneBytes(msg[:dhLen])
			msg = msg[dhLen:]
			hs.ss.MixHash(hs.re)
			if hs.script.psk {
				hs.ss.MixKey(hs.re)
			}
		case TokenS:
			n := dhLen
			if hs.ss.HasKey() {
				n += tagSize
			}
			rs, err := hs.ss.DecryptAndHash(nil, msg[:n])
			if err != nil {
				return nil, err
			}
			hs.rs = rs
			msg = msg[n:]
		case TokenPSK:
			hs.mixPsk()
		default:
			if err := hs.mixDH(t, true); err != nil {
				return nil, err
			}
		}
	}
	return msg, nil
}

func (hs *HandshakeState) newEphemeral() (*KeyPair, error) {
	if hs.opts.newEphemeral != nil {
		return hs.opts.newEphemeral()
	}
	return GenerateKeyPair(hs.protocol.dh, hs.opts.random)
}

// mixDH mixes the shared secret of a DH token. es is always Alice's
// ephemeral with Bob's static, se Alice's static with Bob's ephemeral.
// While reading, a peer key that isn't a valid point is reported as a
// decryption failure, the same as any other tampered message.
func (hs *HandshakeState) mixDH(t Token, reading bool) error {
	var local *KeyPair
	var remote []byte
	alice := hs.role == Alice

	switch {
	case t == TokenEE:
		local, remote = hs.e, hs.re
	case t == TokenSS:
		local, remote = hs.s, hs.rs
	case t == TokenES && alice, t == TokenSE && !alice:
		local, remote = hs.e, hs.rs
	case t == TokenES, t == TokenSE:
		local, remote = hs.s, hs.re
	default:
		return fmt.Errorf("noise: unexpected token %v", t)
	}
	if local == nil || len(remote) == 0 {
		return fmt.Errorf("%w: missing key for %v", ErrInvalidHandshakeConfiguration, t)
	}

	shared, err := hs.protocol.dh.DH(local.PrivateKey(), remote)
	if err != nil && reading {
		return fmt.Errorf("%w: %v: %v", ErrDecryptionFailure, t, err)
	}
	if err != nil {
		return fmt.Errorf("noise: %v: %w", t, err)
	}
	hs.ss.MixKey(shared)
	zeroBytes(shared)
	return nil
}

func (hs *HandshakeState) mixPsk() {
	psk := hs.psks[0]
	hs.psks = hs.psks[1:]
	hs.ss.MixKeyAndHash(psk)
	zeroBytes(psk)
}

// advance moves past a completed message. After the last one it splits the
// symmetric state into a Transport.
func (hs *HandshakeState) advance() ([]byte, *Transport) {
	hs.cursor++
	hash := hs.ss.HandshakeHash()
	if hs.cursor < len(hs.script.messages) {
		hs.turnToWrite = !hs.turnToWrite
		return hash, nil
	}

	c1, c2 := hs.ss.Split()
	if hs.script.oneWay() {
		c2.Wipe()
		c2 = nil
	}
	transport := newTransport(hs.script.sender(0) == hs.role, c1, c2)

	hs.completed = true
	hs.finalHash = cloneBytes(hash)
	hs.wipe()

	fields := logrus.Fields{
		"protocol": hs.protocol.name,
		"role":     hs.role,
	}
	if len(hs.rs) != 0 {
		fields["remote_static"] = hex.EncodeToString(hs.rs)
	}
	log.WithFields(fields).Debug("Handshake complete")

	return hash, transport
}

// fallbackReady reports whether the handshake is at a point where Fallback
// may take over: Alice has written the first message, or Bob has at least
// captured Alice's ephemeral from it.
func (hs *HandshakeState) fallbackReady() bool {
	if hs.completed || !hs.script.aliceFirst {
		return false
	}
	if hs.role == Alice {
		return hs.cursor == 1 && hs.e != nil
	}
	return hs.cursor <= 1 && len(hs.re) != 0
}

// fail poisons the handshake and wipes every secret except the ephemeral
// key Fallback needs.
func (hs *HandshakeState) fail(err error) {
	ready := hs.fallbackReady()
	hs.failed = true

	hs.ss.Wipe()
	hs.s.Wipe()
	hs.s = nil
	hs.wipePsks()
	if !ready || hs.role != Alice {
		hs.e.Wipe()
		hs.e = nil
	}
	if !ready || hs.role != Bob {
		hs.re = nil
	}

	log.WithFields(logrus.Fields{
		"protocol": hs.protocol.name,
		"role":     hs.role,
		"message":  hs.cursor,
	}).WithError(err).Debug("Handshake failed")
}

// Fallback restarts the handshake with a fallback protocol, such as
// XXfallback after a failed IK attempt. Alice keeps the ephemeral key it
// sent in the first message and Bob keeps the one it received. Bob writes
// the first message of the new handshake.
func (hs *HandshakeState) Fallback(p *Protocol, cfg Config) error {
	if hs.completed {
		return ErrHandshakeCompleted
	}
	if !hs.fallbackReady() {
		return fmt.Errorf("%w: fallback is only possible after the first message",
			ErrTurnViolation)
	}
	if p.modifiers&ModifierFallback == 0 {
		return fmt.Errorf("%w: %s is not a fallback protocol",
			ErrInvalidHandshakeConfiguration, p.name)
	}
	if len(p.script.alicePre) != 1 || p.script.alicePre[0] != TokenE {
		return fmt.Errorf("%w: %s must start from the initiator's ephemeral key",
			ErrInvalidHandshakeConfiguration, p.name)
	}
	if p.dh.DHName() != hs.protocol.dh.DHName() {
		return fmt.Errorf("%w: fallback can't change the DH function",
			ErrInvalidHandshakeConfiguration)
	}
	if cfg.role() != hs.role {
		return fmt.Errorf("%w: fallback can't change roles",
			ErrInvalidHandshakeConfiguration)
	}

	next := &HandshakeState{
		protocol: p,
		script:   p.script,
		opts:     hs.opts,
		role:     hs.role,
	}
	if err := next.configure(p, &cfg); err != nil {
		return err
	}

	// Nothing of hs changes until the new configuration is known to be good.
	e, re := hs.e, hs.re
	if hs.role == Alice {
		re = nil
	} else {
		e.Wipe()
		e = nil
	}

	hs.ss.Wipe()
	hs.s.Wipe()
	hs.wipePsks()

	next.e, next.re = e, re
	next.initialize(cfg.Prologue)
	*hs = *next

	log.WithFields(logrus.Fields{
		"protocol": p.name,
		"role":     hs.role,
	}).Debug("Handshake fell back")

	return nil
}

// RemoteStaticPublicKey returns the peer's static public key, or nil if it
// isn't known yet.
func (hs *HandshakeState) RemoteStaticPublicKey() []byte {
	return cloneBytes(hs.rs)
}

// HandshakeHash returns the current handshake hash. After completion it is
// the final hash, usable for channel binding.
func (hs *HandshakeState) HandshakeHash() []byte {
	if hs.completed {
		return cloneBytes(hs.finalHash)
	}
	if hs.failed || hs.ss == nil {
		return nil
	}
	return hs.ss.HandshakeHash()
}

// IsInitiator reports whether this side is Alice.
func (hs *HandshakeState) IsInitiator() bool {
	return hs.role == Alice
}

// Protocol returns the protocol the handshake currently runs.
func (hs *HandshakeState) Protocol() *Protocol {
	return hs.protocol
}

// Close wipes all secrets. The HandshakeState can't be used afterwards.
func (hs *HandshakeState) Close() error {
	hs.wipe()
	if !hs.completed {
		hs.failed = true
	}
	return nil
}

func (hs *HandshakeState) wipe() {
	hs.ss.Wipe()
	hs.s.Wipe()
	hs.s = nil
	hs.e.Wipe()
	hs.e = nil
	hs.re = nil
	hs.wipePsks()
}

func (hs *HandshakeState) wipePsks() {
	zeroBytes(hs.psks...)
	hs.psks = nil
}
