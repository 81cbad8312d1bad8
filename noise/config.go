package noise

import (
	"fmt"
	"io"
)

// Config describes one side of a handshake.
type Config struct {
	// Initiator is true for Alice, the side that sends the first message of
	// the base pattern.
	Initiator bool

	// Prologue is mixed into the handshake hash before any message.
	Prologue []byte

	// LocalStatic is the 32-byte static private key. It must be set exactly
	// when the pattern needs it.
	LocalStatic []byte

	// RemoteStatic is the peer's static public key. It must be set exactly
	// when the pattern puts it in a pre-message.
	RemoteStatic []byte

	// PreSharedKeys holds one 32-byte key per psk modifier, in order.
	PreSharedKeys [][]byte
}

func (c *Config) role() Role {
	return roleOf(c.Initiator)
}

// validate checks the configuration against the protocol's expanded pattern.
func (c *Config) validate(p *Protocol) error {
	role := c.role()

	switch required := p.script.localStaticRequired(role); {
	case required && len(c.LocalStatic) == 0:
		return fmt.Errorf("%w: %s needs a local static key",
			ErrInvalidHandshakeConfiguration, p.name)
	case !required && len(c.LocalStatic) != 0:
		return fmt.Errorf("%w: %s doesn't use a local static key",
			ErrInvalidHandshakeConfiguration, p.name)
	case required && len(c.LocalStatic) != privateKeySize:
		return fmt.Errorf("%w: local static key must be %d bytes, got %d",
			ErrInvalidHandshakeConfiguration, privateKeySize, len(c.LocalStatic))
	}

	switch required := p.script.remoteStaticRequired(role); {
	case required && len(c.RemoteStatic) == 0:
		return fmt.Errorf("%w: %s needs the remote static key",
			ErrInvalidHandshakeConfiguration, p.name)
	case !required && len(c.RemoteStatic) != 0:
		return fmt.Errorf("%w: %s doesn't use a remote static key",
			ErrInvalidHandshakeConfiguration, p.name)
	case required && len(c.RemoteStatic) != p.dh.DHLen():
		return fmt.Errorf("%w: remote static key must be %d bytes, got %d",
			ErrInvalidHandshakeConfiguration, p.dh.DHLen(), len(c.RemoteStatic))
	}

	if len(c.PreSharedKeys) != p.script.pskCount {
		return fmt.Errorf("%w: %s needs %d pre-shared keys, got %d",
			ErrInvalidHandshakeConfiguration, p.name, p.script.pskCount,
			len(c.PreSharedKeys))
	}
	for i, psk := range c.PreSharedKeys {
		if len(psk) != keySize {
			return fmt.Errorf("%w: pre-shared key %d must be %d bytes, got %d",
				ErrInvalidHandshakeConfiguration, i, keySize, len(psk))
		}
	}
	return nil
}

// HandshakeOption customizes a HandshakeState.
type HandshakeOption func(*handshakeOptions)

type handshakeOptions struct {
	random       io.Reader
	newEphemeral func() (*KeyPair, error)
}

// WithRandom sets the entropy source used for ephemeral keys. The default
// is crypto/rand.
func WithRandom(random io.Reader) HandshakeOption {
	return func(o *handshakeOptions) {
		o.random = random
	}
}

// EphemeralGenerator replaces ephemeral key generation. It exists for test
// vectors and must not be used to reuse ephemerals in production.
func EphemeralGenerator(gen func() (*KeyPair, error)) HandshakeOption {
	return func(o *handshakeOptions) {
		o.newEphemeral = gen
	}
}
