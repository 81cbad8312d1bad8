package brontide

import (
	"time"

	"github.com/malcolmseyd/lnnoise/noise"
)

// defaultHandshakeTimeout bounds the three acts of a handshake on a Conn.
const defaultHandshakeTimeout = 5 * time.Second

type config struct {
	ephemeralGen     func() (*noise.KeyPair, error)
	metrics          *Metrics
	handshakeTimeout time.Duration
}

// Option configures a Machine, Conn or Listener.
type Option func(*config)

func newConfig(opts []Option) *config {
	cfg := &config{
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// EphemeralGenerator overrides how the handshake ephemeral key is created.
// It exists for deterministic test vectors.
func EphemeralGenerator(gen func() (*noise.KeyPair, error)) Option {
	return func(c *config) {
		c.ephemeralGen = gen
	}
}

// WithMetrics records handshakes, rotations and decryption failures in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// HandshakeTimeout sets the deadline for completing the handshake on a
// connection. Zero disables it.
func HandshakeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handshakeTimeout = d
	}
}
