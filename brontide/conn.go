package brontide

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Conn is a net.Conn whose traffic is encrypted by a completed BOLT8
// handshake. Reads and writes may happen concurrently; each direction has
// its own lock.
type Conn struct {
	conn  net.Conn
	noise *Machine

	readMu  sync.Mutex
	readBuf bytes.Buffer

	writeMu sync.Mutex
}

var _ net.Conn = (*Conn)(nil)

// Dial connects to address with dialer and runs the initiator side of the
// handshake. remoteStatic is the compressed public key the peer must prove
// it holds.
func Dial(localStatic, remoteStatic []byte, address string,
	dialer func(network, address string) (net.Conn, error),
	opts ...Option) (*Conn, error) {

	conn, err := dialer("tcp", address)
	if err != nil {
		return nil, err
	}

	b, err := NewMachine(true, localStatic, remoteStatic, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Conn{
		conn:  conn,
		noise: b,
	}
	if err := c.initiatorHandshake(); err != nil {
		c.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"remote": c.RemoteAddr().String(),
	}).Debug("Outbound handshake complete")

	return c, nil
}

func (c *Conn) initiatorHandshake() error {
	if err := c.setHandshakeDeadline(); err != nil {
		return err
	}

	actOne, err := c.noise.GenActOne()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(actOne[:]); err != nil {
		return err
	}

	var actTwo [ActTwoSize]byte
	if _, err := io.ReadFull(c.conn, actTwo[:]); err != nil {
		return err
	}
	if err := c.noise.RecvActTwo(actTwo); err != nil {
		return err
	}

	actThree, err := c.noise.GenActThree()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(actThree[:]); err != nil {
		return err
	}

	return c.conn.SetDeadline(time.Time{})
}

func (c *Conn) responderHandshake() error {
	if err := c.setHandshakeDeadline(); err != nil {
		return err
	}

	var actOne [ActOneSize]byte
	if _, err := io.ReadFull(c.conn, actOne[:]); err != nil {
		return err
	}
	if err := c.noise.RecvActOne(actOne); err != nil {
		return err
	}

	actTwo, err := c.noise.GenActTwo()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(actTwo[:]); err != nil {
		return err
	}

	var actThree [ActThreeSize]byte
	if _, err := io.ReadFull(c.conn, actThree[:]); err != nil {
		return err
	}
	if err := c.noise.RecvActThree(actThree); err != nil {
		return err
	}

	return c.conn.SetDeadline(time.Time{})
}

func (c *Conn) setHandshakeDeadline() error {
	timeout := c.noise.cfg.handshakeTimeout
	if timeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(timeout))
}

// ReadNextMessage reads the next message from the peer without buffering.
// It must not be mixed with Read.
func (c *Conn) ReadNextMessage() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	return c.noise.ReadMessage(c.conn)
}

// Read reads decrypted bytes into b. Messages larger than b are kept in an
// intermediate buffer so the record boundaries are invisible to the caller.
//
// Part of the net.Conn interface.
func (c *Conn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.readBuf.Len() == 0 {
		plaintext, err := c.noise.ReadMessage(c.conn)
		if err != nil {
			return 0, err
		}
		c.readBuf.Write(plaintext)
	}

	return c.readBuf.Read(b)
}

// Write encrypts b and writes it to the peer, split into as many messages as
// needed. The returned count never includes framing or MAC bytes.
//
// Part of the net.Conn interface.
func (c *Conn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var total int
	for len(b) > 0 {
		chunk := b
		if len(chunk) > MaxPayloadLength {
			chunk = chunk[:MaxPayloadLength]
		}

		if err := c.noise.WriteMessage(chunk); err != nil {
			return total, err
		}
		n, err := c.noise.Flush(c.conn)
		total += n
		if err != nil {
			return total, err
		}

		b = b[len(chunk):]
	}

	return total, nil
}

// Flush resumes a write interrupted by a timeout.
func (c *Conn) Flush() (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.noise.Flush(c.conn)
}

// Close closes the connection and wipes the session keys.
//
// Part of the net.Conn interface.
func (c *Conn) Close() error {
	// Closing the socket first unblocks pending reads and writes, which
	// hold the locks guarding the keys.
	err := c.conn.Close()

	c.readMu.Lock()
	c.writeMu.Lock()
	c.noise.Close()
	c.writeMu.Unlock()
	c.readMu.Unlock()

	return err
}

// RemoteStatic returns the peer's static public key.
func (c *Conn) RemoteStatic() []byte {
	return c.noise.RemoteStatic()
}

// LocalAddr returns the local network address.
//
// Part of the net.Conn interface.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the peer's address, including its static key.
//
// Part of the net.Conn interface.
func (c *Conn) RemoteAddr() net.Addr {
	return &Addr{
		PubKey:  c.noise.RemoteStatic(),
		Address: c.conn.RemoteAddr(),
	}
}

// SetDeadline is part of the net.Conn interface.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline is part of the net.Conn interface.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline is part of the net.Conn interface.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
