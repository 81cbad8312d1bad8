package brontide

import (
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// defaultHandshakes is the number of finished handshakes that may wait for
// Accept before new ones block.
const defaultHandshakes = 100

// Listener accepts TCP connections and runs the responder side of the BOLT8
// handshake on each. Handshakes run concurrently so a slow peer cannot stall
// others.
type Listener struct {
	// keyMu guards localStatic, which Close wipes.
	keyMu       sync.Mutex
	localStatic []byte
	opts        []Option

	tcp net.Listener

	handshakeConns chan maybeConn
	quit           chan struct{}
	closeOnce      sync.Once
}

var _ net.Listener = (*Listener)(nil)

type maybeConn struct {
	conn *Conn
	err  error
}

// Listen opens a TCP listener on address that authenticates peers with
// localStatic.
func Listen(localStatic []byte, address string, opts ...Option) (*Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return NewListener(localStatic, l, opts...), nil
}

// NewListener wraps an existing stream listener. The Listener owns l from
// now on.
func NewListener(localStatic []byte, l net.Listener, opts ...Option) *Listener {
	brontideListener := &Listener{
		localStatic:    append([]byte(nil), localStatic...),
		opts:           opts,
		tcp:            l,
		handshakeConns: make(chan maybeConn, defaultHandshakes),
		quit:           make(chan struct{}),
	}

	go brontideListener.listen()

	return brontideListener
}

func (l *Listener) listen() {
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		conn, err := l.tcp.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.rejectConn(err)
			continue
		}

		go l.doHandshake(conn)
	}
}

func (l *Listener) doHandshake(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	b, err := l.newMachine()
	if errors.Is(err, net.ErrClosed) {
		conn.Close()
		return
	}
	if err != nil {
		conn.Close()
		l.rejectConn(err)
		return
	}

	c := &Conn{
		conn:  conn,
		noise: b,
	}
	if err := c.responderHandshake(); err != nil {
		log.WithFields(logrus.Fields{
			"remote": remoteAddr,
		}).WithError(err).Debug("Inbound handshake failed")

		c.Close()
		l.rejectConn(err)
		return
	}

	log.WithFields(logrus.Fields{
		"remote": c.RemoteAddr().String(),
	}).Debug("Inbound handshake complete")

	l.acceptConn(c)
}

// newMachine creates the responder state for one connection. The Machine
// holds its own copy of the key.
func (l *Listener) newMachine() (*Machine, error) {
	l.keyMu.Lock()
	defer l.keyMu.Unlock()

	select {
	case <-l.quit:
		return nil, net.ErrClosed
	default:
	}

	return NewMachine(false, l.localStatic, nil, l.opts...)
}

func (l *Listener) acceptConn(c *Conn) {
	select {
	case l.handshakeConns <- maybeConn{conn: c}:
	case <-l.quit:
		c.Close()
	}
}

func (l *Listener) rejectConn(err error) {
	select {
	case l.handshakeConns <- maybeConn{err: err}:
	case <-l.quit:
	}
}

// Accept waits for the next connection whose handshake finished. A failed
// handshake is returned as an error and does not stop the Listener.
//
// Part of the net.Listener interface.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case result := <-l.handshakeConns:
		if result.err != nil {
			return nil, result.err
		}
		return result.conn, nil
	case <-l.quit:
		return nil, net.ErrClosed
	}
}

// Close stops accepting connections and wipes the listener's private key.
// Handshakes in flight are abandoned.
//
// Part of the net.Listener interface.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.quit)
		err = l.tcp.Close()

		l.keyMu.Lock()
		clear(l.localStatic)
		l.keyMu.Unlock()
	})
	return err
}

// Addr returns the listener's network address.
//
// Part of the net.Listener interface.
func (l *Listener) Addr() net.Addr {
	return l.tcp.Addr()
}
