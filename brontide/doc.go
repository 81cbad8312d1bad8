// Package brontide implements the Lightning Network BOLT8 transport on top
// of package noise: the three act Noise_XK handshake, length-prefixed
// encrypted messages and the key rotation every 1000 messages.
//
// Dial and Listener produce a Conn, which implements net.Conn. Machine is
// the underlying state machine for callers that manage the socket
// themselves.
package brontide
