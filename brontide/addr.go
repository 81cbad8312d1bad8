package brontide

import (
	"encoding/hex"
	"net"
)

// Addr is the address of a BOLT8 peer: its static public key plus the
// network address it is reachable at.
type Addr struct {
	PubKey  []byte
	Address net.Addr
}

var _ net.Addr = (*Addr)(nil)

// Network returns the network of the underlying address.
func (a *Addr) Network() string {
	if a.Address == nil {
		return "tcp"
	}
	return a.Address.Network()
}

// String returns the address in the form <hex pubkey>@<host:port>.
func (a *Addr) String() string {
	pub := hex.EncodeToString(a.PubKey)
	if a.Address == nil {
		return pub
	}
	return pub + "@" + a.Address.String()
}
