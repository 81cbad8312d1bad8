package noise

import "strings"

// Token is a single step of a message pattern.
type Token uint8

const (
	TokenE Token = iota + 1
	TokenS
	TokenEE
	TokenES
	TokenSE
	TokenSS
	TokenPSK
)

var tokenNames = map[Token]string{
	TokenE:   "e",
	TokenS:   "s",
	TokenEE:  "ee",
	TokenES:  "es",
	TokenSE:  "se",
	TokenSS:  "ss",
	TokenPSK: "psk",
}

func (t Token) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "unknown"
}

// PreMessagePattern is the set of public keys a party is known to hold before
// the handshake starts.
type PreMessagePattern uint8

const (
	PreMessageEmpty PreMessagePattern = iota
	PreMessageE
	PreMessageS
	PreMessageES
)

// Tokens returns the tokens of the pre-message in the order they are hashed.
func (p PreMessagePattern) Tokens() []Token {
	switch p {
	case PreMessageE:
		return []Token{TokenE}
	case PreMessageS:
		return []Token{TokenS}
	case PreMessageES:
		return []Token{TokenE, TokenS}
	}
	return nil
}

// MessagePattern is the token sequence of one handshake message.
type MessagePattern struct {
	tokens []Token
}

// NewMessagePattern returns a message pattern made of tokens.
func NewMessagePattern(tokens ...Token) MessagePattern {
	return MessagePattern{tokens: append([]Token(nil), tokens...)}
}

// Tokens returns a copy of the message tokens.
func (m MessagePattern) Tokens() []Token {
	return append([]Token(nil), m.tokens...)
}

func (m MessagePattern) String() string {
	names := make([]string, len(m.tokens))
	for i, t := range m.tokens {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

// HandshakePattern is an immutable description of a fundamental handshake:
// the pre-messages of both parties and the messages they exchange, starting
// with the initiator.
type HandshakePattern struct {
	name      string
	initiator PreMessagePattern
	responder PreMessagePattern
	messages  []MessagePattern
}

func newPattern(name string, initiator, responder PreMessagePattern, messages ...[]Token) *HandshakePattern {
	p := &HandshakePattern{name: name, initiator: initiator, responder: responder}
	for _, tokens := range messages {
		p.messages = append(p.messages, NewMessagePattern(tokens...))
	}
	return p
}

// Name returns the pattern name, such as "XK".
func (p *HandshakePattern) Name() string {
	return p.name
}

// InitiatorPreMessage returns the keys the responder knows in advance.
func (p *HandshakePattern) InitiatorPreMessage() PreMessagePattern {
	return p.initiator
}

// ResponderPreMessage returns the keys the initiator knows in advance.
func (p *HandshakePattern) ResponderPreMessage() PreMessagePattern {
	return p.responder
}

// Messages returns the message patterns in order.
func (p *HandshakePattern) Messages() []MessagePattern {
	return append([]MessagePattern(nil), p.messages...)
}

// OneWay reports whether the pattern carries a single message.
func (p *HandshakePattern) OneWay() bool {
	return len(p.messages) == 1
}

// LocalStaticRequired reports whether the given side needs its own static
// key pair.
func (p *HandshakePattern) LocalStaticRequired(initiator bool) bool {
	return mustExpand(p, 0).localStaticRequired(roleOf(initiator))
}

// RemoteStaticRequired reports whether the given side needs the peer's static
// public key in advance.
func (p *HandshakePattern) RemoteStaticRequired(initiator bool) bool {
	return mustExpand(p, 0).remoteStaticRequired(roleOf(initiator))
}

func roleOf(initiator bool) Role {
	if initiator {
		return Alice
	}
	return Bob
}

// The one-way patterns.
var (
	PatternN = newPattern("N", PreMessageEmpty, PreMessageS,
		[]Token{TokenE, TokenES})
	PatternK = newPattern("K", PreMessageS, PreMessageS,
		[]Token{TokenE, TokenES, TokenSS})
	PatternX = newPattern("X", PreMessageEmpty, PreMessageS,
		[]Token{TokenE, TokenES, TokenS, TokenSS})
)

// The interactive patterns.
var (
	PatternNN = newPattern("NN", PreMessageEmpty, PreMessageEmpty,
		[]Token{TokenE},
		[]Token{TokenE, TokenEE})
	PatternNK = newPattern("NK", PreMessageEmpty, PreMessageS,
		[]Token{TokenE, TokenES},
		[]Token{TokenE, TokenEE})
	PatternNX = newPattern("NX", PreMessageEmpty, PreMessageEmpty,
		[]Token{TokenE},
		[]Token{TokenE, TokenEE, TokenS, TokenES})
	PatternXN = newPattern("XN", PreMessageEmpty, PreMessageEmpty,
		[]Token{TokenE},
		[]Token{TokenE, TokenEE},
		[]Token{TokenS, TokenSE})
	PatternXK = newPattern("XK", PreMessageEmpty, PreMessageS,
		[]Token{TokenE, TokenES},
		[]Token{TokenE, TokenEE},
		[]Token{TokenS, TokenSE})
	PatternXX = newPattern("XX", PreMessageEmpty, PreMessageEmpty,
		[]Token{TokenE},
		[]Token{TokenE, TokenEE, TokenS, TokenES},
		[]Token{TokenS, TokenSE})
	PatternKN = newPattern("KN", PreMessageS, PreMessageEmpty,
		[]Token{TokenE},
		[]Token{TokenE, TokenEE, TokenSE})
	PatternKK = newPattern("KK", PreMessageS, PreMessageS,
		[]Token{TokenE, TokenES, TokenSS},
		[]Token{TokenE, TokenEE, TokenSE})
	PatternKX = newPattern("KX", PreMessageS, PreMessageEmpty,
		[]Token{TokenE},
		[]Token{TokenE, TokenEE, TokenSE, TokenS, TokenES})
	PatternIN = newPattern("IN", PreMessageEmpty, PreMessageEmpty,
		[]Token{TokenE, TokenS},
		[]Token{TokenE, TokenEE, TokenSE})
	PatternIK = newPattern("IK", PreMessageEmpty, PreMessageS,
		[]Token{TokenE, TokenES, TokenS, TokenSS},
		[]Token{TokenE, TokenEE, TokenSE})
	PatternIX = newPattern("IX", PreMessageEmpty, PreMessageEmpty,
		[]Token{TokenE, TokenS},
		[]Token{TokenE, TokenEE, TokenSE, TokenS, TokenES})
)

var patterns = map[string]*HandshakePattern{}

func init() {
	for _, p := range []*HandshakePattern{
		PatternN, PatternK, PatternX,
		PatternNN, PatternNK, PatternNX,
		PatternXN, PatternXK, PatternXX,
		PatternKN, PatternKK, PatternKX,
		PatternIN, PatternIK, PatternIX,
	} {
		patterns[p.name] = p
	}
}
