package noise

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/flynn/noise"
)

// Bolt8ProtocolName is the protocol used by the Lightning Network transport.
const Bolt8ProtocolName = "Noise_XK_secp256k1_ChaChaPoly_SHA256"

// Protocol is a concrete Noise protocol: a handshake pattern with modifiers
// plus the DH, cipher and hash functions it runs on. A Protocol is immutable
// and may be shared between goroutines.
type Protocol struct {
	pattern       *HandshakePattern
	modifiers     PatternModifiers
	dh            DH
	cipher        noise.CipherFunc
	hash          noise.HashFunc
	versionPrefix []byte

	script *handshakeScript
	name   string
}

// NewProtocol builds a protocol from its parts.
func NewProtocol(pattern *HandshakePattern, modifiers PatternModifiers, dh DH,
	cipher noise.CipherFunc, hash noise.HashFunc) (*Protocol, error) {

	script, err := expand(pattern, modifiers)
	if err != nil {
		return nil, err
	}

	p := &Protocol{
		pattern:   pattern,
		modifiers: modifiers,
		dh:        dh,
		cipher:    cipher,
		hash:      hash,
		script:    script,
	}
	p.name = fmt.Sprintf("Noise_%s%s_%s_%s_%s", pattern.name, modifiers,
		dh.DHName(), cipher.CipherName(), hash.HashName())
	if len(p.name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name longer than %d bytes",
			ErrInvalidProtocolName, MaxNameLength)
	}
	return p, nil
}

// Parse reads a protocol name of the form
// Noise_<Pattern><Modifiers>_<DH>_<Cipher>_<Hash>.
func Parse(name string) (*Protocol, error) {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: length %d out of range",
			ErrInvalidProtocolName, len(name))
	}

	parts := strings.Split(name, "_")
	if len(parts) != 5 || parts[0] != "Noise" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocolName, name)
	}

	patternPart := parts[1]
	if patternPart == "" {
		return nil, fmt.Errorf("%w: missing pattern", ErrInvalidProtocolName)
	}
	patternLen := 1
	if len(patternPart) > 1 && unicode.IsUpper(rune(patternPart[1])) {
		patternLen = 2
	}
	pattern, ok := patterns[patternPart[:patternLen]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pattern %q",
			ErrInvalidProtocolName, patternPart[:patternLen])
	}
	modifiers, err := parseModifiers(patternPart[patternLen:])
	if err != nil {
		return nil, err
	}

	dh, ok := dhFuncs[parts[2]]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported DH function %q",
			ErrInvalidProtocolName, parts[2])
	}
	cipher, ok := cipherFuncs[parts[3]]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported cipher %q",
			ErrInvalidProtocolName, parts[3])
	}
	hash, ok := hashFuncs[parts[4]]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported hash %q",
			ErrInvalidProtocolName, parts[4])
	}

	p, err := NewProtocol(pattern, modifiers, dh, cipher, hash)
	if err != nil {
		return nil, err
	}
	if p.name != name {
		return nil, fmt.Errorf("%w: %q is not canonical, expected %q",
			ErrInvalidProtocolName, name, p.name)
	}
	return p, nil
}

// Bolt8 returns the BOLT8 protocol with its 0x00 version prefix.
func Bolt8() *Protocol {
	p, err := Parse(Bolt8ProtocolName)
	if err != nil {
		panic(err)
	}
	return p.WithVersionPrefix([]byte{0})
}

// Name returns the protocol name.
func (p *Protocol) Name() string {
	return p.name
}

// Pattern returns the base handshake pattern.
func (p *Protocol) Pattern() *HandshakePattern {
	return p.pattern
}

// Modifiers returns the pattern modifiers.
func (p *Protocol) Modifiers() PatternModifiers {
	return p.modifiers
}

// DH returns the Diffie-Hellman function.
func (p *Protocol) DH() DH {
	return p.dh
}

// WithVersionPrefix returns a copy of p that writes prefix in front of every
// handshake message and requires it on every message read.
func (p *Protocol) WithVersionPrefix(prefix []byte) *Protocol {
	cp := *p
	cp.versionPrefix = cloneBytes(prefix)
	return &cp
}

// VersionPrefix returns a copy of the version prefix.
func (p *Protocol) VersionPrefix() []byte {
	return cloneBytes(p.versionPrefix)
}

// Create returns a new HandshakeState for cfg. Fallback protocols are
// rejected, they are only reachable through HandshakeState.Fallback.
func (p *Protocol) Create(cfg Config, opts ...HandshakeOption) (*HandshakeState, error) {
	if p.modifiers&ModifierFallback != 0 {
		return nil, fmt.Errorf("%w: %s can only be started with Fallback",
			ErrInvalidHandshakeConfiguration, p.name)
	}
	return newHandshakeState(p, &cfg, opts)
}

func (p *Protocol) String() string {
	return p.name
}
