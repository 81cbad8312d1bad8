package noise

import (
	"fmt"
	"strings"
)

// PatternModifiers is a set of pattern modifiers. The bit order is the order
// the modifiers must appear in a protocol name.
type PatternModifiers uint8

const (
	ModifierFallback PatternModifiers = 1 << iota
	ModifierPsk0
	ModifierPsk1
	ModifierPsk2
	ModifierPsk3
)

var modifierNames = []struct {
	modifier PatternModifiers
	name     string
}{
	{ModifierFallback, "fallback"},
	{ModifierPsk0, "psk0"},
	{ModifierPsk1, "psk1"},
	{ModifierPsk2, "psk2"},
	{ModifierPsk3, "psk3"},
}

// String joins the modifier names with "+".
func (m PatternModifiers) String() string {
	var names []string
	for _, mn := range modifierNames {
		if m&mn.modifier != 0 {
			names = append(names, mn.name)
		}
	}
	return strings.Join(names, "+")
}

// PskCount returns the number of psk modifiers in the set.
func (m PatternModifiers) PskCount() int {
	count := 0
	for _, mod := range []PatternModifiers{ModifierPsk0, ModifierPsk1, ModifierPsk2, ModifierPsk3} {
		if m&mod != 0 {
			count++
		}
	}
	return count
}

// parseModifiers reads a "+" separated modifier list. Modifiers must be
// distinct and in ascending order.
func parseModifiers(s string) (PatternModifiers, error) {
	if s == "" {
		return 0, nil
	}

	var mods, last PatternModifiers
	for _, name := range strings.Split(s, "+") {
		var mod PatternModifiers
		for _, mn := range modifierNames {
			if mn.name == name {
				mod = mn.modifier
				break
			}
		}
		if mod == 0 {
			return 0, fmt.Errorf("%w: unknown modifier %q", ErrInvalidProtocolName, name)
		}
		if mod <= last {
			return 0, fmt.Errorf("%w: modifier %q out of order", ErrInvalidProtocolName, name)
		}
		mods |= mod
		last = mod
	}
	return mods, nil
}

// handshakeScript is a pattern with its modifiers applied. It is built once
// per protocol and never modified.
type handshakeScript struct {
	alicePre   []Token
	bobPre     []Token
	messages   [][]Token
	aliceFirst bool
	oneWayBase bool
	psk        bool
	pskCount   int
}

// expand applies mods to p. The fallback modifier moves the first message
// into Alice's pre-message and hands the first turn to Bob. A pskN modifier
// places a psk token at the start of the first message for N = 0, or at the
// end of message N-1 otherwise.
func expand(p *HandshakePattern, mods PatternModifiers) (*handshakeScript, error) {
	script := &handshakeScript{
		alicePre:   p.initiator.Tokens(),
		bobPre:     p.responder.Tokens(),
		aliceFirst: true,
		oneWayBase: p.OneWay(),
		psk:        mods.PskCount() > 0,
		pskCount:   mods.PskCount(),
	}
	for _, m := range p.messages {
		script.messages = append(script.messages, m.Tokens())
	}

	if mods&ModifierFallback != 0 {
		if len(script.messages) < 2 {
			return nil, fmt.Errorf("%w: %s can't be used with fallback",
				ErrInvalidProtocolName, p.name)
		}
		if len(script.alicePre) != 0 {
			return nil, fmt.Errorf("%w: %s already has an initiator pre-message",
				ErrInvalidProtocolName, p.name)
		}
		for _, t := range script.messages[0] {
			if t != TokenE && t != TokenS {
				return nil, fmt.Errorf("%w: first message of %s is not a valid pre-message",
					ErrInvalidProtocolName, p.name)
			}
		}
		script.alicePre = script.messages[0]
		script.messages = script.messages[1:]
		script.aliceFirst = false
	}

	for i, mod := range []PatternModifiers{ModifierPsk0, ModifierPsk1, ModifierPsk2, ModifierPsk3} {
		if mods&mod == 0 {
			continue
		}
		if i == 0 {
			script.messages[0] = append([]Token{TokenPSK}, script.messages[0]...)
			continue
		}
		if i-1 >= len(script.messages) {
			return nil, fmt.Errorf("%w: psk%d needs at least %d messages",
				ErrInvalidProtocolName, i, i)
		}
		script.messages[i-1] = append(script.messages[i-1], TokenPSK)
	}

	return script, nil
}

func mustExpand(p *HandshakePattern, mods PatternModifiers) *handshakeScript {
	script, err := expand(p, mods)
	if err != nil {
		panic(err)
	}
	return script
}

// sender returns who writes message i.
func (h *handshakeScript) sender(i int) Role {
	if (i%2 == 0) == h.aliceFirst {
		return Alice
	}
	return Bob
}

// oneWay reports whether the underlying pattern is one-way. A fallback
// pattern left with a single message still has a reply direction.
func (h *handshakeScript) oneWay() bool {
	return h.oneWayBase
}

func (h *handshakeScript) preMessage(r Role) []Token {
	if r == Alice {
		return h.alicePre
	}
	return h.bobPre
}

func (h *handshakeScript) localStaticRequired(r Role) bool {
	if hasToken(h.preMessage(r), TokenS) {
		return true
	}
	for i, tokens := range h.messages {
		if h.sender(i) == r && hasToken(tokens, TokenS) {
			return true
		}
	}
	return false
}

func (h *handshakeScript) remoteStaticRequired(r Role) bool {
	return hasToken(h.preMessage(r.peer()), TokenS)
}

func hasToken(tokens []Token, t Token) bool {
	for _, tok := range tokens {
		if tok == t {
			return true
		}
	}
	return false
}
