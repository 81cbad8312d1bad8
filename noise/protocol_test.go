package noise

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	names := []string{
		Bolt8ProtocolName,
		"Noise_N_secp256k1_ChaChaPoly_SHA256",
		"Noise_NNpsk0_secp256k1_AESGCM_BLAKE2b",
		"Noise_XXfallback_secp256k1_ChaChaPoly_BLAKE2s",
		"Noise_XXfallback+psk0_secp256k1_ChaChaPoly_SHA512",
		"Noise_KKpsk0+psk2_secp256k1_AESGCM_SHA256",
		"Noise_IKpsk1+psk2_secp256k1_ChaChaPoly_SHA256",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			p, err := Parse(name)
			require.NoError(t, err)
			require.Equal(t, name, p.Name())
			require.Equal(t, name, p.String())
		})
	}

	for name, pattern := range patterns {
		p, err := Parse("Noise_" + name + "_secp256k1_ChaChaPoly_SHA256")
		require.NoError(t, err, name)
		require.Same(t, pattern, p.Pattern())
	}
}

func TestParseInvalid(t *testing.T) {
	testCases := []struct {
		desc string
		name string
	}{
		{"empty", ""},
		{"too short", "Noise_NN_x_y_z"},
		{"too long", "Noise_NN_secp256k1_ChaChaPoly_SHA256" + strings.Repeat("A", 256)},
		{"wrong prefix", "Noize_XK_secp256k1_ChaChaPoly_SHA256"},
		{"missing part", "Noise_XK_secp256k1_ChaChaPoly"},
		{"extra part", "Noise_XK_secp256k1_ChaChaPoly_SHA256_x"},
		{"unknown pattern", "Noise_ZZ_secp256k1_ChaChaPoly_SHA256"},
		{"lowercase pattern", "Noise_xk_secp256k1_ChaChaPoly_SHA256"},
		{"unsupported curve", "Noise_XK_25519_ChaChaPoly_SHA256"},
		{"unknown cipher", "Noise_XK_secp256k1_Salsa20_SHA256"},
		{"unknown hash", "Noise_XK_secp256k1_ChaChaPoly_MD5"},
		{"unknown modifier", "Noise_XKpsk9_secp256k1_ChaChaPoly_SHA256"},
		{"descending modifiers", "Noise_XKpsk2+psk0_secp256k1_ChaChaPoly_SHA256"},
		{"repeated modifier", "Noise_XKpsk0+psk0_secp256k1_ChaChaPoly_SHA256"},
		{"fallback after psk", "Noise_XXpsk0+fallback_secp256k1_ChaChaPoly_SHA256"},
		{"trailing plus", "Noise_XKpsk0+_secp256k1_ChaChaPoly_SHA256"},
		{"psk past last message", "Noise_NNpsk3_secp256k1_ChaChaPoly_SHA256"},
		{"one-way fallback", "Noise_Xfallback_secp256k1_ChaChaPoly_SHA256"},
		{"fallback with initiator pre-message", "Noise_KNfallback_secp256k1_ChaChaPoly_SHA256"},
		{"fallback of a DH message", "Noise_NKfallback_secp256k1_ChaChaPoly_SHA256"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse(tc.name)
			require.ErrorIs(t, err, ErrInvalidProtocolName)
		})
	}
}

func TestBolt8Protocol(t *testing.T) {
	p := Bolt8()
	require.Equal(t, Bolt8ProtocolName, p.Name())
	require.Equal(t, []byte{0}, p.VersionPrefix())
	require.Same(t, PatternXK, p.Pattern())
	require.Zero(t, p.Modifiers())

	// WithVersionPrefix copies.
	q := p.WithVersionPrefix([]byte{1, 2})
	require.Equal(t, []byte{0}, p.VersionPrefix())
	require.Equal(t, []byte{1, 2}, q.VersionPrefix())
}

func TestModifiers(t *testing.T) {
	mods, err := parseModifiers("fallback+psk1+psk3")
	require.NoError(t, err)
	require.Equal(t, ModifierFallback|ModifierPsk1|ModifierPsk3, mods)
	require.Equal(t, "fallback+psk1+psk3", mods.String())
	require.Equal(t, 2, mods.PskCount())

	script := mustExpand(PatternXX, ModifierFallback|ModifierPsk0)
	require.Equal(t, []Token{TokenE}, script.alicePre)
	require.Equal(t, []Token{TokenPSK, TokenE, TokenEE, TokenS, TokenES}, script.messages[0])
	require.Equal(t, Bob, script.sender(0))
	require.Equal(t, Alice, script.sender(1))

	script = mustExpand(PatternNN, ModifierPsk2)
	require.Equal(t, []Token{TokenE, TokenEE, TokenPSK}, script.messages[1])
	require.Equal(t, []Token{TokenE}, PatternNN.Messages()[0].Tokens(), "base pattern untouched")
}

func TestPatternStaticRequirements(t *testing.T) {
	testCases := []struct {
		pattern               *HandshakePattern
		initLocal, initRemote bool
		respLocal, respRemote bool
	}{
		{PatternN, false, true, true, false},
		{PatternK, true, true, true, true},
		{PatternX, true, true, true, false},
		{PatternNN, false, false, false, false},
		{PatternNK, false, true, true, false},
		{PatternNX, false, false, true, false},
		{PatternXN, true, false, false, false},
		{PatternXK, true, true, true, false},
		{PatternXX, true, false, true, false},
		{PatternKN, true, false, false, true},
		{PatternKK, true, true, true, true},
		{PatternKX, true, false, true, true},
		{PatternIN, true, false, false, false},
		{PatternIK, true, true, true, false},
		{PatternIX, true, false, true, false},
	}
	for _, tc := range testCases {
		t.Run(tc.pattern.Name(), func(t *testing.T) {
			require.Equal(t, tc.initLocal, tc.pattern.LocalStaticRequired(true))
			require.Equal(t, tc.initRemote, tc.pattern.RemoteStaticRequired(true))
			require.Equal(t, tc.respLocal, tc.pattern.LocalStaticRequired(false))
			require.Equal(t, tc.respRemote, tc.pattern.RemoteStaticRequired(false))
		})
	}
}
