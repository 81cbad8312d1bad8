package noise

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

var bolt8Prologue = []byte("lightning")

const (
	vecResponderStaticPub = "028d7500dd4c12685d1f568b4c2b5048e8534b873319f3a8daa612b469132ec7f7"
	vecInitiatorStaticPub = "034f355bdcb7cc0af728ef3cceb9615d90684bb5b2ca5f859ab0f0b704075871aa"
	vecInitiatorEphPub    = "036360e856310ce5d294e8be33fc807077dc56ac80d95d9cd4ddbd21325eff73f7"
	vecResponderEphPub    = "02466d7fcae563e5cb09a0d1870bb580344804617879a14949cf22285f1bae3f27"

	vecActOne   = "00036360e856310ce5d294e8be33fc807077dc56ac80d95d9cd4ddbd21325eff73f70df6086551151f58b8afe6c195782c6a"
	vecActTwo   = "0002466d7fcae563e5cb09a0d1870bb580344804617879a14949cf22285f1bae3f276e2470b93aac583c9ef6eafca3f730ae"
	vecActThree = "00b9e3a702e93e3a9948c2ed6e5fd7590a6e1c3a0344cfc9d5b57357049aa22355361aa02e55a8fc28fef5bd6d71ad0c38228dc68b1c466263b47fdf31e560e139ba"

	vecHashActOne   = "9d1ffbb639e7e20021d9259491dc7b160aab270fb1339ef135053f6f2cebe9ce"
	vecHashActTwo   = "90578e247e98674e661013da3c5c1ca6a8c8f48c90b485c0dfa1494e23d56d72"
	vecHashActThree = "3e385d26eb49e88ddd66f70f7b24e597867feecf320bb2245b83adb5a2399ce3"

	vecChainingKey = "919219dbb2920afa8db80f9a51787a840bcf111ed8d588caf9ab4be716e42b01"
	vecSendKey     = "969ab31b4d288cedf6218839b27a3e2140827047f2c0f01bf5c04435d43511a9"
	vecRecvKey     = "bb9020b8965f4df047e07f955f3c4b88418984aadc5cdb35096b9ea8fa5c3442"
)

func repeatByte(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func fixedEphemeral(priv []byte) HandshakeOption {
	return EphemeralGenerator(func() (*KeyPair, error) {
		return KeyPairFromPrivate(Secp256k1, priv)
	})
}

func bolt8Pair(t *testing.T) (initiator, responder *HandshakeState) {
	t.Helper()

	initiator, err := Bolt8().Create(Config{
		Initiator:    true,
		Prologue:     bolt8Prologue,
		LocalStatic:  repeatByte(0x11),
		RemoteStatic: mustHex(t, vecResponderStaticPub),
	}, fixedEphemeral(repeatByte(0x12)))
	require.NoError(t, err)

	responder, err = Bolt8().Create(Config{
		Prologue:    bolt8Prologue,
		LocalStatic: repeatByte(0x21),
	}, fixedEphemeral(repeatByte(0x22)))
	require.NoError(t, err)

	return initiator, responder
}

func TestSecp256k1Vectors(t *testing.T) {
	testCases := []struct {
		desc string
		priv []byte
		pub  string
	}{
		{"initiator static", repeatByte(0x11), vecInitiatorStaticPub},
		{"initiator ephemeral", repeatByte(0x12), vecInitiatorEphPub},
		{"responder static", repeatByte(0x21), vecResponderStaticPub},
		{"responder ephemeral", repeatByte(0x22), vecResponderEphPub},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			kp, err := KeyPairFromPrivate(Secp256k1, tc.priv)
			require.NoError(t, err)
			require.Equal(t, tc.pub, hex.EncodeToString(kp.PublicKey()))
		})
	}

	// Act one ss: ECDH(e.priv, rs.pub).
	ss, err := Secp256k1.DH(repeatByte(0x12), mustHex(t, vecResponderStaticPub))
	require.NoError(t, err)
	require.Equal(t,
		"1e2fb3c8fe8fb9f262f649f64d26ecf0f2c0a805a767cf02dc2d77a6ef1fdcc3",
		hex.EncodeToString(ss))
}

func TestSecp256k1Errors(t *testing.T) {
	pub := mustHex(t, vecResponderStaticPub)

	_, err := Secp256k1.DH(make([]byte, 32), pub)
	require.Error(t, err, "zero scalar")

	_, err = Secp256k1.DH(bytes.Repeat([]byte{0xff}, 32), pub)
	require.Error(t, err, "scalar above the group order")

	_, err = Secp256k1.DH(repeatByte(0x11), pub[:32])
	require.Error(t, err, "short public key")

	bad := append([]byte{0x05}, pub[1:]...)
	_, err = Secp256k1.DH(repeatByte(0x11), bad)
	require.Error(t, err, "bad point prefix")

	_, err = KeyPairFromPrivate(Secp256k1, make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidHandshakeConfiguration)
}

func TestBolt8Handshake(t *testing.T) {
	initiator, responder := bolt8Pair(t)

	actOne := make([]byte, 50)
	n, hash, transport, err := initiator.WriteMessage(nil, actOne)
	require.NoError(t, err)
	require.Nil(t, transport)
	require.Equal(t, 50, n)
	require.Equal(t, vecActOne, hex.EncodeToString(actOne[:n]))
	require.Equal(t, vecHashActOne, hex.EncodeToString(hash))

	n, hash, transport, err = responder.ReadMessage(actOne, nil)
	require.NoError(t, err)
	require.Nil(t, transport)
	require.Zero(t, n)
	require.Equal(t, vecHashActOne, hex.EncodeToString(hash))

	actTwo := make([]byte, 50)
	n, hash, _, err = responder.WriteMessage(nil, actTwo)
	require.NoError(t, err)
	require.Equal(t, vecActTwo, hex.EncodeToString(actTwo[:n]))
	require.Equal(t, vecHashActTwo, hex.EncodeToString(hash))

	_, hash, _, err = initiator.ReadMessage(actTwo, nil)
	require.NoError(t, err)
	require.Equal(t, vecHashActTwo, hex.EncodeToString(hash))

	actThree := make([]byte, 66)
	n, initHash, initTransport, err := initiator.WriteMessage(nil, actThree)
	require.NoError(t, err)
	require.NotNil(t, initTransport)
	require.Equal(t, vecActThree, hex.EncodeToString(actThree[:n]))
	require.Equal(t, vecHashActThree, hex.EncodeToString(initHash))

	_, respHash, respTransport, err := responder.ReadMessage(actThree, nil)
	require.NoError(t, err)
	require.NotNil(t, respTransport)
	require.Equal(t, initHash, respHash)
	require.Equal(t, initHash, initiator.HandshakeHash())

	require.Equal(t, vecInitiatorStaticPub, hex.EncodeToString(responder.RemoteStaticPublicKey()))

	require.True(t, initTransport.IsInitiator())
	require.False(t, respTransport.IsInitiator())
	require.Equal(t, vecSendKey, hex.EncodeToString(initTransport.c1.key[:]))
	require.Equal(t, vecRecvKey, hex.EncodeToString(initTransport.c2.key[:]))
	require.Equal(t, vecChainingKey, hex.EncodeToString(initTransport.c1.salt))
	require.Equal(t, vecChainingKey, hex.EncodeToString(initTransport.c2.salt))
	require.Equal(t, initTransport.c1.key, respTransport.c1.key)
	require.Equal(t, initTransport.c2.key, respTransport.c2.key)

	_, _, _, err = initiator.WriteMessage(nil, actThree)
	require.ErrorIs(t, err, ErrHandshakeCompleted)
	_, _, _, err = responder.ReadMessage(actThree, nil)
	require.ErrorIs(t, err, ErrHandshakeCompleted)
}

func TestBolt8InitialHash(t *testing.T) {
	initiator, _ := bolt8Pair(t)

	// h = SHA256(SHA256(name) || "lightning" || rs.pub)
	require.Equal(t,
		"8401b3fdcaaa710b5405400536a3d5fd7792fe8e7fe29cd8b687216fe323ecbd",
		hex.EncodeToString(initiator.HandshakeHash()))
}

func TestBolt8BadActs(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func([]byte)
		err    error
	}{
		{
			desc:   "bad version",
			mutate: func(b []byte) { b[0] = 1 },
			err:    ErrUnsupportedVersion,
		},
		{
			desc:   "bad key serialization",
			mutate: func(b []byte) { b[1] = 4 },
			err:    ErrDecryptionFailure,
		},
		{
			desc:   "bad MAC",
			mutate: func(b []byte) { b[len(b)-1] ^= 1 },
			err:    ErrDecryptionFailure,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			initiator, responder := bolt8Pair(t)

			actOne := make([]byte, 50)
			_, _, _, err := initiator.WriteMessage(nil, actOne)
			require.NoError(t, err)

			tc.mutate(actOne)
			_, _, _, err = responder.ReadMessage(actOne, nil)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// bolt8Acts runs the vector handshake up to the given act (0, 1 or 2) and
// returns the act bytes together with the side that has to read them.
func bolt8Acts(t *testing.T, act int) ([]byte, *HandshakeState) {
	t.Helper()
	initiator, responder := bolt8Pair(t)
	sizes := []int{50, 50, 66}

	writer, reader := initiator, responder
	for i := 0; ; i++ {
		msg := make([]byte, sizes[i])
		_, _, _, err := writer.WriteMessage(nil, msg)
		require.NoError(t, err)
		if i == act {
			return msg, reader
		}
		_, _, _, err = reader.ReadMessage(msg, nil)
		require.NoError(t, err)
		writer, reader = reader, writer
	}
}

func TestBolt8EveryBitFlipFails(t *testing.T) {
	for act := 0; act < 3; act++ {
		msg, _ := bolt8Acts(t, act)

		// The version byte has its own error.
		for i := 1; i < len(msg); i++ {
			for bit := 0; bit < 8; bit++ {
				_, reader := bolt8Acts(t, act)
				tampered := append([]byte(nil), msg...)
				tampered[i] ^= 1 << bit

				_, _, _, err := reader.ReadMessage(tampered, nil)
				require.ErrorIs(t, err, ErrDecryptionFailure,
					"act %d byte %d bit %d", act+1, i, bit)
			}
		}
	}
}

func TestBolt8ReadErrorsBeforeState(t *testing.T) {
	initiator, responder := bolt8Pair(t)

	actOne := make([]byte, 50)
	_, _, _, err := initiator.WriteMessage(nil, actOne)
	require.NoError(t, err)

	_, _, _, err = responder.ReadMessage(actOne[:49], nil)
	require.ErrorIs(t, err, ErrMessageTooSmall)

	_, _, _, err = responder.ReadMessage(append(actOne, 1, 2, 3), make([]byte, 2))
	require.ErrorIs(t, err, ErrBufferTooSmall)

	bad := append([]byte(nil), actOne...)
	bad[0] = 2
	_, _, _, err = responder.ReadMessage(bad, nil)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	// None of the above touched the state.
	_, _, _, err = responder.ReadMessage(actOne, nil)
	require.NoError(t, err)
}
