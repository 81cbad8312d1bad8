package noise

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func bolt8Transports(t *testing.T) (initiator, responder *Transport) {
	t.Helper()
	i, r := bolt8Pair(t)
	return runHandshake(t, i, r)
}

func TestTransportRoundTrips(t *testing.T) {
	initiator, responder := bolt8Transports(t)

	buf := make([]byte, 128)
	plain := make([]byte, 128)
	for i := 0; i < 1500; i++ {
		msg := []byte(fmt.Sprintf("message %d", i))

		writer, reader := initiator, responder
		if i%3 == 2 {
			writer, reader = responder, initiator
		}

		n, err := writer.WriteMessage(msg, buf)
		require.NoError(t, err)
		require.Equal(t, len(msg)+tagSize, n)

		m, err := reader.ReadMessage(buf[:n], plain)
		require.NoError(t, err)
		require.Equal(t, msg, plain[:m])
	}

	require.EqualValues(t, 1000, initiator.NumInitiatorMessages())
	require.EqualValues(t, 500, initiator.NumResponderMessages())
	require.Equal(t, initiator.NumInitiatorMessages(), responder.NumInitiatorMessages())
}

func TestTransportTamperDoesNotPoison(t *testing.T) {
	initiator, responder := bolt8Transports(t)

	buf := make([]byte, 64)
	plain := make([]byte, 64)
	n, err := initiator.WriteMessage([]byte("hello"), buf)
	require.NoError(t, err)

	buf[0] ^= 1
	_, err = responder.ReadMessage(buf[:n], plain)
	require.ErrorIs(t, err, ErrDecryptionFailure)
	require.Zero(t, responder.NumInitiatorMessages())

	buf[0] ^= 1
	m, err := responder.ReadMessage(buf[:n], plain)
	require.NoError(t, err)
	require.Equal(t, "hello", string(plain[:m]))
}

func TestTransportSizes(t *testing.T) {
	initiator, responder := bolt8Transports(t)

	_, err := initiator.WriteMessage(make([]byte, MaxMessageLength-tagSize+1), make([]byte, MaxMessageLength+16))
	require.ErrorIs(t, err, ErrMessageTooLarge)

	// A destination shorter than payload plus tag is a too-large message.
	_, err = initiator.WriteMessage([]byte("hello"), make([]byte, 20))
	require.ErrorIs(t, err, ErrMessageTooLarge)
	require.ErrorIs(t, err, ErrBufferTooSmall)
	require.Zero(t, initiator.NumInitiatorMessages())

	buf := make([]byte, MaxMessageLength)
	n, err := initiator.WriteMessage(make([]byte, MaxMessageLength-tagSize), buf)
	require.NoError(t, err)
	require.Equal(t, MaxMessageLength, n)

	_, err = responder.ReadMessage(buf[:tagSize-1], nil)
	require.ErrorIs(t, err, ErrMessageTooSmall)
	_, err = responder.ReadMessage(make([]byte, MaxMessageLength+1), buf)
	require.ErrorIs(t, err, ErrMessageTooLarge)
	_, err = responder.ReadMessage(buf[:n], make([]byte, 10))
	require.ErrorIs(t, err, ErrBufferTooSmall)

	m, err := responder.ReadMessage(buf[:n], make([]byte, MaxMessageLength))
	require.NoError(t, err)
	require.Equal(t, MaxMessageLength-tagSize, m)
}

func TestTransportRekey(t *testing.T) {
	initiator, responder := bolt8Transports(t)
	buf := make([]byte, 64)
	plain := make([]byte, 64)

	send := func(w, r *Transport, msg string) error {
		n, err := w.WriteMessage([]byte(msg), buf)
		require.NoError(t, err)
		m, err := r.ReadMessage(buf[:n], plain)
		if err == nil {
			require.Equal(t, msg, string(plain[:m]))
		}
		return err
	}

	require.NoError(t, send(initiator, responder, "one"))

	initiator.RekeyInitiatorToResponder()
	require.EqualValues(t, 1, initiator.NumInitiatorMessages(), "rekey keeps the nonce")
	require.ErrorIs(t, send(initiator, responder, "stale"), ErrDecryptionFailure)

	// Nonce 1 was burnt by the failed exchange on the sender only.
	responder.RekeyInitiatorToResponder()
	responder.c1.SetNonce(initiator.NumInitiatorMessages())
	require.NoError(t, send(initiator, responder, "two"))

	require.NoError(t, responder.RekeyResponderToInitiator())
	require.NoError(t, initiator.RekeyResponderToInitiator())
	require.NoError(t, send(responder, initiator, "three"))

	initiator.KeyRecycleInitiatorToResponder()
	responder.KeyRecycleInitiatorToResponder()
	require.Zero(t, initiator.NumInitiatorMessages())
	require.NoError(t, send(initiator, responder, "four"))

	require.NoError(t, responder.KeyRecycleResponderToInitiator())
	require.NoError(t, initiator.KeyRecycleResponderToInitiator())
	require.NoError(t, send(responder, initiator, "five"))
}

func TestTransportClose(t *testing.T) {
	initiator, _ := bolt8Transports(t)
	require.NoError(t, initiator.Close())
	require.False(t, initiator.c1.HasKey())
	require.False(t, initiator.c2.HasKey())
	require.Equal(t, [keySize]byte{}, initiator.c1.key)

	_, err := initiator.WriteMessage([]byte("late"), make([]byte, 64))
	require.ErrorIs(t, err, ErrTransportClosed)
	_, err = initiator.ReadMessage(make([]byte, 32), make([]byte, 64))
	require.ErrorIs(t, err, ErrTransportClosed)
}
