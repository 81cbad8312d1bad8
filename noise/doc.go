// Package noise implements the Noise Protocol Framework handshake and
// transport as used by the Lightning Network (BOLT8).
//
// A Protocol is parsed from a name such as
// "Noise_XK_secp256k1_ChaChaPoly_SHA256" and creates HandshakeStates. Each
// side calls WriteMessage and ReadMessage in turn until the last message
// returns a Transport, which then encrypts and decrypts application data.
//
//	initiator, _ := noise.Bolt8().Create(noise.Config{
//		Initiator:    true,
//		Prologue:     []byte("lightning"),
//		LocalStatic:  localPriv,
//		RemoteStatic: remotePub,
//	})
//
// Cipher and hash functions are those of github.com/flynn/noise. The
// secp256k1 DH function is built on github.com/btcsuite/btcd/btcec/v2.
package noise
