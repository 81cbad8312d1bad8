package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ogier/pflag"
)

const defaultTimeout = 10 * time.Second

var errUsage = errors.New("noisecat: invalid usage")

// Config stores values related to program configuration
type Config struct {
	listen  string
	key     []byte
	genKey  bool
	proxy   string
	metrics string
	verbose bool
	timeout time.Duration

	remoteKey  []byte
	remoteAddr string
}

func newConfig(args []string, stderr io.Writer) (*Config, error) {
	config := &Config{}

	flags := pflag.NewFlagSet("noisecat", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { printUsage(flags, stderr) }

	listen := flags.StringP("listen", "l", "", "accept one connection on this address instead of dialing")
	key := flags.StringP("key", "k", "", "hex encoded 32-byte private key (random if empty)")
	genKey := flags.Bool("genkey", false, "print a new private key and its public key, then exit")
	proxyAddr := flags.String("proxy", "", "dial through this SOCKS5 proxy (HOST:PORT)")
	metrics := flags.String("metrics", "", "serve Prometheus metrics on this address")
	verbose := flags.BoolP("verbose", "v", false, "log handshakes and key rotations")
	timeout := flags.Duration("timeout", defaultTimeout, "dial and handshake timeout")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	config.listen = *listen
	config.genKey = *genKey
	config.proxy = *proxyAddr
	config.metrics = *metrics
	config.verbose = *verbose
	config.timeout = *timeout

	if config.genKey {
		return config, nil
	}

	if *key != "" {
		priv, err := hex.DecodeString(*key)
		if err != nil || len(priv) != btcec.PrivKeyBytesLen {
			return nil, fmt.Errorf("%w: private key must be %d hex encoded bytes",
				errUsage, btcec.PrivKeyBytesLen)
		}
		config.key = priv
	}

	rest := flags.Args()
	switch {
	case config.listen != "" && len(rest) != 0:
		return nil, fmt.Errorf("%w: --listen takes no peer address", errUsage)
	case config.listen != "" && config.proxy != "":
		return nil, fmt.Errorf("%w: --proxy only applies when dialing", errUsage)
	case config.listen != "":
		return config, nil
	case len(rest) != 1:
		return nil, fmt.Errorf("%w: expected exactly one PUBKEY@HOST:PORT", errUsage)
	}

	remoteKey, remoteAddr, err := parsePeer(rest[0])
	if err != nil {
		return nil, err
	}
	config.remoteKey = remoteKey
	config.remoteAddr = remoteAddr

	return config, nil
}

// parsePeer splits PUBKEY@HOST:PORT and checks both halves.
func parsePeer(peer string) ([]byte, string, error) {
	keyHex, hostPort, ok := strings.Cut(peer, "@")
	if !ok {
		return nil, "", fmt.Errorf("%w: peer must look like PUBKEY@HOST:PORT", errUsage)
	}

	remoteKey, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, "", fmt.Errorf("%w: public key is not hex: %v", errUsage, err)
	}
	if _, err := btcec.ParsePubKey(remoteKey); err != nil ||
		len(remoteKey) != btcec.PubKeyBytesLenCompressed {

		return nil, "", fmt.Errorf("%w: public key must be a compressed secp256k1 point",
			errUsage)
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, "", fmt.Errorf("%w: please include a port like this: %s:PORT",
			errUsage, hostPort)
	}
	// ParseUint can be safely cast to uint16 because of the last argument
	if _, err := strconv.ParseUint(portStr, 10, 16); err != nil {
		return nil, "", fmt.Errorf("%w: bad port %q", errUsage, portStr)
	}

	return remoteKey, net.JoinHostPort(host, portStr), nil
}

func printUsage(flags *pflag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage: noisecat [OPTION]... PUBKEY@HOST:PORT")
	fmt.Fprintln(w, "       noisecat [OPTION]... --listen HOST:PORT")
	fmt.Fprintln(w, "Flags:")
	flags.PrintDefaults()
	fmt.Fprintln(w, "Example:")
	fmt.Fprintln(w, "    noisecat 028d7500dd4c12685d1f568b4c2b5048e8534b873319f3a8daa612b469132ec7f7@127.0.0.1:9735")
}
