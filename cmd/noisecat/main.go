// Command noisecat pipes stdin and stdout over a BOLT8 encrypted TCP
// connection, in the spirit of netcat.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/malcolmseyd/lnnoise/brontide"
	"github.com/malcolmseyd/lnnoise/noise"
	"github.com/ogier/pflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

func main() {
	cfg, err := newConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := newLogger(cfg.verbose)

	if err := run(cfg, log, os.Stdin, os.Stdout); err != nil {
		log.WithError(err).Error("noisecat failed")
		os.Exit(1)
	}
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.TraceLevel)
	}
	brontide.UseLogger(logger)
	noise.UseLogger(logger)
	return logger
}

func run(cfg *Config, log logrus.FieldLogger, stdin io.Reader, stdout io.Writer) error {
	if cfg.genKey {
		key, err := noise.GenerateKeyPair(noise.Secp256k1, rand.Reader)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "private:", hex.EncodeToString(key.PrivateKey()))
		fmt.Fprintln(stdout, "public: ", hex.EncodeToString(key.PublicKey()))
		return nil
	}

	key, err := localKey(cfg.key)
	if err != nil {
		return err
	}
	defer key.Wipe()

	opts := []brontide.Option{brontide.HandshakeTimeout(cfg.timeout)}
	if cfg.metrics != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, brontide.WithMetrics(brontide.NewMetrics(reg)))
		go serveMetrics(cfg.metrics, reg, log)
	}

	var conn *brontide.Conn
	if cfg.listen != "" {
		conn, err = acceptOne(cfg, key, opts, log)
	} else {
		conn, err = dial(cfg, key, opts)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	log.WithFields(logrus.Fields{
		"peer": conn.RemoteAddr().String(),
	}).Info("Connected")

	return pipe(conn, stdin, stdout, log)
}

// localKey loads the configured private key or makes a throwaway one.
func localKey(priv []byte) (*noise.KeyPair, error) {
	if priv != nil {
		return noise.KeyPairFromPrivate(noise.Secp256k1, priv)
	}
	return noise.GenerateKeyPair(noise.Secp256k1, rand.Reader)
}

func acceptOne(cfg *Config, key *noise.KeyPair, opts []brontide.Option,
	log logrus.FieldLogger) (*brontide.Conn, error) {

	l, err := brontide.Listen(key.PrivateKey(), cfg.listen, opts...)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	log.WithFields(logrus.Fields{
		"addr":   l.Addr().String(),
		"pubkey": hex.EncodeToString(key.PublicKey()),
	}).Info("Listening")

	for {
		conn, err := l.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}
		if err != nil {
			log.WithError(err).Warn("Rejected connection")
			continue
		}
		return conn.(*brontide.Conn), nil
	}
}

func dial(cfg *Config, key *noise.KeyPair, opts []brontide.Option) (*brontide.Conn, error) {
	direct := &net.Dialer{Timeout: cfg.timeout}
	dialer := direct.Dial

	if cfg.proxy != "" {
		socks, err := proxy.SOCKS5("tcp", cfg.proxy, nil, direct)
		if err != nil {
			return nil, err
		}
		dialer = socks.Dial
	}

	return brontide.Dial(key.PrivateKey(), cfg.remoteKey, cfg.remoteAddr, dialer, opts...)
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server stopped")
	}
}

// pipe copies stdin to conn in the background and conn to stdout until the
// peer closes the connection. The end of stdin does not end the session.
func pipe(conn net.Conn, stdin io.Reader, stdout io.Writer, log logrus.FieldLogger) error {
	go func() {
		if _, err := io.Copy(conn, stdin); err != nil {
			log.WithError(err).Debug("Stopped sending")
		}
	}()

	_, err := io.Copy(stdout, conn)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
