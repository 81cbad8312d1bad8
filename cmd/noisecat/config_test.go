package main

import (
	"bytes"
	"encoding/hex"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPubKey = "028d7500dd4c12685d1f568b4c2b5048e8534b873319f3a8daa612b469132ec7f7"

func TestNewConfigDial(t *testing.T) {
	key := "1111111111111111111111111111111111111111111111111111111111111111"
	cfg, err := newConfig([]string{
		"-k", key, "--proxy", "127.0.0.1:9050", "-v", "--timeout", "3s",
		testPubKey + "@example.com:9735",
	}, io.Discard)
	require.NoError(t, err)

	require.Equal(t, key, hex.EncodeToString(cfg.key))
	require.Equal(t, testPubKey, hex.EncodeToString(cfg.remoteKey))
	require.Equal(t, "example.com:9735", cfg.remoteAddr)
	require.Equal(t, "127.0.0.1:9050", cfg.proxy)
	require.True(t, cfg.verbose)
	require.Equal(t, 3*time.Second, cfg.timeout)
	require.Empty(t, cfg.listen)
}

func TestNewConfigListen(t *testing.T) {
	cfg, err := newConfig([]string{"--listen", ":9735", "--metrics", ":9090"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, ":9735", cfg.listen)
	require.Equal(t, ":9090", cfg.metrics)
	require.Nil(t, cfg.key)
	require.Equal(t, defaultTimeout, cfg.timeout)
}

func TestNewConfigGenKey(t *testing.T) {
	cfg, err := newConfig([]string{"--genkey"}, io.Discard)
	require.NoError(t, err)
	require.True(t, cfg.genKey)
}

func TestNewConfigInvalid(t *testing.T) {
	testCases := []struct {
		desc string
		args []string
	}{
		{"no peer", nil},
		{"two peers", []string{testPubKey + "@a:1", testPubKey + "@b:2"}},
		{"listen with peer", []string{"-l", ":1", testPubKey + "@a:1"}},
		{"listen with proxy", []string{"-l", ":1", "--proxy", "127.0.0.1:9050"}},
		{"short key", []string{"-k", "abcd", testPubKey + "@a:1"}},
		{"key not hex", []string{"-k", "zz", testPubKey + "@a:1"}},
		{"missing at", []string{testPubKey}},
		{"missing port", []string{testPubKey + "@example.com"}},
		{"port too big", []string{testPubKey + "@example.com:70000"}},
		{"pubkey not hex", []string{"xyz@example.com:1"}},
		{"pubkey out of range", []string{"02" + strings.Repeat("ff", 32) + "@a:1"}},
		{"uncompressed pubkey", []string{"04" + hex.EncodeToString(make([]byte, 64)) + "@a:1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := newConfig(tc.args, io.Discard)
			require.ErrorIs(t, err, errUsage)
		})
	}
}

func TestNewConfigUnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	_, err := newConfig([]string{"--bogus"}, &stderr)
	require.Error(t, err)
	require.Contains(t, stderr.String(), "Usage: noisecat")
}
