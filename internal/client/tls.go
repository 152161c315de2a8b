package client

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// TLSConfig controls transport security.
type TLSConfig struct {
	MinVersion uint16
	MaxVersion uint16
	// Pins maps a hostname to the base64 SHA-256 digests of acceptable
	// SubjectPublicKeyInfo blocks. Hosts missing from the map use default
	// trust only.
	Pins map[string][]string
}

// DefaultTLSConfig allows TLS 1.2 and 1.3 without pinning.
func DefaultTLSConfig() TLSConfig {
	return TLSConfig{MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS13}
}

// NewTransport builds the HTTP transport used by Client. Pin checks run inside
// the handshake, so no request bytes reach an untrusted host.
func NewTransport(cfg TLSConfig) *http.Transport {
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if cfg.MaxVersion == 0 {
		cfg.MaxVersion = tls.VersionTLS13
	}
	pins := normalizePins(cfg.Pins)

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:       cfg.MinVersion,
			MaxVersion:       cfg.MaxVersion,
			VerifyConnection: verifyPins(pins),
		},
	}
}

// SPKIHash returns the base64 SHA-256 digest of a DER-encoded public key, the
// form used in TLSConfig.Pins.
func SPKIHash(rawSubjectPublicKeyInfo []byte) string {
	sum := sha256.Sum256(rawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func normalizePins(pins map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(pins))
	for host, hashes := range pins {
		set := make(map[string]struct{}, len(hashes))
		for _, h := range hashes {
			set[strings.TrimPrefix(strings.TrimSpace(h), "sha256/")] = struct{}{}
		}
		out[strings.ToLower(host)] = set
	}
	return out
}

// verifyPins runs after default chain verification succeeded. For a pinned
// host one certificate of the verified chain must carry a pinned key.
func verifyPins(pins map[string]map[string]struct{}) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		allowed, pinned := pins[strings.ToLower(cs.ServerName)]
		if !pinned {
			return nil
		}
		for _, chain := range cs.VerifiedChains {
			for _, cert := range chain {
				if _, ok := allowed[SPKIHash(cert.RawSubjectPublicKeyInfo)]; ok {
					return nil
				}
			}
		}
		return fmt.Errorf("%w: host %s", ErrPinMismatch, cs.ServerName)
	}
}
