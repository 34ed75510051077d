// Package negotiate implements protocol selection for an accepted
// connection, per spec.md §4.5: TLS handshake + ALPN, H2C cleartext
// upgrade, and compression installation.
package negotiate

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"httpcore/internal/config"
)

// Protocol identifies which exchange pipeline should own a connection
// after negotiation.
type Protocol int

const (
	ProtoHTTP1 Protocol = iota
	ProtoHTTP2
)

func (p Protocol) String() string {
	if p == ProtoHTTP2 {
		return "h2"
	}
	return "http/1.1"
}

// BuildTLSConfig constructs the *tls.Config used to accept connections,
// advertising h2 in ALPN only when both TLS and HTTP/2 are enabled, per
// spec.md §6.
func BuildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("negotiate: load certificate: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if cfg.HTTP2.Enabled {
		tlsCfg.NextProtos = []string{"h2", "http/1.1"}
	} else {
		tlsCfg.NextProtos = []string{"http/1.1"}
	}
	if cfg.TLS.ClientAuth {
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		if cfg.TLS.ClientCA != "" {
			pool, err := loadCertPool(cfg.TLS.ClientCA)
			if err != nil {
				return nil, err
			}
			tlsCfg.ClientCAs = pool
		}
	}
	return tlsCfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("negotiate: read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("negotiate: no valid certificates in %s", path)
	}
	return pool, nil
}

// SelectProtocol inspects the negotiated ALPN value from a completed TLS
// handshake (tls.ConnectionState.NegotiatedProtocol) and returns the
// Protocol to dispatch to.
func SelectProtocol(negotiatedALPN string) Protocol {
	if negotiatedALPN == "h2" {
		return ProtoHTTP2
	}
	return ProtoHTTP1
}
