package config

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Peer certificate verification modes
const (
	VerifyModeSkip   = "skip"
	VerifyModeVerify = "verify"
)

// Certificate rotation threshold: warn when less than 30 days remaining
const certRotationThreshold = 30 * 24 * time.Hour

// TLS configures the controller/satellite connection. CertDir holds
// node.crt, node.key and ca.crt.
type TLS struct {
	Enabled bool   `yaml:"enabled" env:"BURROW_TLS"`
	CertDir string `yaml:"cert-dir" env:"BURROW_TLS_CERT_DIR"`
	Verify  string `yaml:"verify" env:"BURROW_TLS_VERIFY"`
}

func (t TLS) validate() error {
	if !t.Enabled {
		return nil
	}
	if t.CertDir == "" {
		return fmt.Errorf("tls cert dir is required when tls is enabled")
	}
	switch t.Verify {
	case "", VerifyModeSkip, VerifyModeVerify:
		return nil
	}
	return fmt.Errorf("unknown tls verify mode: %s", t.Verify)
}

// LoadCertFromFile loads a TLS certificate from files
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	certPath := filepath.Join(certDir, "node.crt")
	keyPath := filepath.Join(certDir, "node.key")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	// Parse certificate to populate Leaf field
	if cert.Leaf == nil {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = x509Cert
	}

	return &cert, nil
}

// LoadCACertPool loads ca.crt from certDir into a pool
func LoadCACertPool(certDir string) (*x509.CertPool, error) {
	caPath := filepath.Join(certDir, "ca.crt")
	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	// Decode PEM
	block, _ := pem.Decode(caPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode CA certificate PEM")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	return pool, nil
}

// CertNeedsRotation reports whether a certificate expires within 30 days
func CertNeedsRotation(cert *x509.Certificate) bool {
	return time.Until(cert.NotAfter) < certRotationThreshold
}

func (t TLS) tlsConfig() (*tls.Config, error) {
	cert, err := LoadCertFromFile(t.CertDir)
	if err != nil {
		return nil, err
	}
	if CertNeedsRotation(cert.Leaf) {
		log.Logger.Warn().
			Time("not_after", cert.Leaf.NotAfter).
			Msg("Peer certificate expires soon")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
	if t.Verify == VerifyModeVerify {
		pool, err := LoadCACertPool(t.CertDir)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		cfg.InsecureSkipVerify = true
	}
	return cfg, nil
}

// ServerCredentials returns the satellite's gRPC transport credentials
func (t TLS) ServerCredentials() (credentials.TransportCredentials, error) {
	if !t.Enabled {
		return insecure.NewCredentials(), nil
	}
	cfg, err := t.tlsConfig()
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(cfg), nil
}

// ClientCredentials returns the controller's gRPC transport credentials
func (t TLS) ClientCredentials() (credentials.TransportCredentials, error) {
	if !t.Enabled {
		return insecure.NewCredentials(), nil
	}
	cfg, err := t.tlsConfig()
	if err != nil {
		return nil, err
	}
	cfg.ClientCAs = nil
	cfg.ClientAuth = tls.NoClientCert
	return credentials.NewTLS(cfg), nil
}
