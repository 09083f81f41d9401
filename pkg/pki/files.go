package pki

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// File names inside a certificate directory. config.TLS reads the same
// names.
const (
	CACertFile   = "ca.crt"
	CAKeyFile    = "ca.key"
	NodeCertFile = "node.crt"
	NodeKeyFile  = "node.key"
)

const (
	pemCertificate  = "CERTIFICATE"
	pemRSAKey       = "RSA PRIVATE KEY"
	pemEncryptedKey = "BURROW ENCRYPTED PRIVATE KEY"
)

// Save writes ca.crt and ca.key to dir. A non-empty passphrase encrypts
// the key.
func (ca *CA) Save(dir, passphrase string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}
	if err := SaveCACertToFile(ca.cert.Raw, dir); err != nil {
		return err
	}

	block := &pem.Block{Type: pemRSAKey, Bytes: x509.MarshalPKCS1PrivateKey(ca.key)}
	if passphrase != "" {
		sealed, err := seal(passphrase, block.Bytes)
		if err != nil {
			return fmt.Errorf("failed to encrypt root key: %w", err)
		}
		block = &pem.Block{Type: pemEncryptedKey, Bytes: sealed}
	}
	if err := os.WriteFile(filepath.Join(dir, CAKeyFile), pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("failed to write root key: %w", err)
	}
	return nil
}

// LoadCA reads a CA written by Save
func LoadCA(dir, passphrase string) (*CA, error) {
	cert, err := LoadCACertFromFile(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, CAKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read root key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode root key PEM")
	}

	der := block.Bytes
	switch block.Type {
	case pemRSAKey:
	case pemEncryptedKey:
		if passphrase == "" {
			return nil, fmt.Errorf("root key is encrypted: passphrase required")
		}
		if der, err = open(passphrase, block.Bytes); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected root key PEM type %q", block.Type)
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root key: %w", err)
	}
	if !key.PublicKey.Equal(cert.PublicKey) {
		return nil, fmt.Errorf("root key does not match %s", CACertFile)
	}
	return &CA{cert: cert, key: key}, nil
}

// WriteNodeDir issues a certificate for node and writes node.crt, node.key
// and ca.crt to dir, the layout config.TLS expects
func (ca *CA) WriteNodeDir(dir, node string, dnsNames []string, ips []net.IP) (*tls.Certificate, error) {
	cert, err := ca.IssueNodeCertificate(node, dnsNames, ips)
	if err != nil {
		return nil, err
	}
	if err := SaveCertToFile(cert, dir); err != nil {
		return nil, err
	}
	if err := SaveCACertToFile(ca.cert.Raw, dir); err != nil {
		return nil, err
	}
	return cert, nil
}

// SaveCertToFile saves a TLS certificate as node.crt and node.key
func SaveCertToFile(cert *tls.Certificate, dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}
	key, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: cert.Certificate[0]})
	if err := os.WriteFile(filepath.Join(dir, NodeCertFile), certPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: pemRSAKey, Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(dir, NodeKeyFile), keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// SaveCACertToFile saves a DER encoded CA certificate as ca.crt
func SaveCACertToFile(der []byte, dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}
	caPEM := pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: der})
	if err := os.WriteFile(filepath.Join(dir, CACertFile), caPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}
	return nil
}

// LoadCACertFromFile loads ca.crt from dir
func LoadCACertFromFile(dir string) (*x509.Certificate, error) {
	data, err := os.ReadFile(filepath.Join(dir, CACertFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemCertificate {
		return nil, fmt.Errorf("failed to decode CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	return cert, nil
}

// CertExists reports whether dir holds a complete node certificate set
func CertExists(dir string) bool {
	for _, name := range []string{NodeCertFile, NodeKeyFile, CACertFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
