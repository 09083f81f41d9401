// Package pki issues the certificates used on controller/satellite
// connections. A CA directory holds ca.crt and ca.key; the key may be
// sealed with a passphrase (AES-256-GCM). Node directories hold node.crt,
// node.key and ca.crt and are read by config.TLS.
package pki
