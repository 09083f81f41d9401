package config

import (
	"strconv"

	"github.com/cuemby/burrow/pkg/types"
)

// Controller property keys
const (
	KeyPeerCount    = "PeerCount"
	KeyAlStripes    = "AlStripes"
	KeyAlStripeSize = "AlStripeSize"
	KeyStorPoolName = "StorPoolName"

	KeyNetComBindAddress = "BindAddress"
	KeyNetComPort        = "Port"
	KeyNetComType        = "Type"
)

// Defaults
const (
	DefaultPeerCount         = 7
	DefaultAlStripes         = 1
	DefaultAlStripeSizeKiB   = 32
	DefaultNetComBindAddress = "0.0.0.0"
	DefaultNetComPort        = 3366
	DefaultNetComType        = "plain"
	DefaultNetComName        = "default"
	DefaultStorPoolName      = "DfltStorPool"
)

// DefaultControllerProps returns the built-in controller property map
func DefaultControllerProps() map[string]string {
	props := map[string]string{
		KeyPeerCount:    strconv.Itoa(DefaultPeerCount),
		KeyAlStripes:    strconv.Itoa(DefaultAlStripes),
		KeyAlStripeSize: strconv.Itoa(DefaultAlStripeSizeKiB),
	}
	props[netComKey(DefaultNetComName, KeyNetComBindAddress)] = DefaultNetComBindAddress
	props[netComKey(DefaultNetComName, KeyNetComPort)] = strconv.Itoa(DefaultNetComPort)
	props[netComKey(DefaultNetComName, KeyNetComType)] = DefaultNetComType
	return props
}

func netComKey(name, key string) string {
	return types.NamespcNetCom + types.PathSeparator + name + types.PathSeparator + key
}

func intProp(p *types.Props, key string, def int) int {
	if p == nil {
		return def
	}
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// PeerCount returns the maximum number of peers of a resource
func PeerCount(p *types.Props) int { return intProp(p, KeyPeerCount, DefaultPeerCount) }

// AlStripes returns the activity log stripe count
func AlStripes(p *types.Props) int { return intProp(p, KeyAlStripes, DefaultAlStripes) }

// AlStripeSizeKiB returns the activity log stripe size
func AlStripeSizeKiB(p *types.Props) int {
	return intProp(p, KeyAlStripeSize, DefaultAlStripeSizeKiB)
}

// NetComBindAddress returns the bind address of a named network communication endpoint
func NetComBindAddress(p *types.Props, name string) string {
	if p == nil {
		return DefaultNetComBindAddress
	}
	return p.GetOr(netComKey(name, KeyNetComBindAddress), DefaultNetComBindAddress)
}

// NetComPort returns the port of a named network communication endpoint
func NetComPort(p *types.Props, name string) int {
	return intProp(p, netComKey(name, KeyNetComPort), DefaultNetComPort)
}

// NetComType returns the connection type (plain or ssl) of a named endpoint
func NetComType(p *types.Props, name string) string {
	if p == nil {
		return DefaultNetComType
	}
	return p.GetOr(netComKey(name, KeyNetComType), DefaultNetComType)
}
