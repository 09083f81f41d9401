package types

import (
	"fmt"
	"strings"
)

// InvalidNameError is returned when a natural-key string fails the name syntax rule
type InvalidNameError struct {
	Kind   string
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Name, e.Reason)
}

const (
	minNameLength     = 2
	maxNameLength     = 48
	maxNodeNameLength = 255
	maxLabelLength    = 63
)

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// checkName validates the common rule for resource-like names: a letter or
// underscore followed by letters, digits, underscores and dashes.
func checkName(kind, name string) error {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return &InvalidNameError{Kind: kind, Name: name,
			Reason: fmt.Sprintf("length must be between %d and %d", minNameLength, maxNameLength)}
	}
	for i, r := range name {
		if i == 0 {
			if !isAlpha(r) && r != '_' {
				return &InvalidNameError{Kind: kind, Name: name, Reason: "must start with a letter or '_'"}
			}
			continue
		}
		if !isAlpha(r) && !isDigit(r) && r != '_' && r != '-' {
			return &InvalidNameError{Kind: kind, Name: name, Reason: fmt.Sprintf("invalid character %q", r)}
		}
	}
	return nil
}

// NodeName is the hostname-like name of a node
type NodeName struct {
	display string
}

// NewNodeName validates a node name. Node names follow hostname syntax and
// must start with a letter.
func NewNodeName(name string) (NodeName, error) {
	if len(name) < minNameLength || len(name) > maxNodeNameLength {
		return NodeName{}, &InvalidNameError{Kind: "node", Name: name,
			Reason: fmt.Sprintf("length must be between %d and %d", minNameLength, maxNodeNameLength)}
	}
	if !isAlpha(rune(name[0])) {
		return NodeName{}, &InvalidNameError{Kind: "node", Name: name, Reason: "must start with a letter"}
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > maxLabelLength {
			return NodeName{}, &InvalidNameError{Kind: "node", Name: name, Reason: "invalid hostname label length"}
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return NodeName{}, &InvalidNameError{Kind: "node", Name: name, Reason: "hostname labels must not start or end with '-'"}
		}
		for _, r := range label {
			if !isAlpha(r) && !isDigit(r) && r != '-' {
				return NodeName{}, &InvalidNameError{Kind: "node", Name: name, Reason: fmt.Sprintf("invalid character %q", r)}
			}
		}
	}
	return NodeName{display: name}, nil
}

func (n NodeName) String() string { return n.display }

// Key is the case-insensitive lookup key
func (n NodeName) Key() string { return strings.ToUpper(n.display) }

// Equal compares two names case-insensitively
func (n NodeName) Equal(o NodeName) bool { return n.Key() == o.Key() }

// IsZero reports whether the name is unset
func (n NodeName) IsZero() bool { return n.display == "" }

// ResourceName is the name of a resource definition and its resources
type ResourceName struct {
	display string
}

// NewResourceName validates a resource name
func NewResourceName(name string) (ResourceName, error) {
	if err := checkName("resource", name); err != nil {
		return ResourceName{}, err
	}
	return ResourceName{display: name}, nil
}

func (n ResourceName) String() string { return n.display }

// Key is the case-insensitive lookup key
func (n ResourceName) Key() string { return strings.ToUpper(n.display) }

// Equal compares two names case-insensitively
func (n ResourceName) Equal(o ResourceName) bool { return n.Key() == o.Key() }

// IsZero reports whether the name is unset
func (n ResourceName) IsZero() bool { return n.display == "" }

// StorPoolName is the name of a storage pool definition and its pools
type StorPoolName struct {
	display string
}

// NewStorPoolName validates a storage pool name
func NewStorPoolName(name string) (StorPoolName, error) {
	if err := checkName("storage pool", name); err != nil {
		return StorPoolName{}, err
	}
	return StorPoolName{display: name}, nil
}

func (n StorPoolName) String() string { return n.display }

// Key is the case-insensitive lookup key
func (n StorPoolName) Key() string { return strings.ToUpper(n.display) }

// Equal compares two names case-insensitively
func (n StorPoolName) Equal(o StorPoolName) bool { return n.Key() == o.Key() }

// IsZero reports whether the name is unset
func (n StorPoolName) IsZero() bool { return n.display == "" }

// NetInterfaceName is the name of a node's network interface
type NetInterfaceName struct {
	display string
}

// NewNetInterfaceName validates a network interface name
func NewNetInterfaceName(name string) (NetInterfaceName, error) {
	if err := checkName("network interface", name); err != nil {
		return NetInterfaceName{}, err
	}
	return NetInterfaceName{display: name}, nil
}

func (n NetInterfaceName) String() string { return n.display }

// Key is the case-insensitive lookup key
func (n NetInterfaceName) Key() string { return strings.ToUpper(n.display) }

// PairKey returns the unordered key of two node names, used for symmetric connections
func PairKey(a, b NodeName) string {
	ka, kb := a.Key(), b.Key()
	if ka > kb {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
