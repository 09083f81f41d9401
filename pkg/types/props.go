package types

import (
	"fmt"
	"sort"
	"strings"
)

// Property namespaces
const (
	NamespcAuxiliary   = "Aux"
	NamespcDrbdOptions = "DrbdOptions"
	NamespcNetCom      = "NetCom"
	NamespcStorDriver  = "StorDriver"

	PathSeparator = "/"

	maxKeyLength   = 4096
	maxValueLength = 65536
)

// InvalidKeyError is returned for malformed property keys or values
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid property key %q: %s", e.Key, e.Reason)
}

// Props is a hierarchical, namespaced key/value container. Keys are
// '/'-separated paths; leading and trailing separators are ignored.
// Props is not safe for concurrent use; it is guarded by the lock of the
// collection that owns the object.
type Props struct {
	m map[string]string
}

// NewProps creates an empty property container
func NewProps() *Props {
	return &Props{m: make(map[string]string)}
}

// PropsFromMap creates a property container, validating every key
func PropsFromMap(src map[string]string) (*Props, error) {
	p := NewProps()
	for k, v := range src {
		if _, _, err := p.Set(k, v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NormalizeKey validates a key and returns its canonical form
func NormalizeKey(key string) (string, error) {
	trimmed := strings.Trim(key, PathSeparator)
	if trimmed == "" {
		return "", &InvalidKeyError{Key: key, Reason: "empty key"}
	}
	if len(trimmed) > maxKeyLength {
		return "", &InvalidKeyError{Key: key, Reason: "key too long"}
	}
	for _, seg := range strings.Split(trimmed, PathSeparator) {
		if seg == "" {
			return "", &InvalidKeyError{Key: key, Reason: "empty path segment"}
		}
	}
	return trimmed, nil
}

// Get returns a property value
func (p *Props) Get(key string) (string, bool) {
	k, err := NormalizeKey(key)
	if err != nil {
		return "", false
	}
	v, ok := p.m[k]
	return v, ok
}

// GetOr returns a property value or def if it is not set
func (p *Props) GetOr(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

// Set sets a property and returns the previous value
func (p *Props) Set(key, value string) (string, bool, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return "", false, err
	}
	if len(value) > maxValueLength {
		return "", false, &InvalidKeyError{Key: key, Reason: "value too long"}
	}
	old, existed := p.m[k]
	p.m[k] = value
	return old, existed, nil
}

// Remove removes a property and returns the previous value
func (p *Props) Remove(key string) (string, bool) {
	k, err := NormalizeKey(key)
	if err != nil {
		return "", false
	}
	old, existed := p.m[k]
	delete(p.m, k)
	return old, existed
}

// Namespace returns the properties below ns, keyed relative to ns
func (p *Props) Namespace(ns string) map[string]string {
	prefix := strings.Trim(ns, PathSeparator) + PathSeparator
	out := make(map[string]string)
	for k, v := range p.m {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// Keys returns the sorted keys
func (p *Props) Keys() []string {
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of properties
func (p *Props) Len() int { return len(p.m) }

// Map returns a copy of the properties
func (p *Props) Map() map[string]string {
	out := make(map[string]string, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}

// Replace replaces all properties; nothing changes if any key is invalid
func (p *Props) Replace(src map[string]string) error {
	next, err := PropsFromMap(src)
	if err != nil {
		return err
	}
	p.m = next.m
	return nil
}

// Equal reports whether the properties equal the given map
func (p *Props) Equal(other map[string]string) bool {
	return EqualProps(p.m, other)
}

// EqualProps compares two property maps, treating nil and empty as equal
func EqualProps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if ov, ok := b[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// CopyProps returns a copy of a property map
func CopyProps(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
