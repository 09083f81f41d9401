package security

import (
	"fmt"
	"strings"
	"sync"
)

// AccessType is the level of access granted on a protected object.
// The values are totally ordered: a higher access type implies all lower ones.
type AccessType int

const (
	AccessNone AccessType = iota
	AccessView
	AccessUse
	AccessChange
	AccessControl
)

func (t AccessType) String() string {
	switch t {
	case AccessView:
		return "VIEW"
	case AccessUse:
		return "USE"
	case AccessChange:
		return "CHANGE"
	case AccessControl:
		return "CONTROL"
	default:
		return "NONE"
	}
}

// Implies reports whether t grants at least the requested access type
func (t AccessType) Implies(requested AccessType) bool {
	return t >= requested
}

// ParseAccessType parses the string form of an access type
func ParseAccessType(s string) (AccessType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEW":
		return AccessView, nil
	case "USE":
		return AccessUse, nil
	case "CHANGE":
		return AccessChange, nil
	case "CONTROL":
		return AccessControl, nil
	case "NONE", "":
		return AccessNone, nil
	}
	return AccessNone, fmt.Errorf("invalid access type: %q", s)
}

func maxAccess(a, b AccessType) AccessType {
	if a > b {
		return a
	}
	return b
}

func minAccess(a, b AccessType) AccessType {
	if a < b {
		return a
	}
	return b
}

// Privilege is a bit in a privilege set
type Privilege uint64

const (
	PrivObjView Privilege = 1 << iota
	PrivObjUse
	PrivObjChange
	PrivObjControl
	PrivObjOwner
	PrivMacOverride

	// PrivSysAll contains every privilege
	PrivSysAll = PrivObjView | PrivObjUse | PrivObjChange | PrivObjControl | PrivObjOwner | PrivMacOverride
)

// accessOverride returns the access type a privilege set grants regardless of ACLs
func accessOverride(p Privilege) AccessType {
	switch {
	case p&PrivObjOwner != 0, p&PrivObjControl != 0:
		return AccessControl
	case p&PrivObjChange != 0:
		return AccessChange
	case p&PrivObjUse != 0:
		return AccessUse
	case p&PrivObjView != 0:
		return AccessView
	}
	return AccessNone
}

// PrivilegeSet is a set of enabled privileges bounded by a limit.
// Privileges outside the limit can never be enabled.
type PrivilegeSet struct {
	mu      sync.RWMutex
	limit   Privilege
	enabled Privilege
}

// NewPrivilegeSet creates a privilege set with the given limit and initially enabled privileges
func NewPrivilegeSet(limit Privilege, enabled ...Privilege) (*PrivilegeSet, error) {
	ps := &PrivilegeSet{limit: limit}
	if err := ps.Enable(enabled...); err != nil {
		return nil, err
	}
	return ps, nil
}

// Enable enables privileges; all of them must be inside the limit
func (ps *PrivilegeSet) Enable(privs ...Privilege) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var req Privilege
	for _, p := range privs {
		req |= p
	}
	if req&^ps.limit != 0 {
		return &PrivilegeLimitError{Requested: req, Limit: ps.limit}
	}
	ps.enabled |= req
	return nil
}

// Disable disables privileges
func (ps *PrivilegeSet) Disable(privs ...Privilege) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, p := range privs {
		ps.enabled &^= p
	}
}

// Has reports whether all given privileges are enabled
func (ps *PrivilegeSet) Has(privs ...Privilege) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, p := range privs {
		if ps.enabled&p != p {
			return false
		}
	}
	return true
}

// Enabled returns the currently enabled privileges
func (ps *PrivilegeSet) Enabled() Privilege {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.enabled
}

// Limit returns the privilege limit
func (ps *PrivilegeSet) Limit() Privilege {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.limit
}

func (ps *PrivilegeSet) clone() *PrivilegeSet {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return &PrivilegeSet{limit: ps.limit, enabled: ps.enabled}
}
