package security

import (
	"fmt"
	"strings"
)

// Identity is the name of an authenticated subject
type Identity string

// Role is the name of a subject role used as the ACL key
type Role string

// SecurityType is the name of a security domain or object type
type SecurityType string

const (
	SystemIdentity Identity = "SYSTEM"
	PublicIdentity Identity = "PUBLIC"

	SystemRole Role = "SYSTEM"
	PublicRole Role = "PUBLIC"

	SystemDomain SecurityType = "SYSTEM"
	PublicDomain SecurityType = "PUBLIC"
)

// NewIdentity validates and canonicalizes an identity name
func NewIdentity(name string) (Identity, error) {
	n, err := canonicalName("identity", name)
	return Identity(n), err
}

// NewRole validates and canonicalizes a role name
func NewRole(name string) (Role, error) {
	n, err := canonicalName("role", name)
	return Role(n), err
}

// NewSecurityType validates and canonicalizes a security type name
func NewSecurityType(name string) (SecurityType, error) {
	n, err := canonicalName("security type", name)
	return SecurityType(n), err
}

func canonicalName(kind, name string) (string, error) {
	if len(name) < 2 || len(name) > 24 {
		return "", fmt.Errorf("invalid %s name %q: length must be between 2 and 24", kind, name)
	}
	for i, r := range name {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !alpha {
			return "", fmt.Errorf("invalid %s name %q: must start with a letter", kind, name)
		}
		if !alpha && !(r >= '0' && r <= '9') && r != '_' && r != '-' {
			return "", fmt.Errorf("invalid %s name %q: invalid character %q", kind, name, r)
		}
	}
	return strings.ToUpper(name), nil
}

// AccessContext is the authenticated subject, its role and domain, and the
// effective privileges used to authorize one operation.
type AccessContext struct {
	identity Identity
	role     Role
	domain   SecurityType
	privs    *PrivilegeSet
}

// NewAccessContext creates an access context
func NewAccessContext(id Identity, role Role, domain SecurityType, privs *PrivilegeSet) *AccessContext {
	if privs == nil {
		privs = &PrivilegeSet{}
	}
	return &AccessContext{
		identity: id,
		role:     role,
		domain:   domain,
		privs:    privs,
	}
}

// NewSystemContext creates the system access context. Its privilege limit
// contains every privilege but none is enabled until Elevate is called.
func NewSystemContext() *AccessContext {
	return NewAccessContext(SystemIdentity, SystemRole, SystemDomain, &PrivilegeSet{limit: PrivSysAll})
}

// NewPublicContext creates an unprivileged access context
func NewPublicContext() *AccessContext {
	return NewAccessContext(PublicIdentity, PublicRole, PublicDomain, &PrivilegeSet{})
}

func (c *AccessContext) Identity() Identity { return c.identity }
func (c *AccessContext) Role() Role { return c.role }
func (c *AccessContext) Domain() SecurityType { return c.domain }
func (c *AccessContext) Privileges() *PrivilegeSet { return c.privs }

func (c *AccessContext) String() string {
	return fmt.Sprintf("%s/%s/%s", c.identity, c.role, c.domain)
}

// Clone returns an independent copy of the context
func (c *AccessContext) Clone() *AccessContext {
	return &AccessContext{
		identity: c.identity,
		role:     c.role,
		domain:   c.domain,
		privs:    c.privs.clone(),
	}
}

// Impersonate returns a new context acting as another subject. The new
// context's privilege limit is limited to the requested privileges, which
// must all lie inside this context's limit. No privilege is enabled.
func (c *AccessContext) Impersonate(id Identity, role Role, domain SecurityType, limit ...Privilege) (*AccessContext, error) {
	var req Privilege
	for _, p := range limit {
		req |= p
	}
	current := c.privs.Limit()
	if req&^current != 0 {
		return nil, &PrivilegeLimitError{Requested: req, Limit: current}
	}
	return NewAccessContext(id, role, domain, &PrivilegeSet{limit: req}), nil
}

// Elevate enables privileges on this context and returns a function that
// restores the previously enabled set.
func (c *AccessContext) Elevate(privs ...Privilege) (func(), error) {
	before := c.privs.Enabled()
	if err := c.privs.Enable(privs...); err != nil {
		return nil, err
	}
	return func() {
		c.privs.mu.Lock()
		c.privs.enabled = before
		c.privs.mu.Unlock()
	}, nil
}
