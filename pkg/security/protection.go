package security

import (
	"fmt"
	"strings"
	"sync"
)

// Level is the cluster-wide security level
type Level string

const (
	// LevelNoSecurity grants every access
	LevelNoSecurity Level = "NO_SECURITY"
	// LevelRBAC checks ownership, ACLs and privileges
	LevelRBAC Level = "RBAC"
	// LevelMAC additionally applies domain/type enforcement rules
	LevelMAC Level = "MAC"
)

// ParseLevel parses a security level name
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelNoSecurity, LevelRBAC, LevelMAC:
		return l, nil
	case "":
		return LevelRBAC, nil
	}
	return "", fmt.Errorf("invalid security level: %q", s)
}

// Policy holds the security level and the domain/type enforcement rules
// shared by all object protections of one process.
type Policy struct {
	mu    sync.RWMutex
	level Level
	rules map[SecurityType]map[SecurityType]AccessType
}

// NewPolicy creates a policy with the given security level
func NewPolicy(level Level) *Policy {
	return &Policy{
		level: level,
		rules: make(map[SecurityType]map[SecurityType]AccessType),
	}
}

// Level returns the current security level
func (p *Policy) Level() Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// SetLevel changes the security level; requires PrivSysAll
func (p *Policy) SetLevel(ctx *AccessContext, level Level) error {
	if !ctx.Privileges().Has(PrivSysAll) {
		return &AccessDeniedError{Path: "/sys/securitylevel", Subject: ctx.Identity(), Role: ctx.Role(), Requested: AccessControl}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	return nil
}

// SetRule sets the access a subject domain has to objects of a security type
func (p *Policy) SetRule(domain, objType SecurityType, access AccessType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.rules[domain]
	if !ok {
		m = make(map[SecurityType]AccessType)
		p.rules[domain] = m
	}
	m[objType] = access
}

func (p *Policy) rule(domain, objType SecurityType) AccessType {
	if domain == objType {
		return AccessControl
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rules[domain][objType]
}

// ObjectProtection binds an access control list to one protected object path
type ObjectProtection struct {
	mu      sync.RWMutex
	policy  *Policy
	path    string
	creator Identity
	owner   Role
	objType SecurityType
	acl     map[Role]AccessType
}

// ProtectionData is the persisted form of an object protection
type ProtectionData struct {
	Path    string            `json:"path"`
	Creator string            `json:"creator"`
	Owner   string            `json:"owner"`
	Type    string            `json:"type"`
	ACL     map[string]string `json:"acl"`
}

// NewObjectProtection creates a protection for path owned by the context's
// role, typed with the context's domain, with an ACL granting the owner CONTROL.
func (p *Policy) NewObjectProtection(ctx *AccessContext, path string) *ObjectProtection {
	return &ObjectProtection{
		policy:  p,
		path:    path,
		creator: ctx.Identity(),
		owner:   ctx.Role(),
		objType: ctx.Domain(),
		acl:     map[Role]AccessType{ctx.Role(): AccessControl},
	}
}

// RestoreObjectProtection rebuilds a protection from its persisted form
func (p *Policy) RestoreObjectProtection(data ProtectionData) (*ObjectProtection, error) {
	op := &ObjectProtection{
		policy:  p,
		path:    data.Path,
		creator: Identity(data.Creator),
		owner:   Role(data.Owner),
		objType: SecurityType(data.Type),
		acl:     make(map[Role]AccessType, len(data.ACL)),
	}
	for role, access := range data.ACL {
		t, err := ParseAccessType(access)
		if err != nil {
			return nil, fmt.Errorf("failed to restore protection %s: %w", data.Path, err)
		}
		op.acl[Role(role)] = t
	}
	return op, nil
}

// Path returns the protected object path
func (op *ObjectProtection) Path() string { return op.path }

// Creator returns the identity that created the protection
func (op *ObjectProtection) Creator() Identity { return op.creator }

// Owner returns the owner role
func (op *ObjectProtection) Owner() Role {
	op.mu.RLock()
	defer op.mu.RUnlock()
	return op.owner
}

// ACL returns a copy of the access control list
func (op *ObjectProtection) ACL() map[Role]AccessType {
	op.mu.RLock()
	defer op.mu.RUnlock()

	acl := make(map[Role]AccessType, len(op.acl))
	for k, v := range op.acl {
		acl[k] = v
	}
	return acl
}

// QueryAccess returns the highest access type the context has on the object
func (op *ObjectProtection) QueryAccess(ctx *AccessContext) AccessType {
	if op.policy.Level() == LevelNoSecurity {
		return AccessControl
	}

	privs := ctx.Privileges().Enabled()
	override := accessOverride(privs)

	op.mu.RLock()
	granted := op.acl[ctx.Role()]
	if ctx.Role() == op.owner {
		granted = AccessControl
	}
	objType := op.objType
	op.mu.RUnlock()

	if op.policy.Level() == LevelMAC && privs&PrivMacOverride == 0 {
		granted = minAccess(granted, op.policy.rule(ctx.Domain(), objType))
	}
	return maxAccess(granted, override)
}

// RequireAccess returns an *AccessDeniedError unless the context has at
// least the requested access type. It has no side effects.
func (op *ObjectProtection) RequireAccess(ctx *AccessContext, requested AccessType) error {
	granted := op.QueryAccess(ctx)
	if granted.Implies(requested) {
		return nil
	}
	return &AccessDeniedError{
		Path:      op.path,
		Subject:   ctx.Identity(),
		Role:      ctx.Role(),
		Requested: requested,
		Granted:   granted,
	}
}

// AddACLEntry grants a role an access type; requires CONTROL
func (op *ObjectProtection) AddACLEntry(ctx *AccessContext, role Role, access AccessType) error {
	if err := op.RequireAccess(ctx, AccessControl); err != nil {
		return err
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	op.acl[role] = access
	return nil
}

// DelACLEntry removes a role's ACL entry; requires CONTROL
func (op *ObjectProtection) DelACLEntry(ctx *AccessContext, role Role) error {
	if err := op.RequireAccess(ctx, AccessControl); err != nil {
		return err
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	delete(op.acl, role)
	return nil
}

// SetOwner changes the owner role; requires CONTROL
func (op *ObjectProtection) SetOwner(ctx *AccessContext, role Role) error {
	if err := op.RequireAccess(ctx, AccessControl); err != nil {
		return err
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	op.owner = role
	return nil
}

// Restore resets the owner and ACL to a previously taken Data snapshot.
// It does not check access and is meant for undoing an edit.
func (op *ObjectProtection) Restore(data ProtectionData) error {
	acl := make(map[Role]AccessType, len(data.ACL))
	for role, access := range data.ACL {
		t, err := ParseAccessType(access)
		if err != nil {
			return fmt.Errorf("failed to restore protection %s: %w", op.path, err)
		}
		acl[Role(role)] = t
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	op.owner = Role(data.Owner)
	op.acl = acl
	return nil
}

// Data returns the persisted form
func (op *ObjectProtection) Data() ProtectionData {
	op.mu.RLock()
	defer op.mu.RUnlock()

	acl := make(map[string]string, len(op.acl))
	for role, access := range op.acl {
		acl[string(role)] = access.String()
	}
	return ProtectionData{
		Path:    op.path,
		Creator: string(op.creator),
		Owner:   string(op.owner),
		Type:    string(op.objType),
		ACL:     acl,
	}
}
