package security

import "fmt"

// AccessDeniedError is returned when an access context lacks the requested access
type AccessDeniedError struct {
	Path      string
	Subject   Identity
	Role      Role
	Requested AccessType
	Granted   AccessType
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access of type %s to %s denied for identity %s, role %s (granted: %s)",
		e.Requested, e.Path, e.Subject, e.Role, e.Granted)
}

// PrivilegeLimitError is returned when privileges outside a set's limit are requested
type PrivilegeLimitError struct {
	Requested Privilege
	Limit     Privilege
}

func (e *PrivilegeLimitError) Error() string {
	return fmt.Sprintf("privileges %#x exceed limit %#x", uint64(e.Requested), uint64(e.Limit))
}
