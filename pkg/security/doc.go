/*
Package security implements burrow's authorization model.

An AccessContext describes who performs an operation: a subject identity, a
role, a security domain and a PrivilegeSet. The privilege set has a limit
that is fixed when the context is created; Elevate may enable privileges
inside that limit, Impersonate derives a narrower context. Only the system
context has PrivSysAll in its limit.

An ObjectProtection guards one object path with an ACL mapping roles to an
AccessType (VIEW < USE < CHANGE < CONTROL). RequireAccess succeeds if the
owner role, the ACL entry or an enabled PrivObj* privilege grants at least
the requested type. With LevelMAC the Policy's domain/type rules cap the
result unless PrivMacOverride is enabled.

	ctx := security.NewPublicContext()
	if err := nodesProt.RequireAccess(ctx, security.AccessChange); err != nil {
		var denied *security.AccessDeniedError
		errors.As(err, &denied)
	}
*/
package security
