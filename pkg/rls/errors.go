package rls

import "errors"

var (
	ErrInvalidPolicy  = errors.New("rls: invalid policy")
	ErrPolicyMissing  = errors.New("rls: row level security is not enforced")
	ErrPrivilegedRole = errors.New("rls: current role bypasses row level security")
	ErrReadable       = errors.New("rls: current role can read a table without row policies")
)
