package identity

import "errors"

// Domain errors for identity module.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRoleNotFound       = errors.New("role not found")
	// ErrUnknownPrincipal means a verified token no longer maps to a directory user.
	ErrUnknownPrincipal = errors.New("token does not identify an existing user")
)
