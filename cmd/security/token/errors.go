package token

import "errors"

// Public, stable errors for callers.
var (
	ErrSecretMissing  = errors.New("jwt secret missing")
	ErrSecretTooShort = errors.New("jwt secret too short")
	ErrTokenInvalid   = errors.New("token invalid")
)
