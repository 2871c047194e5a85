package app

import (
	"errors"
	"fmt"

	"petlink/cmd/security/token"
)

// newVerifier enforces the auth policy at startup. It returns nil when
// authentication is disabled; a missing or short secret is fatal otherwise.
func newVerifier(cfg Config, log Logger) (*token.Verifier, error) {
	if !cfg.AuthRequired {
		log.Warn("security.auth.disabled", "header", "X-User-ID")
		return nil, nil
	}

	secret, err := token.SecretFromEnv(token.MinSecretBytes)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return nil, fmt.Errorf("security policy: PETLINK_AUTH_REQUIRED=true but %s is missing", token.SecretEnvKey)
		case errors.Is(err, token.ErrSecretTooShort):
			return nil, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.SecretEnvKey, token.MinSecretBytes)
		default:
			return nil, err
		}
	}
	return token.NewVerifier(secret)
}
