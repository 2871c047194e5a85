// Package token issues and verifies the HS256 JWTs that identify PetLink users.
//
// Tokens carry the numeric user id in the "userId" claim, the email in "sub"
// and an expiry. Verification is strict: HS256 only, expiry required.
//
// Environment:
//   - PETLINK_JWT_SECRET: the shared signing secret (at least 32 bytes).
package token
