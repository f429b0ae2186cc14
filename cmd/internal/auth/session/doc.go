// Package session is the relay's session authenticator.
//
// It validates the bearer credential a client presents at connection time and
// resolves it to a user identity. Verification is PASETO v4.public (Ed25519);
// token issuance for real clients belongs to the excluded CRUD layer, which
// signs with the same key. Issue exists here so the relay's own tests and the
// smoke tool can mint tokens without that layer.
package session
