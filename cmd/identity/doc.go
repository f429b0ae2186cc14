// Package identity is the relay's boundary with the durable user store.
//
// The relay is read-mostly against this package: it resolves a user id to a
// display identity at connect time and writes exactly two durable facts,
// online flag and last-seen timestamp, at presence transitions. Registration,
// password hashing and token issuance live in the excluded CRUD layer and are
// deliberately absent here.
package identity
