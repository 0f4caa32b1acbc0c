// Package identity owns user records for the session engine.
//
// The session engine treats users as an external collaborator: it looks them
// up by id or email, verifies passwords, and bumps token_version to
// invalidate every outstanding access token of a user in one statement.
package identity
