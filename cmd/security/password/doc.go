// Package password hashes and verifies user passwords with Argon2id.
//
// Encoded hashes use the PHC string layout
// ($argon2id$v=19$m=<KiB>,t=<iter>,p=<par>$<salt>$<key>) and are treated as
// untrusted input on Verify: malformed strings and cost parameters far above
// the configured ones are refused.
//
// Hasher keeps a precomputed dummy hash so login paths can spend the same
// work whether or not the account exists.
package password
