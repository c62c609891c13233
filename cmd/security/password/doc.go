// Package password hashes, verifies and generates account passwords.
//
// New hashes are Argon2id in a PHC-like encoding. Verify also accepts bcrypt
// hashes ($2a$, $2b$, $2y$) written by earlier deployments so that those
// accounts keep working; NeedsRehash reports when a stored hash should be
// replaced on the next successful login.
//
// Hash strings are treated as untrusted input and decoded with strict bounds.
package password
