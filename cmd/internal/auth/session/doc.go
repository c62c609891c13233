// Package session issues and verifies the bearer tokens handed out at
// registration and login.
//
// Tokens are PASETO v4.public carrying only the account id ("uid"). They are
// stateless: there is no server-side session row and no refresh flow.
package session
