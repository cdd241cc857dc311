// Package session provides utilities shared across session manager
// implementations: the session cookie name, ID generation, and sentinel
// errors.
//
// Session managers (memory, postgres) implement the auth.SessionManager
// interface defined in pkg/auth/mechanism.go. This package contains only
// shared helpers, not the interface itself.
package session
