// Package auth orchestrates pluggable authentication mechanisms against a
// single in-flight HTTP request.
//
// A SecurityContext owns an ordered chain of mechanisms and evaluates them
// with three-outcome voting: each mechanism returns Authenticated (identity
// verified), NotAuthenticated (credentials present but invalid), or
// NotAttempted (no credentials this mechanism understands). The first
// definite outcome wins and short-circuits the rest of the chain.
//
// Challenges are deferred: Authenticate returns a Result carrying a
// send-challenge action that only fires if SetAuthenticationRequired was
// called before resolution. Login and Logout bypass the chain entirely and
// talk to the identity store and session manager directly.
//
// One SecurityContext serves exactly one request and is not safe for
// concurrent use from multiple goroutines.
package auth
