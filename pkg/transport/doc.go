// Package transport provides HTTP-level plumbing shared by all portier
// endpoints: request IDs, structured request logging, panic recovery, and
// the JSON error envelope.
package transport
