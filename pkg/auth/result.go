package auth

import (
	"bytes"
	"net/http"
	"sync"
)

// Result pairs the final outcome of an authenticate call with a deferred
// send-challenge action. It is created once per resolution and never
// mutated afterwards.
type Result struct {
	Outcome Outcome

	challenge func()
	once      sync.Once
}

func newResult(outcome Outcome, challenge func()) *Result {
	return &Result{Outcome: outcome, challenge: challenge}
}

// HasChallenge reports whether invoking SendChallenge will write anything.
// The challenge action is only attached when authentication was marked
// required before resolution and the outcome is not authenticated.
func (r *Result) HasChallenge() bool {
	return r.challenge != nil
}

// SendChallenge asks every mechanism that abstained or rejected, in chain
// order, to write its challenge to the response. It fires at most once; a
// Result without a challenge action is a no-op.
func (r *Result) SendChallenge() {
	if r.challenge == nil {
		return
	}
	r.once.Do(r.challenge)
}

// challengeWriter collects the challenge contributions of the whole chain
// before the status line goes out. Mechanisms add headers as usual, but
// WriteHeader is deferred: the first requested status wins and is written
// exactly once by flush, after every mechanism has had its turn. Without
// this the first mechanism's WriteHeader would freeze the response and
// later WWW-Authenticate values would never reach the client.
type challengeWriter struct {
	dst    http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newChallengeWriter(dst http.ResponseWriter) *challengeWriter {
	return &challengeWriter{dst: dst}
}

func (c *challengeWriter) Header() http.Header { return c.dst.Header() }

func (c *challengeWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *challengeWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

// flush writes the collected status and body to the underlying writer.
// A challenge where no mechanism chose a status defaults to 401.
func (c *challengeWriter) flush() {
	if c.status == 0 {
		c.status = http.StatusUnauthorized
	}
	c.dst.WriteHeader(c.status)
	if c.body.Len() > 0 {
		c.dst.Write(c.body.Bytes())
	}
}
