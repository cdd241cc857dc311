package auth

// Outcome represents the three possible verdicts of a mechanism attempt.
type Outcome int

const (
	// OutcomeNotAttempted means the mechanism found no credentials it
	// understands. The chain continues to the next mechanism.
	OutcomeNotAttempted Outcome = iota

	// OutcomeAuthenticated means credentials were verified. The chain stops
	// and the principal is used.
	OutcomeAuthenticated

	// OutcomeNotAuthenticated means credentials were present but invalid.
	// The chain stops and the request is rejected.
	OutcomeNotAuthenticated
)

// String returns the outcome name for logging and metric labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeNotAuthenticated:
		return "not_authenticated"
	case OutcomeNotAttempted:
		return "not_attempted"
	default:
		return "unknown"
	}
}

// State describes whether and how the current request is authenticated.
// It is mutated only by the SecurityContext.
type State int

const (
	// StateNotRequired is the initial state: no authentication has been
	// demanded and none has happened.
	StateNotRequired State = iota

	// StateRequired means SetAuthenticationRequired was called but the
	// chain has not yet produced a definite outcome.
	StateRequired

	// StateAuthenticated means a mechanism, a login, or a cached session
	// established an identity.
	StateAuthenticated

	// StateNotAuthenticated means a mechanism found credentials and
	// rejected them.
	StateNotAuthenticated
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateNotRequired:
		return "not_required"
	case StateRequired:
		return "required"
	case StateAuthenticated:
		return "authenticated"
	case StateNotAuthenticated:
		return "not_authenticated"
	default:
		return "unknown"
	}
}

// Principal represents a verified identity.
type Principal struct {
	// Name is the unique subject identifier (required, non-empty).
	Name string

	// Attributes carries mechanism- or store-specific data, for example
	// a "tier" used for rate limiting.
	Attributes map[string]string
}

// Attribute returns the named attribute, or empty string.
func (p *Principal) Attribute(key string) string {
	if p == nil || p.Attributes == nil {
		return ""
	}
	return p.Attributes[key]
}
