package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// auth.mechanisms entries must be known values.
	for i, m := range c.Auth.Mechanisms {
		switch m {
		case "basic", "apikey", "jwt", "form":
			// valid
		default:
			errs = append(errs, fmt.Errorf("auth.mechanisms[%d] must be \"basic\", \"apikey\", \"jwt\", or \"form\", got %q", i, m))
		}
	}

	// The JWT mechanism cannot verify signatures without a key source.
	if contains(c.Auth.Mechanisms, "jwt") && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.mechanisms includes \"jwt\""))
	}

	// The apikey mechanism needs at least one key.
	if contains(c.Auth.Mechanisms, "apikey") && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.mechanisms includes \"apikey\""))
	}

	for i, k := range c.Auth.APIKeys {
		if k.Key == "" && k.KeyFile == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
		}
		if k.Subject == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
		}
	}

	// identity.type must be a known value.
	switch c.Identity.Type {
	case "file":
		// valid
	default:
		errs = append(errs, fmt.Errorf("identity.type must be \"file\", got %q", c.Identity.Type))
	}

	// Mechanisms that verify passwords need users to verify against.
	if (contains(c.Auth.Mechanisms, "basic") || contains(c.Auth.Mechanisms, "form")) &&
		c.Identity.UsersFile == "" && len(c.Identity.Users) == 0 {
		errs = append(errs, fmt.Errorf("identity.users_file or identity.users is required when auth.mechanisms includes \"basic\" or \"form\""))
	}

	// session.type must be a known value.
	switch c.Session.Type {
	case "memory", "postgres", "none":
		// valid
	default:
		errs = append(errs, fmt.Errorf("session.type must be \"memory\", \"postgres\", or \"none\", got %q", c.Session.Type))
	}

	// If session.type is "postgres", DSN or DSNFile must be set.
	if c.Session.Type == "postgres" {
		if c.Session.Postgres.DSN == "" && c.Session.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("session.postgres.dsn or session.postgres.dsn_file is required when session.type is \"postgres\""))
		}
	}

	return errors.Join(errs...)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
