// Package postgres provides a PostgreSQL implementation of
// auth.SessionManager. It uses pgx/v5 for connection pooling and JSONB for
// principal attribute storage, so logins survive process restarts and are
// shared across instances.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portier-dev/portier/pkg/auth"
	"github.com/portier-dev/portier/pkg/session"
)

// Manager is a PostgreSQL-backed SessionManager.
type Manager struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// Ensure Manager implements auth.SessionManager at compile time.
var _ auth.SessionManager = (*Manager)(nil)

// New creates a new PostgreSQL session manager with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = session.DefaultTTL
	}

	m := &Manager{pool: pool, ttl: ttl}

	if cfg.MigrateOnStart {
		if err := m.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return m, nil
}

// Save persists a login under the session ID, replacing any existing entry.
func (m *Manager) Save(ctx context.Context, sessionID string, p *auth.Principal, mechanism string) error {
	var attrsJSON []byte
	if p.Attributes != nil {
		var err error
		attrsJSON, err = json.Marshal(p.Attributes)
		if err != nil {
			return fmt.Errorf("marshaling attributes: %w", err)
		}
	}

	expiresAt := time.Now().Add(m.ttl)

	_, err := m.pool.Exec(ctx, `
		INSERT INTO sessions (id, principal, mechanism, attributes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (id) DO UPDATE
		SET principal = EXCLUDED.principal,
		    mechanism = EXCLUDED.mechanism,
		    attributes = EXCLUDED.attributes,
		    created_at = now(),
		    expires_at = EXCLUDED.expires_at
	`, sessionID, p.Name, mechanism, nullJSON(attrsJSON), expiresAt)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	return nil
}

// Load returns the persisted identity for the session ID. Expired and
// unknown sessions return session.ErrNotFound.
func (m *Manager) Load(ctx context.Context, sessionID string) (*auth.Principal, string, error) {
	var (
		principal string
		mechanism string
		attrsJSON *[]byte
	)

	err := m.pool.QueryRow(ctx, `
		SELECT principal, mechanism, attributes
		FROM sessions
		WHERE id = $1 AND expires_at > now()
	`, sessionID).Scan(&principal, &mechanism, &attrsJSON)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", session.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("querying session: %w", err)
	}

	p := &auth.Principal{Name: principal}
	if attrsJSON != nil {
		if err := json.Unmarshal(*attrsJSON, &p.Attributes); err != nil {
			return nil, "", fmt.Errorf("unmarshaling attributes: %w", err)
		}
	}

	return p, mechanism, nil
}

// Clear forgets the session's identity. Clearing an unknown session is
// not an error.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	if _, err := m.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PruneExpired removes expired rows and returns how many were deleted.
// Intended to be run periodically by the host process.
func (m *Manager) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := m.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (m *Manager) Close() {
	m.pool.Close()
}

// nullJSON returns nil for empty JSON so the column stores NULL instead of
// an empty byte string.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
