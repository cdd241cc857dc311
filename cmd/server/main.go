// Command server runs the portier authentication gateway.
//
// Configuration is loaded from a YAML file plus environment overrides, see
// pkg/config. The most common knobs:
//
//	PORTIER_CONFIG        - Config file path (default: ./config.yaml, /etc/portier/config.yaml)
//	PORTIER_PORT          - Listen port (default: 8080)
//	PORTIER_MECHANISMS    - Comma-separated mechanism chain (default: "basic")
//	PORTIER_USERS_FILE    - YAML users file for the identity store
//	PORTIER_SESSION_STORE - Session persistence: "memory", "postgres", or "none"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portier-dev/portier/pkg/auth"
	"github.com/portier-dev/portier/pkg/auth/apikey"
	"github.com/portier-dev/portier/pkg/auth/basic"
	"github.com/portier-dev/portier/pkg/auth/form"
	jwtmech "github.com/portier-dev/portier/pkg/auth/jwt"
	"github.com/portier-dev/portier/pkg/config"
	"github.com/portier-dev/portier/pkg/debug"
	identityfile "github.com/portier-dev/portier/pkg/identity/file"
	"github.com/portier-dev/portier/pkg/observability"
	sessionmemory "github.com/portier-dev/portier/pkg/session/memory"
	sessionpostgres "github.com/portier-dev/portier/pkg/session/postgres"
	"github.com/portier-dev/portier/pkg/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	debug.Init(cfg.Observability.Logging.Debug, cfg.Observability.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Identity store.
	store, err := buildIdentityStore(cfg)
	if err != nil {
		return err
	}

	// Session manager.
	sessions, cleanup, err := buildSessionManager(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Mechanism chain, in configured order.
	mechanisms, err := buildMechanisms(cfg, store)
	if err != nil {
		return err
	}

	factory := &auth.Factory{
		IdentityStore: store,
		Sessions:      sessions,
		Mechanisms:    mechanisms,
	}

	var limiter auth.RateLimiter
	if cfg.Auth.RateLimit.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.Auth.RateLimit.Tiers))
		for name, rpm := range cfg.Auth.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.Auth.RateLimit.DefaultRPM)
	}

	// Protected API surface.
	protected := http.NewServeMux()
	protected.HandleFunc("GET /whoami", handleWhoami)
	protected.HandleFunc("GET /admin", handleAdmin)

	gate := auth.Middleware(factory, limiter, auth.DefaultBypassEndpoints)

	mux := http.NewServeMux()
	mux.Handle("/", gate(protected))
	mux.HandleFunc("POST /login", handleLogin(factory))
	mux.HandleFunc("POST /logout", handleLogout(factory))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	var handler http.Handler = mux
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
		handler = observability.MetricsMiddleware(handler)
	}
	handler = transport.Logging(nil)(handler)
	handler = transport.Recovery(handler)
	handler = transport.RequestID(handler)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"port", cfg.Server.Port,
			"mechanisms", cfg.Auth.Mechanisms,
			"session_store", cfg.Session.Type,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildIdentityStore(cfg *config.Config) (auth.IdentityStore, error) {
	if cfg.Identity.UsersFile != "" {
		store, err := identityfile.Load(cfg.Identity.UsersFile)
		if err != nil {
			return nil, fmt.Errorf("loading identity store: %w", err)
		}
		return store, nil
	}

	users := make([]identityfile.User, 0, len(cfg.Identity.Users))
	for _, u := range cfg.Identity.Users {
		users = append(users, identityfile.User{
			Name:         u.Name,
			PasswordHash: u.PasswordHash,
			Groups:       u.Groups,
			Attributes:   u.Attributes,
		})
	}
	store, err := identityfile.New(users)
	if err != nil {
		return nil, fmt.Errorf("building identity store: %w", err)
	}
	return store, nil
}

func buildSessionManager(ctx context.Context, cfg *config.Config) (auth.SessionManager, func(), error) {
	switch cfg.Session.Type {
	case "none":
		slog.Info("session persistence disabled")
		return nil, nil, nil
	case "postgres":
		mgr, err := sessionpostgres.New(ctx, sessionpostgres.Config{
			DSN:            cfg.Session.Postgres.DSN,
			MaxConns:       cfg.Session.Postgres.MaxConns,
			TTL:            cfg.Session.TTL,
			MigrateOnStart: cfg.Session.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres session manager: %w", err)
		}
		slog.Info("session persistence enabled", "type", "postgres")
		return mgr, mgr.Close, nil
	default:
		slog.Info("session persistence enabled", "type", "memory", "max_size", cfg.Session.MaxSize)
		return sessionmemory.New(cfg.Session.MaxSize, cfg.Session.TTL), nil, nil
	}
}

func buildMechanisms(cfg *config.Config, store auth.IdentityStore) ([]auth.Mechanism, error) {
	var mechanisms []auth.Mechanism
	for _, name := range cfg.Auth.Mechanisms {
		switch name {
		case "basic":
			mechanisms = append(mechanisms, basic.New(store, cfg.Auth.Realm))
		case "apikey":
			entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
			for _, k := range cfg.Auth.APIKeys {
				p := auth.Principal{Name: k.Subject}
				if k.Tier != "" {
					p.Attributes = map[string]string{"tier": k.Tier}
				}
				entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Principal: p})
			}
			mechanisms = append(mechanisms, apikey.New(entries))
		case "jwt":
			mechanisms = append(mechanisms, jwtmech.New(jwtmech.Config{
				Issuer:    cfg.Auth.JWT.Issuer,
				Audience:  cfg.Auth.JWT.Audience,
				JWKSURL:   cfg.Auth.JWT.JWKSURL,
				UserClaim: cfg.Auth.JWT.UserClaim,
				TierClaim: cfg.Auth.JWT.TierClaim,
				CacheTTL:  cfg.Auth.JWT.CacheTTL,
			}))
		case "form":
			mechanisms = append(mechanisms, form.New(store, form.Config{
				LoginPage:     cfg.Auth.Form.LoginPage,
				ActionPath:    cfg.Auth.Form.ActionPath,
				UsernameField: cfg.Auth.Form.UsernameField,
				PasswordField: cfg.Auth.Form.PasswordField,
			}))
		default:
			return nil, fmt.Errorf("unknown mechanism %q", name)
		}
	}
	return mechanisms, nil
}

// handleWhoami reports the authenticated identity established by the gate.
func handleWhoami(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.Principal() == nil {
		transport.WriteError(w, transport.ErrorTypeServerError, "no security context")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"principal": sc.Principal().Name,
		"mechanism": sc.MechanismName(),
		"state":     sc.State().String(),
	})
}

// handleAdmin is a group-gated endpoint: only members of "admins" pass.
func handleAdmin(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || !sc.IsUserInGroup(r.Context(), "admins") {
		transport.WriteError(w, transport.ErrorTypeForbidden, "access denied")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"admin": true})
}

// handleLogin verifies posted credentials against the identity store
// directly, bypassing the mechanism chain, and persists the result in the
// session manager.
func handleLogin(factory *auth.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			transport.WriteError(w, transport.ErrorTypeInvalidRequest, "malformed form body")
			return
		}

		sc := factory.NewWithSession(w, r)
		ok, err := sc.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
		if err != nil {
			transport.WriteErrorResponse(w, transport.ErrorTypeServerError, "authentication unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			transport.WriteError(w, transport.ErrorTypeUnauthorized, "invalid credentials")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"principal": sc.Principal().Name,
			"mechanism": sc.MechanismName(),
		})
	}
}

// handleLogout clears the session-backed login. Safe to call when not
// authenticated.
func handleLogout(factory *auth.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc := factory.New(w, r)
		sc.Logout(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}
