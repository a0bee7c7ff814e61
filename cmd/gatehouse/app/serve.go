package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-dev/gatehouse/pkg/auth"
	"github.com/gatehouse-dev/gatehouse/pkg/config"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
	"github.com/gatehouse-dev/gatehouse/pkg/providers/sqlite"
	"github.com/gatehouse-dev/gatehouse/pkg/server"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gatehouse HTTP server",
	Long: `Serve runs the HTTP surface: the login form, the OAuth2 redirect and
callback endpoints, and a session-guarded demo route at /app/whoami.`,
	RunE: serveCmdFunc,
}

var serveFlagConfig string

func init() {
	serveCmd.Flags().StringVar(&serveFlagConfig, "config", "", "Path to the configuration file")
}

// userStore is the capability bundle the serve wiring needs from a store.
type userStore interface {
	providers.OAuth2UserStore
	providers.PermissionProvider
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(serveFlagConfig)
	if err != nil {
		return err
	}
	if cfg.Debug {
		viper.Set("debug", true)
	}
	logger.Initialize()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	backend, oauthBackend, err := buildBackend(cfg, store)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := buildSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	opts := server.Options{
		Backend:  backend,
		OAuth2:   oauthBackend,
		Sessions: sessions,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(ctx, cfg.Server.Address, opts, func(r chi.Router) {
			r.Get("/app/whoami", whoamiHandler)
		})
	})
	return group.Wait()
}

// buildStore creates the user/permission store named by store.driver.
func buildStore(ctx context.Context, cfg *config.Config) (userStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory", "":
		logger.Warn("using the in-memory user store; users do not survive restarts")
		return providers.NewMemoryProvider(), func() {}, nil

	case "sqlite":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("store.dsn is required for the sqlite driver")
		}
		p, err := sqlite.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warnf("failed to close sqlite store: %v", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q (want memory or sqlite)", cfg.Store.Driver)
	}
}

// buildBackend assembles the composite backend from the enabled mechanisms.
func buildBackend(cfg *config.Config, store userStore) (auth.Backend, *auth.OAuth2Backend, error) {
	comparator := providers.NewBcryptComparator()

	var opts []auth.CompositeOption
	var oauthBackend *auth.OAuth2Backend

	if cfg.Auth.Basic.Enabled {
		mode, err := auth.ParseMode(cfg.Auth.Basic.Mode)
		if err != nil {
			return nil, nil, fmt.Errorf("auth.basic.mode: %w", err)
		}
		opts = append(opts, auth.WithBasic(auth.NewBasicBackend(store, comparator,
			auth.WithBasicMode(mode),
			auth.WithBasicRealm(cfg.Auth.Basic.Realm),
		)))
	}

	if cfg.Auth.Form.Enabled {
		mode, err := auth.ParseMode(cfg.Auth.Form.Mode)
		if err != nil {
			return nil, nil, fmt.Errorf("auth.form.mode: %w", err)
		}
		opts = append(opts, auth.WithForm(auth.NewFormBackend(store, comparator,
			auth.WithFormMode(mode),
			auth.WithLoginURL(cfg.Auth.Form.LoginURL),
		)))
	}

	if cfg.OAuth2.Enabled() {
		b, err := auth.NewOAuth2Backend(store, auth.OAuth2Config{
			ClientID:       cfg.OAuth2.ClientID,
			ClientSecret:   cfg.OAuth2.ClientSecret,
			AuthURL:        cfg.OAuth2.AuthURL,
			TokenURL:       cfg.OAuth2.TokenURL,
			UserinfoURL:    cfg.OAuth2.UserinfoURL,
			RedirectURL:    cfg.OAuth2.RedirectURL,
			Scopes:         cfg.OAuth2.Scopes,
			PrincipalClaim: cfg.OAuth2.PrincipalClaim,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("oauth2 configuration: %w", err)
		}
		oauthBackend = b
		opts = append(opts, auth.WithOAuth2(b))
	}

	if cfg.ClientCert.Enabled {
		source, err := auth.ParsePrincipalSource(cfg.ClientCert.PrincipalFrom)
		if err != nil {
			return nil, nil, fmt.Errorf("client_cert.principal_from: %w", err)
		}
		opts = append(opts, auth.WithClientCert(auth.NewClientCertBackend(store,
			auth.WithPrincipalSource(source),
		)))
	}

	backend, err := auth.NewCompositeBackend(opts...)
	if err != nil {
		return nil, nil, err
	}
	return backend, oauthBackend, nil
}

// buildSessions creates the session manager over the configured store.
func buildSessions(ctx context.Context, cfg *config.Config) (*session.Manager, func(), error) {
	managerOpts := []session.ManagerOption{
		session.WithCookieName(cfg.Session.CookieName),
		session.WithSecureCookies(cfg.Session.Secure),
	}

	if cfg.Session.RedisAddr != "" {
		store, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:      cfg.Session.RedisAddr,
			Password:  cfg.Session.RedisPassword,
			DB:        cfg.Session.RedisDB,
			KeyPrefix: "gatehouse:session:",
			TTL:       cfg.Session.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return session.NewManager(store, managerOpts...), func() {
			if err := store.Close(); err != nil {
				logger.Warnf("failed to close redis session store: %v", err)
			}
		}, nil
	}

	store := session.NewMemoryStore(session.WithTTL(cfg.Session.TTL))
	return session.NewManager(store, managerOpts...), func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close session store: %v", err)
		}
	}, nil
}

// whoamiHandler is the demo protected route: it reports the authenticated
// principal back to the caller.
func whoamiHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"principal_id": user.PrincipalID,
		"name":         user.Name,
	}); err != nil {
		logger.Warnf("failed to encode whoami response: %v", err)
	}
}
