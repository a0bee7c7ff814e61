package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gatehouse-dev/gatehouse/pkg/auth"
	authmiddleware "github.com/gatehouse-dev/gatehouse/pkg/auth/middleware"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
	"github.com/gatehouse-dev/gatehouse/pkg/session"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Options carries the dependencies of the HTTP surface.
type Options struct {
	// Backend is the composite authentication backend.
	Backend auth.Backend

	// OAuth2 is the OAuth2 child backend, nil when the flow is not
	// configured. The redirect and callback endpoints need it directly.
	OAuth2 *auth.OAuth2Backend

	// Sessions loads and commits the request session.
	Sessions *session.Manager
}

// NewRouter assembles the full middleware chain and the authentication
// endpoints. Routes registered through protected sit behind the
// authentication gate; the login, logout and OAuth endpoints stay public.
func NewRouter(opts Options, protected func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(
		chimiddleware.RequestID,
		chimiddleware.Timeout(middlewareTimeout),
	)
	r.Use(opts.Sessions.Middleware)
	r.Use(authmiddleware.ResolveSession(opts.Backend))

	routes := AuthRoutes{
		backend: opts.Backend,
		oauth:   opts.OAuth2,
	}
	routes.Register(r)

	if protected != nil {
		r.Group(func(g chi.Router) {
			g.Use(authmiddleware.RequireAuthentication(opts.Backend))
			protected(g)
		})
	}
	return r
}

// Serve runs the HTTP surface on the given address until ctx is cancelled.
// It is assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, address string, opts Options, protected func(chi.Router)) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           NewRouter(opts, protected),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	logger.Infof("starting HTTP server on %s", address)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped with error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
