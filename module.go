package inventory

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/google/uuid"
	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/client"
	"github.com/stockroom-labs/inventory-gate/handlers"
	"github.com/stockroom-labs/inventory-gate/nav"
	"github.com/stockroom-labs/inventory-gate/routes"
	"github.com/stockroom-labs/inventory-gate/session"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(Gate{})
	httpcaddyfile.RegisterHandlerDirective("inventory_gate", parseCaddyfile)
}

// Gate is a Caddy module that guards the inventory application's pages with
// the session and permission checks, and serves the session endpoints.
type Gate struct {
	// BackendURL is the base URL of the inventory backend. Required.
	BackendURL string `json:"backend_url,omitempty"`

	// LoginPath is where unauthenticated users are redirected.
	// Default is /login.
	LoginPath string `json:"login_path,omitempty"`

	// CookieName is the name of the cookie holding the bearer token.
	// Default is access_token.
	CookieName string `json:"cookie_name,omitempty"`

	// CookieSecure marks the token cookie Secure.
	CookieSecure bool `json:"cookie_secure,omitempty"`

	// RequestTimeout bounds each backend request.
	// Default is 15 seconds.
	RequestTimeout caddy.Duration `json:"request_timeout,omitempty"`

	// SessionTTL is how long an idle session stays in memory.
	// Default is 30 minutes.
	SessionTTL caddy.Duration `json:"session_ttl,omitempty"`

	// MaxSessions caps the number of sessions kept in memory.
	// Default is 1000.
	MaxSessions int `json:"max_sessions,omitempty"`

	// Routes declares additional routes, or replaces default routes with the
	// same path.
	Routes []RouteConfig `json:"routes,omitempty"`

	// Fallbacks maps a route path to the path a denied user is sent to.
	Fallbacks map[string]string `json:"fallbacks,omitempty"`

	// TransientErrors is "logout" (default) to end the session on any failed
	// user fetch, or "keep" to keep it on network and server errors.
	TransientErrors string `json:"transient_errors,omitempty"`

	logger         *zap.Logger
	sessions       *handlers.Sessions
	table          *routes.Table
	guardMw        *auth.Middleware
	sessionHandler *handlers.SessionHandler
	navHandler     http.Handler
	openAPIHandler *handlers.OpenAPIHandler
	routePrefix    string // set from INVENTORY_GATE_PREFIX env var, defaults to /api/gate
}

// CaddyModule returns the Caddy module information.
func (Gate) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.inventory_gate",
		New: func() caddy.Module { return new(Gate) },
	}
}

// Provision sets up the gate module.
func (g *Gate) Provision(ctx caddy.Context) error {
	g.logger = ctx.Logger(g)
	return g.provision()
}

func (g *Gate) provision() error {
	if g.logger == nil {
		g.logger = zap.NewNop()
	}

	if envPrefix := os.Getenv("INVENTORY_GATE_PREFIX"); envPrefix != "" {
		g.routePrefix = envPrefix
	} else {
		g.routePrefix = "/api/gate"
	}
	if !strings.HasPrefix(g.routePrefix, "/") {
		g.routePrefix = "/" + g.routePrefix
	}
	g.routePrefix = strings.TrimSuffix(g.routePrefix, "/")

	if g.LoginPath == "" {
		g.LoginPath = auth.DefaultLoginPath
	}
	if g.CookieName == "" {
		g.CookieName = handlers.DefaultCookieName
	}
	if g.RequestTimeout == 0 {
		g.RequestTimeout = caddy.Duration(client.DefaultTimeout)
	}
	if g.SessionTTL == 0 {
		g.SessionTTL = caddy.Duration(30 * time.Minute)
	}
	if g.MaxSessions == 0 {
		g.MaxSessions = 1000
	}
	if g.TransientErrors == "" {
		g.TransientErrors = transientLogout
	}

	if g.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	policy, err := errorPolicy(g.TransientErrors)
	if err != nil {
		return err
	}

	backend, err := client.New(client.Config{
		BaseURL: g.BackendURL,
		Timeout: time.Duration(g.RequestTimeout),
		Logger:  g.logger.Named("backend"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backend client: %v", err)
	}

	g.table = routes.Default()
	for _, rc := range g.Routes {
		r, err := rc.route()
		if err != nil {
			return err
		}
		if err := g.table.Add(r); err != nil {
			return err
		}
	}
	for path, to := range g.Fallbacks {
		if err := g.table.SetFallback(path, to); err != nil {
			return fmt.Errorf("fallback: %v", err)
		}
	}

	g.sessions = &handlers.Sessions{
		Registry: session.NewRegistry(session.RegistryConfig{
			Backend:      backend,
			MaxSessions:  g.MaxSessions,
			SessionTTL:   time.Duration(g.SessionTTL),
			FetchTimeout: time.Duration(g.RequestTimeout),
			Logger:       g.logger.Named("session"),
		}),
		Cookie: handlers.CookieConfig{
			Name:   g.CookieName,
			Path:   "/",
			Secure: g.CookieSecure,
		},
	}

	guards := auth.GuardOptions{
		LoginPath: g.LoginPath,
		Policy:    policy,
		Logger:    g.logger.Named("guard"),
	}
	g.guardMw = auth.NewMiddleware(g.sessions, guards)
	g.sessionHandler = handlers.NewSessionHandler(g.sessions, nav.NewMenu(routes.DefaultMenu()), g.table, guards, g.logger)
	g.navHandler = g.guardMw.Authenticate(http.HandlerFunc(g.sessionHandler.ServeNav))
	g.openAPIHandler = handlers.NewOpenAPIHandler(g.routePrefix)

	g.logger.Info("Inventory gate provisioned",
		zap.String("route_prefix", g.routePrefix),
		zap.String("backend_url", g.BackendURL),
		zap.String("login_path", g.LoginPath),
		zap.String("cookie_name", g.CookieName),
		zap.Duration("request_timeout", time.Duration(g.RequestTimeout)),
		zap.Duration("session_ttl", time.Duration(g.SessionTTL)),
		zap.Int("max_sessions", g.MaxSessions),
		zap.Int("routes", len(g.table.Routes())),
		zap.String("transient_errors", g.TransientErrors),
	)

	return nil
}

// Validate ensures the module configuration is valid.
func (g *Gate) Validate() error {
	if g.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if !strings.HasPrefix(g.LoginPath, "/") {
		return fmt.Errorf("login_path must start with /")
	}
	if g.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}
	if g.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if _, err := errorPolicy(g.TransientErrors); err != nil {
		return err
	}
	for _, to := range g.Fallbacks {
		if !strings.HasPrefix(to, "/") {
			return fmt.Errorf("fallback target %q must start with /", to)
		}
	}
	return nil
}

// ServeHTTP implements the caddyhttp.MiddlewareHandler interface.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	isAPI := r.URL.Path == g.routePrefix || strings.HasPrefix(r.URL.Path, g.routePrefix+"/")

	var route routes.Route
	if !isAPI {
		// The login page itself is never gated.
		if r.URL.Path == g.LoginPath {
			return next.ServeHTTP(w, r)
		}
		var ok bool
		if route, ok = g.table.Match(r.URL.Path); !ok {
			return next.ServeHTTP(w, r)
		}
	}

	// Extract or generate request ID for tracing
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	r = r.WithContext(auth.SetRequestID(r.Context(), requestID))
	w.Header().Set("X-Request-ID", requestID)

	if !isAPI {
		return g.serveGated(w, r, route, next)
	}

	switch strings.TrimPrefix(r.URL.Path, g.routePrefix) {
	case "/health":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Sessions: g.sessions.Registry.Len()})
	case "/openapi.json":
		g.openAPIHandler.ServeHTTP(w, r)
	case "/login":
		g.sessionHandler.ServeLogin(w, r)
	case "/logout":
		g.sessionHandler.ServeLogout(w, r)
	case "/me":
		g.sessionHandler.ServeMe(w, r)
	case "/nav":
		g.navHandler.ServeHTTP(w, r)
	case "/access":
		g.sessionHandler.ServeAccess(w, r)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   http.StatusText(http.StatusNotFound),
			Message: "Unknown gateway endpoint",
			Code:    http.StatusNotFound,
		})
	}
	return nil
}

// serveGated runs the guards for route and hands the request to next only
// when both let it through.
func (g *Gate) serveGated(w http.ResponseWriter, r *http.Request, route routes.Route, next caddyhttp.Handler) error {
	var nextErr error
	passed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextErr = next.ServeHTTP(w, r)
	})
	g.guardMw.Protect(route.Requirement, route.Fallback, passed).ServeHTTP(w, r)
	return nextErr
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (g *Gate) UnmarshalCaddyfile(dispenser *caddyfile.Dispenser) error {
	for dispenser.Next() {
		for dispenser.NextBlock(0) {
			switch dispenser.Val() {
			case "backend_url":
				if !dispenser.Args(&g.BackendURL) {
					return dispenser.ArgErr()
				}
			case "login_path":
				if !dispenser.Args(&g.LoginPath) {
					return dispenser.ArgErr()
				}
			case "cookie_name":
				if !dispenser.Args(&g.CookieName) {
					return dispenser.ArgErr()
				}
			case "cookie_secure":
				var secureStr string
				if !dispenser.Args(&secureStr) {
					return dispenser.ArgErr()
				}
				secureStr = strings.ToLower(secureStr)
				g.CookieSecure = secureStr == "true" || secureStr == "yes" || secureStr == "1"
			case "request_timeout":
				var timeout string
				if !dispenser.Args(&timeout) {
					return dispenser.ArgErr()
				}
				duration, err := caddy.ParseDuration(timeout)
				if err != nil {
					return dispenser.Errf("invalid request_timeout: %v", err)
				}
				g.RequestTimeout = caddy.Duration(duration)
			case "session_ttl":
				var ttl string
				if !dispenser.Args(&ttl) {
					return dispenser.ArgErr()
				}
				duration, err := caddy.ParseDuration(ttl)
				if err != nil {
					return dispenser.Errf("invalid session_ttl: %v", err)
				}
				g.SessionTTL = caddy.Duration(duration)
			case "max_sessions":
				var maxStr string
				if !dispenser.Args(&maxStr) {
					return dispenser.ArgErr()
				}
				maxSessions, err := strconv.Atoi(maxStr)
				if err != nil {
					return dispenser.Errf("invalid max_sessions: %v", err)
				}
				g.MaxSessions = maxSessions
			case "route":
				// route <path> <kind> [flags...]
				args := dispenser.RemainingArgs()
				if len(args) < 2 {
					return dispenser.ArgErr()
				}
				rc := RouteConfig{Path: args[0], Kind: args[1], Flags: args[2:]}
				if _, err := rc.route(); err != nil {
					return dispenser.Errf("invalid route: %v", err)
				}
				g.Routes = append(g.Routes, rc)
			case "fallback":
				var path, to string
				if !dispenser.Args(&path, &to) {
					return dispenser.ArgErr()
				}
				if g.Fallbacks == nil {
					g.Fallbacks = make(map[string]string)
				}
				g.Fallbacks[path] = to
			case "transient_errors":
				if !dispenser.Args(&g.TransientErrors) {
					return dispenser.ArgErr()
				}
				if _, err := errorPolicy(g.TransientErrors); err != nil {
					return dispenser.Errf("%v", err)
				}
			default:
				return dispenser.Errf("unknown subdirective: %s", dispenser.Val())
			}
		}
	}
	return nil
}

// parseCaddyfile unmarshals tokens from h into a new Middleware.
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var g Gate
	err := g.UnmarshalCaddyfile(h.Dispenser)
	return &g, err
}

// Interface guards
var (
	_ caddy.Module                = (*Gate)(nil)
	_ caddy.Provisioner           = (*Gate)(nil)
	_ caddy.Validator             = (*Gate)(nil)
	_ caddyhttp.MiddlewareHandler = (*Gate)(nil)
	_ caddyfile.Unmarshaler       = (*Gate)(nil)
)
