package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/client"
	"github.com/stockroom-labs/inventory-gate/nav"
	"github.com/stockroom-labs/inventory-gate/routes"
	"github.com/stockroom-labs/inventory-gate/session"
	"go.uber.org/zap"
)

// DefaultCookieName is the cookie holding the bearer token in the browser.
const DefaultCookieName = session.TokenKey

// CookieConfig describes the token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
}

// Sessions maps requests to per-token stores. The token is read from the
// cookie, or from an Authorization: Bearer header for API clients.
type Sessions struct {
	Registry *session.Registry
	Cookie   CookieConfig
}

// TokenFrom extracts the bearer token of a request.
func (s *Sessions) TokenFrom(r *http.Request) string {
	if c, err := r.Cookie(s.Cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// SessionFor implements auth.SessionResolver.
func (s *Sessions) SessionFor(r *http.Request) auth.Session {
	return s.Registry.Store(s.TokenFrom(r))
}

// Store returns the concrete store for a request.
func (s *Sessions) Store(r *http.Request) *session.Store {
	return s.Registry.Store(s.TokenFrom(r))
}

// Invalidate implements auth.SessionInvalidator. It drops the request's
// store and expires the token cookie.
func (s *Sessions) Invalidate(w http.ResponseWriter, r *http.Request) {
	s.Registry.Forget(s.TokenFrom(r))
	s.expireCookie(w)
}

func (s *Sessions) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Cookie.Name,
		Value:    "",
		Path:     s.Cookie.Path,
		HttpOnly: true,
		Secure:   s.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// SessionHandler serves the login, logout, profile, navigation and access
// endpoints of the gateway.
type SessionHandler struct {
	sessions *Sessions
	menu     *nav.Menu
	routes   *routes.Table
	guards   auth.GuardOptions
	logger   *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions *Sessions, menu *nav.Menu, table *routes.Table, guards auth.GuardOptions, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions: sessions,
		menu:     menu,
		routes:   table,
		guards:   guards,
		logger:   logger,
	}
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ServeLogin exchanges credentials, loads the user record and sets the token
// cookie. It answers only after the record fetch has settled.
func (h *SessionHandler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	requestID := auth.GetRequestIDFromContext(r.Context())
	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	if body.Username == "" || body.Password == "" {
		sendError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	store := h.sessions.Registry.Store("")
	if err := store.SignIn(r.Context(), body.Username, body.Password); err != nil {
		switch {
		case errors.Is(err, client.ErrInvalidCredentials):
			sendError(w, "invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, client.ErrUnauthorized):
			sendError(w, "session rejected by backend", http.StatusUnauthorized)
		default:
			h.logger.Error("Login failed", zap.Error(err), zap.String("request_id", requestID))
			sendError(w, "Login failed, try again later", http.StatusBadGateway)
		}
		return
	}

	h.sessions.Registry.Adopt(store)
	h.setCookie(w, store.Token())

	h.logger.Info("User logged in",
		zap.String("username", store.User().Username),
		zap.String("request_id", requestID),
	)
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"user": store.User(),
	})
}

// ServeLogout clears the session. It is idempotent.
func (h *SessionHandler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := h.sessions.TokenFrom(r)
	if token != "" {
		if err := h.sessions.Registry.Store(token).Logout(r.Context()); err != nil {
			h.logger.Warn("Failed to clear session", zap.Error(err))
		}
		h.sessions.Registry.Forget(token)
	}
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ServeMe returns the current-user state {data, isLoading, isError}. Without
// a token nothing is fetched and the empty state is returned.
func (h *SessionHandler) ServeMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := h.sessions.Store(r)
	if store.Token() != "" {
		if err := store.FetchCurrentUser(r.Context()); err == nil {
			store.Wait(r.Context())
		}
		if store.Token() == "" {
			// the backend rejected the token
			h.sessions.Invalidate(w, r)
		}
	}
	sendJSON(w, http.StatusOK, store.Snapshot())
}

// ServeNav returns the navigation entries visible to the session's user. It
// must run behind the authentication middleware.
func (h *SessionHandler) ServeNav(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := auth.GetSessionFromContext(r.Context())
	if s == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.menu.For(s.User()),
	})
}

// ServeAccess reports the guard decision for ?path=. Paths outside the route
// table are reported as unprotected.
func (h *SessionHandler) ServeAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		sendError(w, "path query parameter is required", http.StatusBadRequest)
		return
	}

	route, ok := h.routes.Match(path)
	if !ok {
		sendJSON(w, http.StatusOK, map[string]interface{}{
			"path":      path,
			"protected": false,
		})
		return
	}

	d := auth.NewGate(h.sessions.SessionFor(r), h.guards).Resolve(r.Context(), route.Requirement, route.Fallback)
	if d.Kind == auth.DecisionDiscarded {
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"path":      path,
		"protected": true,
		"route":     route,
		"result":    d,
	})
}

func (h *SessionHandler) setCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     h.sessions.Cookie.Name,
		Value:    token,
		Path:     h.sessions.Cookie.Path,
		HttpOnly: true,
		Secure:   h.sessions.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if exp, ok := session.TokenExpiry(token); ok {
		c.Expires = exp
	}
	http.SetCookie(w, c)
}

func (h *SessionHandler) clearCookie(w http.ResponseWriter) {
	h.sessions.expireCookie(w)
}

// sendError sends a JSON error response.
func sendError(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, statusCode, map[string]interface{}{
		"error":   http.StatusText(statusCode),
		"message": message,
		"code":    statusCode,
	})
}

func sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
