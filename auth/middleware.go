package auth

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ContextKeySession is the context key for the request's session.
	ContextKeySession contextKey = "session"
	// ContextKeyRequestID is the context key for the request ID (for tracing).
	ContextKeyRequestID contextKey = "request_id"
)

// SessionResolver finds the session a request belongs to.
type SessionResolver interface {
	SessionFor(r *http.Request) Session
}

// SessionResolverFunc adapts a function to SessionResolver.
type SessionResolverFunc func(r *http.Request) Session

func (f SessionResolverFunc) SessionFor(r *http.Request) Session { return f(r) }

// SessionInvalidator is implemented by resolvers that keep durable token
// state, such as a cookie, which must be dropped once the backend rejects the
// token.
type SessionInvalidator interface {
	Invalidate(w http.ResponseWriter, r *http.Request)
}

// Middleware renders guard decisions over HTTP.
type Middleware struct {
	sessions SessionResolver
	opts     GuardOptions
}

// NewMiddleware creates the guard middleware.
func NewMiddleware(sessions SessionResolver, opts GuardOptions) *Middleware {
	return &Middleware{
		sessions: sessions,
		opts:     opts.withDefaults(),
	}
}

// Authenticate runs the authentication guard and lets the request through
// only for an authenticated session, which is then available through
// GetSessionFromContext.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := m.sessions.SessionFor(r)
		d := NewAuthenticationGuard(session, m.opts).Resolve(r.Context())
		if d.Kind != DecisionRender {
			if d.Reason == ReasonSessionInvalid {
				if inv, ok := m.sessions.(SessionInvalidator); ok {
					inv.Invalidate(w, r)
				}
			}
			m.WriteDecision(w, r, d)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetSession(r.Context(), session)))
	})
}

// Authorize gates the wrapped handler on req. It expects Authenticate to
// have run first.
func (m *Middleware) Authorize(req Requirement, fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r.Context())
			if session == nil {
				m.WriteDecision(w, r, redirect(m.opts.LoginPath, ReasonNoSession))
				return
			}
			d := NewAuthorizationGuard(session, req, fallback, m.opts).Resolve(r.Context())
			if d.Kind != DecisionRender {
				m.WriteDecision(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect is Authenticate followed by Authorize.
func (m *Middleware) Protect(req Requirement, fallback string, next http.Handler) http.Handler {
	return m.Authenticate(m.Authorize(req, fallback)(next))
}

var noAccessPage = template.Must(template.New("no-access").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>No access</title></head>
<body><main><h1>No access</h1><p>{{.}}</p><p><a href="/">Back to dashboard</a></p></main></body></html>
`))

// WriteDecision writes a non-render decision. Browsers get redirects and an
// HTML no-access page; requests that accept JSON get JSON bodies instead.
func (m *Middleware) WriteDecision(w http.ResponseWriter, r *http.Request, d Decision) {
	wantsJSON := WantsJSON(r)
	switch d.Kind {
	case DecisionRedirect:
		if wantsJSON {
			status := http.StatusUnauthorized
			if d.Reason == ReasonPermissionDenied {
				status = http.StatusForbidden
			}
			writeJSON(w, status, d)
			return
		}
		http.Redirect(w, r, d.Location, http.StatusFound)
	case DecisionDenied:
		if wantsJSON {
			writeJSON(w, http.StatusForbidden, d)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		if err := noAccessPage.Execute(w, d.Reason); err != nil {
			m.opts.Logger.Warn("failed to render no-access page", zap.Error(err))
		}
	case DecisionUnavailable, DecisionLoading:
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, d)
	case DecisionDiscarded:
		// The client went away; nothing to write.
	default:
		writeJSON(w, http.StatusInternalServerError, d)
	}
}

// WantsJSON reports whether the request prefers a JSON answer.
func WantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetSessionFromContext retrieves the authenticated session from the request context.
func GetSessionFromContext(ctx context.Context) Session {
	s, _ := ctx.Value(ContextKeySession).(Session)
	return s
}

// SetSession stores the session in the context.
func SetSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, s)
}

// SetRequestID sets the request ID in the context.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestIDFromContext retrieves the request ID from the request context.
func GetRequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(ContextKeyRequestID).(string)
	return requestID
}
