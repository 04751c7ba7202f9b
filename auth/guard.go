package auth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrUnauthorized marks a backend answer that the session token is not valid.
var ErrUnauthorized = errors.New("unauthorized")

// NoAccessMessage is rendered in place when a requirement is not satisfied.
const NoAccessMessage = "You do not have access to this page."

// DefaultLoginPath is where guards send users without a valid session.
const DefaultLoginPath = "/login"

// Redirect reasons.
const (
	ReasonNoSession        = "no session"
	ReasonSessionInvalid   = "session invalid"
	ReasonPermissionDenied = "permission denied"
)

// Session is the part of the session store the guards depend on.
type Session interface {
	Token() string
	User() *User
	Err() error
	FetchCurrentUser(ctx context.Context) error
	Wait(ctx context.Context) error
	Logout(ctx context.Context) error
}

// ErrorPolicy controls how the authentication guard treats fetch failures
// that are not authentication errors.
type ErrorPolicy int

const (
	// InvalidateOnAnyError logs the user out on any failed fetch.
	InvalidateOnAnyError ErrorPolicy = iota
	// KeepSessionOnTransientError keeps the token on network and server
	// errors and reports the session as unavailable.
	KeepSessionOnTransientError
)

// DecisionKind is what a guard tells its caller to render.
type DecisionKind int

const (
	DecisionLoading DecisionKind = iota
	DecisionRender
	DecisionRedirect
	DecisionDenied
	DecisionUnavailable
	DecisionDiscarded
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionLoading:
		return "loading"
	case DecisionRender:
		return "render"
	case DecisionRedirect:
		return "redirect"
	case DecisionDenied:
		return "denied"
	case DecisionUnavailable:
		return "unavailable"
	case DecisionDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON responses.
func (k DecisionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Decision is the outcome of a guard.
type Decision struct {
	Kind     DecisionKind `json:"decision"`
	Location string       `json:"location,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Missing  []Flag       `json:"missing,omitempty"`
}

func loading() Decision { return Decision{Kind: DecisionLoading} }
func render() Decision  { return Decision{Kind: DecisionRender} }

func redirect(location, reason string) Decision {
	return Decision{Kind: DecisionRedirect, Location: location, Reason: reason}
}

// GuardOptions configures both guards.
type GuardOptions struct {
	LoginPath string
	Policy    ErrorPolicy
	Logger    *zap.Logger
}

func (o GuardOptions) withDefaults() GuardOptions {
	if o.LoginPath == "" {
		o.LoginPath = DefaultLoginPath
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// AuthState is the state of an AuthenticationGuard.
type AuthState string

const (
	AuthUnknown        AuthState = "unknown"
	AuthNoSession      AuthState = "no-session"
	AuthChecking       AuthState = "checking"
	AuthAuthenticated  AuthState = "authenticated"
	AuthSessionInvalid AuthState = "session-invalid"
	AuthUnavailable    AuthState = "unavailable"
)

// AuthenticationGuard verifies that a valid session exists. One guard
// corresponds to one mount of a protected subtree; once it has reached a
// final state it keeps returning the same decision.
type AuthenticationGuard struct {
	session Session
	opts    GuardOptions

	mu       sync.Mutex
	state    AuthState
	decision *Decision
}

// NewAuthenticationGuard creates a guard in the unknown state.
func NewAuthenticationGuard(session Session, opts GuardOptions) *AuthenticationGuard {
	return &AuthenticationGuard{
		session: session,
		opts:    opts.withDefaults(),
		state:   AuthUnknown,
	}
}

// State returns the current state.
func (g *AuthenticationGuard) State() AuthState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Current returns what should be rendered right now: the final decision once
// settled, a loading indicator before that.
func (g *AuthenticationGuard) Current() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decision != nil {
		return *g.decision
	}
	return loading()
}

// Resolve runs the guard to a final decision. Cancelling ctx stands for the
// consumer going away: Resolve then returns DecisionDiscarded and leaves the
// guard state as it was, while the underlying fetch is left to finish.
func (g *AuthenticationGuard) Resolve(ctx context.Context) Decision {
	g.mu.Lock()
	if g.decision != nil {
		d := *g.decision
		g.mu.Unlock()
		return d
	}
	g.mu.Unlock()

	if g.session.Token() == "" {
		return g.settle(AuthNoSession, redirect(g.opts.LoginPath, ReasonNoSession))
	}

	// An already loaded record skips the checking state entirely.
	if g.session.User() != nil {
		return g.settle(AuthAuthenticated, render())
	}

	g.mu.Lock()
	g.state = AuthChecking
	g.mu.Unlock()

	err := g.session.FetchCurrentUser(ctx)
	if err == nil {
		// Another consumer may own the in-flight fetch.
		err = g.session.Wait(ctx)
		if err == nil {
			err = g.session.Err()
		}
	}
	if ctx.Err() != nil {
		return Decision{Kind: DecisionDiscarded}
	}

	if err == nil {
		if g.session.User() != nil {
			return g.settle(AuthAuthenticated, render())
		}
		// Token vanished while we waited (logout elsewhere).
		return g.settle(AuthNoSession, redirect(g.opts.LoginPath, ReasonNoSession))
	}

	if g.opts.Policy == KeepSessionOnTransientError && !errors.Is(err, ErrUnauthorized) {
		g.opts.Logger.Warn("current user unavailable, keeping session",
			zap.Error(err),
		)
		return g.settle(AuthUnavailable, Decision{Kind: DecisionUnavailable, Reason: err.Error()})
	}

	g.opts.Logger.Info("session invalid, logging out",
		zap.Error(err),
	)
	if logoutErr := g.session.Logout(context.WithoutCancel(ctx)); logoutErr != nil {
		g.opts.Logger.Warn("failed to clear session", zap.Error(logoutErr))
	}
	return g.settle(AuthSessionInvalid, redirect(g.opts.LoginPath, ReasonSessionInvalid))
}

func (g *AuthenticationGuard) settle(state AuthState, d Decision) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = state
	g.decision = &d
	return d
}

// AuthzState is the state of an AuthorizationGuard.
type AuthzState string

const (
	AuthzLoading             AuthzState = "loading"
	AuthzDenied              AuthzState = "denied"
	AuthzGranted             AuthzState = "granted"
	AuthzRedirectedNoSession AuthzState = "redirected-no-session"
)

// AuthorizationGuard checks one permission requirement against the loaded
// user record. It never fetches; it only waits for a fetch in progress.
type AuthorizationGuard struct {
	session     Session
	requirement Requirement
	fallback    string
	opts        GuardOptions

	mu    sync.Mutex
	state AuthzState
}

// NewAuthorizationGuard creates a guard for req. When fallback is non-empty a
// denial redirects there instead of rendering the no-access message.
func NewAuthorizationGuard(session Session, req Requirement, fallback string, opts GuardOptions) *AuthorizationGuard {
	return &AuthorizationGuard{
		session:     session,
		requirement: req,
		fallback:    fallback,
		opts:        opts.withDefaults(),
		state:       AuthzLoading,
	}
}

// State returns the current state.
func (g *AuthorizationGuard) State() AuthzState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Resolve evaluates the requirement once the user record has settled.
func (g *AuthorizationGuard) Resolve(ctx context.Context) Decision {
	if err := g.session.Wait(ctx); err != nil {
		return Decision{Kind: DecisionDiscarded}
	}

	user := g.session.User()
	if user == nil {
		g.setState(AuthzRedirectedNoSession)
		return redirect(g.opts.LoginPath, ReasonNoSession)
	}

	if Evaluate(user, g.requirement) {
		g.setState(AuthzGranted)
		return render()
	}

	g.setState(AuthzDenied)
	g.opts.Logger.Debug("permission denied",
		zap.String("username", user.Username),
		zap.Stringer("requirement", g.requirement),
	)
	if g.fallback != "" {
		return redirect(g.fallback, ReasonPermissionDenied)
	}
	return Decision{
		Kind:    DecisionDenied,
		Reason:  NoAccessMessage,
		Missing: Missing(user, g.requirement),
	}
}

func (g *AuthorizationGuard) setState(s AuthzState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Gate composes the two guards for a protected route: authentication outside,
// authorization inside.
type Gate struct {
	session Session
	opts    GuardOptions
}

// NewGate creates a gate over session.
func NewGate(session Session, opts GuardOptions) *Gate {
	return &Gate{session: session, opts: opts.withDefaults()}
}

// Resolve runs both guards for a route declaring req and fallback.
func (g *Gate) Resolve(ctx context.Context, req Requirement, fallback string) Decision {
	authn := NewAuthenticationGuard(g.session, g.opts)
	if d := authn.Resolve(ctx); d.Kind != DecisionRender {
		return d
	}
	return NewAuthorizationGuard(g.session, req, fallback, g.opts).Resolve(ctx)
}
