package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/provider"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// ErrNotRunning is returned by WaitReady before Start or after Close.
var ErrNotRunning = errors.New("auth service is not running")

// Deriver builds an ApplicationUser from a verified identity.
type Deriver interface {
	Derive(ctx context.Context, identity domain.Identity) (domain.ApplicationUser, error)
}

type command struct {
	run  func()
	done chan struct{}
}

// AuthService is the single source of truth for who is signed in. Provider
// events and Login/Logout calls are applied by one goroutine in arrival
// order; readers get snapshots and never wait on it.
type AuthService struct {
	Provider        provider.IdentityProvider
	Resolver        Deriver
	Logger          *slog.Logger
	Metrics         *Metrics
	ProviderTimeout time.Duration // zero means no per-call bound

	mu    sync.RWMutex
	state domain.AuthState

	cmds    chan command
	ready   chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
	sub     provider.Subscription
	running atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
}

func NewAuthService(p provider.IdentityProvider, resolver Deriver, logger *slog.Logger, metrics *Metrics, timeout time.Duration) *AuthService {
	return &AuthService{
		Provider:        p,
		Resolver:        resolver,
		Logger:          logger,
		Metrics:         metrics,
		ProviderTimeout: timeout,
		state:           domain.AuthState{Loading: true},
		cmds:            make(chan command),
		ready:           make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start subscribes to the provider, resolves the startup session and begins
// processing events. Only the first call has any effect. The service stops
// when ctx is cancelled or Close is called.
func (s *AuthService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		events, sub := s.Provider.Subscribe()
		s.sub = sub

		loopCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.running.Store(true)

		go s.run(loopCtx, events)
	})
}

// Close stops the event loop and releases the provider subscription. It is
// safe to call more than once, and before Start.
func (s *AuthService) Close() {
	s.closeOnce.Do(func() {
		// Claim startOnce so a later Start is a no-op.
		s.startOnce.Do(func() {})

		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.doneCh
		s.sub.Unsubscribe()
	})
}

// WaitReady blocks until the startup session query has settled.
func (s *AuthService) WaitReady(ctx context.Context) error {
	if !s.running.Load() {
		select {
		case <-s.ready:
			return nil
		default:
			return ErrNotRunning
		}
	}
	select {
	case <-s.ready:
		return nil
	case <-s.doneCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the startup query has settled.
func (s *AuthService) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *AuthService) State() domain.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *AuthService) CurrentUser() *domain.ApplicationUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User.Clone()
}

func (s *AuthService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Authenticated
}

func (s *AuthService) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

func (s *AuthService) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}

// Login validates the email, asks the provider to verify the credentials and
// derives the application user. Failures are reported through LastError and
// a false return.
func (s *AuthService) Login(ctx context.Context, email, password string) bool {
	var ok bool
	if !s.do(ctx, func() { ok = s.login(ctx, email, password) }) {
		return false
	}
	return ok
}

// Logout signs out with the provider. When sign-out fails the user stays
// signed in and LastError is set.
func (s *AuthService) Logout(ctx context.Context) {
	s.do(ctx, func() { s.logout(ctx) })
}

// do hands fn to the event loop and waits for it to finish. It reports false
// when the loop is not running or ctx ends before fn was accepted.
func (s *AuthService) do(ctx context.Context, fn func()) bool {
	if !s.running.Load() {
		slogx.FromContext(ctx).Warn("auth service not running, command ignored")
		return false
	}

	cmd := command{run: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.doneCh:
		return false
	case <-ctx.Done():
		return false
	}
	<-cmd.done
	return true
}

func (s *AuthService) run(ctx context.Context, events <-chan domain.SessionEvent) {
	defer close(s.doneCh)
	defer s.running.Store(false)

	s.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.Logger.Warn("identity provider closed the event stream")
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		case cmd := <-s.cmds:
			cmd.run()
			close(cmd.done)
		}
	}
}

func (s *AuthService) initialize(ctx context.Context) {
	defer close(s.ready)

	pctx, cancel := s.providerContext(ctx)
	sess, err := s.Provider.CurrentSession(pctx)
	cancel()
	if err != nil {
		s.Logger.Warn("failed to load current session", slog.Any("error", err))
	}

	if sess.HasUser() {
		s.settle(ctx, *sess.Identity)
	}
	s.update(func(st *domain.AuthState) { st.Loading = false })
	s.Logger.Info("auth state settled", slog.Bool("authenticated", s.IsAuthenticated()))
}

func (s *AuthService) handleEvent(ctx context.Context, ev domain.SessionEvent) {
	s.Metrics.event(ev.Kind)
	s.Logger.Debug("session event", slog.String("kind", string(ev.Kind)))

	s.update(func(st *domain.AuthState) { st.Error = "" })

	if ev.Session.HasUser() {
		s.settle(ctx, *ev.Session.Identity)
	} else {
		s.update(func(st *domain.AuthState) {
			st.User = nil
			st.Authenticated = false
		})
	}
	s.update(func(st *domain.AuthState) { st.Loading = false })
}

// settle derives the user for identity and installs it. An identity without
// an email clears the user instead.
func (s *AuthService) settle(ctx context.Context, identity domain.Identity) bool {
	user, err := s.Resolver.Derive(ctx, identity)
	if err != nil {
		s.Logger.Warn("cannot derive user", slog.String("identity_id", identity.ID), slog.Any("error", err))
		s.update(func(st *domain.AuthState) {
			st.User = nil
			st.Authenticated = false
			st.Error = MsgMissingEmail
		})
		return false
	}

	s.update(func(st *domain.AuthState) {
		st.User = &user
		st.Authenticated = true
	})
	return true
}

func (s *AuthService) login(ctx context.Context, email, password string) bool {
	l := slogx.FromContext(ctx)

	s.update(func(st *domain.AuthState) {
		st.Loading = true
		st.Error = ""
	})
	defer s.update(func(st *domain.AuthState) { st.Loading = false })

	if !ValidEmail(email) {
		s.Metrics.login("invalid_email")
		s.update(func(st *domain.AuthState) { st.Error = MsgInvalidEmail })
		return false
	}

	pctx, cancel := s.providerContext(ctx)
	identity, err := s.Provider.VerifyCredentials(pctx, strings.TrimSpace(email), password)
	cancel()

	if err != nil {
		msg := ClassifyLoginError(err)
		s.Metrics.login("rejected")
		l.Info("login rejected", slog.String("reason", provider.Message(err)))
		s.update(func(st *domain.AuthState) { st.Error = msg })
		return false
	}
	if identity == nil {
		s.Metrics.login("no_user")
		s.update(func(st *domain.AuthState) { st.Error = MsgNoUserReturned })
		return false
	}

	if !s.settle(ctx, *identity) {
		s.Metrics.login("missing_email")
		return false
	}

	s.Metrics.login("success")
	l.Info("login succeeded", slog.String("user_id", identity.ID))
	return true
}

func (s *AuthService) logout(ctx context.Context) {
	l := slogx.FromContext(ctx)

	s.update(func(st *domain.AuthState) { st.Loading = true })

	pctx, cancel := s.providerContext(ctx)
	err := s.Provider.SignOut(pctx)
	cancel()

	if err != nil {
		s.Metrics.logout("error")
		l.Error("sign out failed", slog.Any("error", err))
		s.update(func(st *domain.AuthState) {
			st.Error = MsgSignOutFailed
			st.Loading = false
		})
		return
	}

	s.Metrics.logout("success")
	s.update(func(st *domain.AuthState) {
		st.User = nil
		st.Authenticated = false
		st.Error = ""
		st.Loading = false
	})
}

func (s *AuthService) update(fn func(st *domain.AuthState)) {
	s.mu.Lock()
	fn(&s.state)
	authenticated := s.state.Authenticated
	s.mu.Unlock()

	s.Metrics.authenticated(authenticated)
}

func (s *AuthService) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ProviderTimeout > 0 {
		return context.WithTimeout(ctx, s.ProviderTimeout)
	}
	return context.WithCancel(ctx)
}
