// Package local is an identity provider backed by the service's own store:
// argon2id credentials, EdDSA signed access tokens and refresh sessions
// persisted by fingerprint.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/provider"
	"github.com/aussiebroadwan/portal/internal/auth/store"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

var (
	errInvalidCredentials = &provider.Error{Code: provider.CodeInvalidCredentials, Message: "Invalid login credentials"}
	errEmailNotConfirmed  = &provider.Error{Code: provider.CodeEmailNotConfirmed, Message: "Email not confirmed"}
	errRateLimited        = &provider.Error{Code: provider.CodeRateLimited, Message: "Request rate limit reached"}
)

type Config struct {
	Issuer     string
	Audience   []string
	SessionTTL time.Duration // access token lifetime
	RefreshTTL time.Duration // refresh session lifetime

	// RefreshInterval is how often the session is checked. Access tokens
	// expiring within one interval are refreshed.
	RefreshInterval time.Duration

	// SessionFile keeps the refresh token across restarts. Empty disables it.
	SessionFile string

	// Sign-in attempts allowed per email within AttemptWindow.
	MaxAttempts   int
	AttemptWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = jwtx.DefaultSessionTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = time.Minute
	}
	return c
}

// Provider implements provider.IdentityProvider. It holds at most one
// session at a time, like a browser client would.
type Provider struct {
	store    store.Store
	hasher   cryptox.Hasher
	signer   jwtx.Signer
	keys     *jwtx.KeySet
	verifier jwtx.Verifier
	cfg      Config
	logger   *slog.Logger
	broker   *provider.Broker
	now      func() time.Time

	mu      sync.Mutex
	current *domain.Session
	closed  bool

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
}

func New(st store.Store, hasher cryptox.Hasher, signer jwtx.Signer, cfg Config, logger *slog.Logger) (*Provider, error) {
	keys := jwtx.NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("register signing key: %w", err)
	}
	cfg = cfg.withDefaults()

	return &Provider{
		store:    st,
		hasher:   hasher,
		signer:   signer,
		keys:     keys,
		verifier: jwtx.NewVerifierEdDSA(keys, cfg.Issuer, cfg.Audience),
		cfg:      cfg,
		logger:   logger,
		broker:   provider.NewBroker(),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// JWKS returns the public keys access tokens can be verified with.
func (p *Provider) JWKS() jwtx.JWKS {
	return p.keys.PublicJWKS()
}

// Start restores a persisted session, announces it as INITIAL_SESSION and
// starts the refresh loop. Subsequent calls do nothing.
func (p *Provider) Start(ctx context.Context) error {
	var err error
	p.startOnce.Do(func() {
		p.mu.Lock()
		err = p.restoreLocked(ctx)
		initial := cloneSession(p.current)
		p.started = true
		p.mu.Unlock()

		p.broker.Publish(domain.SessionEvent{Kind: domain.EventInitialSession, Session: initial})
		go p.run()
	})
	return err
}

// Close stops the refresh loop and closes every subscription.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		started := p.started
		p.mu.Unlock()

		close(p.stopCh)
		if started {
			<-p.doneCh
		}
		p.broker.Close()
	})
	return nil
}

func (p *Provider) Subscribe() (<-chan domain.SessionEvent, provider.Subscription) {
	return p.broker.Subscribe()
}

func (p *Provider) CurrentSession(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, provider.ErrClosed
	}
	if p.current == nil {
		return nil, nil
	}

	if _, err := p.verifier.Verify(p.current.AccessToken); err != nil {
		if !errors.Is(err, jwtx.ErrExpired) {
			return nil, fmt.Errorf("verify access token: %w", err)
		}
		if err := p.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return cloneSession(p.current), nil
}

func (p *Provider) VerifyCredentials(ctx context.Context, email, password string) (*domain.Identity, error) {
	if !p.allow(email) {
		return nil, errRateLimited
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, provider.ErrClosed
	}

	cred, err := p.store.Credentials().GetCredentialByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if err := p.hasher.Verify(password, cred.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if cred.ConfirmedAt == nil {
		return nil, errEmailNotConfirmed
	}

	identity := domain.Identity{ID: cred.ProfileID, Email: cred.Email, Metadata: cred.Metadata.Clone()}
	sess, err := p.issueLocked(ctx, identity)
	if err != nil {
		return nil, err
	}

	if prev := p.current; prev != nil {
		if err := p.store.RefreshSessions().RevokeRefreshSession(ctx, prev.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("failed to revoke replaced session", slog.String("session_id", prev.ID), slog.Any("error", err))
		}
	}
	p.current = sess
	p.persist(sess.RefreshToken)
	p.broker.Publish(domain.SessionEvent{Kind: domain.EventSignedIn, Session: cloneSession(sess)})

	out := identity
	out.Metadata = identity.Metadata.Clone()
	return &out, nil
}

// SignOut revokes the current refresh session. With no session it is a
// no-op. When the revoke fails the session is kept.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return provider.ErrClosed
	}
	if p.current == nil {
		return nil
	}

	err := p.store.RefreshSessions().RevokeRefreshSession(ctx, p.current.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}

	p.endLocked()
	return nil
}

func (p *Provider) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Provider) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RefreshInterval)
	defer cancel()

	p.mu.Lock()
	if p.current != nil && p.current.ExpiresAt.Sub(p.now()) <= p.cfg.RefreshInterval {
		if err := p.refreshLocked(ctx); err != nil {
			p.logger.Warn("session refresh failed", slog.Any("error", err))
		}
	}
	p.mu.Unlock()

	p.pruneLimiters()
}

// refreshLocked mints a new access token from the current refresh session,
// or ends the session when the refresh session is gone.
func (p *Provider) refreshLocked(ctx context.Context) error {
	cur := p.current
	now := p.now()

	rs, err := p.store.RefreshSessions().GetRefreshSessionByHash(ctx, cryptox.FingerprintToken(cur.RefreshToken))
	switch {
	case errors.Is(err, store.ErrNotFound):
		p.endLocked()
		return nil
	case err != nil:
		return fmt.Errorf("load refresh session: %w", err)
	case rs.Revoked || !now.Before(rs.ExpiresAt):
		p.endLocked()
		return nil
	}

	identity := *cur.Identity
	kind := domain.EventTokenRefreshed
	cred, err := p.store.Credentials().GetCredentialByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if !reflect.DeepEqual(cred.Metadata, identity.Metadata) {
			identity.Metadata = cred.Metadata.Clone()
			kind = domain.EventUserUpdated
		}
	case errors.Is(err, store.ErrNotFound):
		p.endLocked()
		return nil
	default:
		return fmt.Errorf("load credential: %w", err)
	}

	sess, err := p.mint(identity, rs.ID, cur.RefreshToken, now)
	if err != nil {
		return err
	}
	p.current = sess
	p.broker.Publish(domain.SessionEvent{Kind: kind, Session: cloneSession(sess)})
	return nil
}

func (p *Provider) endLocked() {
	p.current = nil
	p.forget()
	p.broker.Publish(domain.SessionEvent{Kind: domain.EventSignedOut})
}

func (p *Provider) issueLocked(ctx context.Context, identity domain.Identity) (*domain.Session, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	now := p.now()
	rs, err := p.store.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: identity.ID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: now.Add(p.cfg.RefreshTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create refresh session: %w", err)
	}
	return p.mint(identity, rs.ID, raw, now)
}

func (p *Provider) mint(identity domain.Identity, sid, refresh string, now time.Time) (*domain.Session, error) {
	claims := jwtx.NewSessionClaims(
		identity.ID, sid, identity.Email, identity.Metadata,
		p.cfg.SessionTTL, p.cfg.Issuer, p.cfg.Audience, now,
	)
	token, err := p.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &domain.Session{
		ID:           sid,
		Identity:     &identity,
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(p.cfg.SessionTTL),
	}, nil
}

// restoreLocked loads the persisted refresh token, if any, and rebuilds the
// session from the store. Stale files are removed. Store failures leave the
// provider without a session and keep the file for the next start.
func (p *Provider) restoreLocked(ctx context.Context) error {
	if p.cfg.SessionFile == "" {
		return nil
	}
	raw, err := os.ReadFile(p.cfg.SessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		p.logger.Warn("failed to read session file", slog.Any("error", err))
		return nil
	}
	refresh := strings.TrimSpace(string(raw))

	rs, err := p.store.RefreshSessions().GetRefreshSessionByHash(ctx, cryptox.FingerprintToken(refresh))
	if err == nil && (rs.Revoked || !p.now().Before(rs.ExpiresAt)) {
		err = store.ErrNotFound
	}
	if err != nil {
		p.abandonRestore("refresh session", err)
		return nil
	}

	profile, err := p.store.Profiles().GetProfileByID(ctx, rs.ProfileID)
	if err != nil {
		p.abandonRestore("profile", err)
		return nil
	}
	cred, err := p.store.Credentials().GetCredentialByEmail(ctx, profile.Email)
	if err != nil {
		p.abandonRestore("credential", err)
		return nil
	}

	sess, err := p.mint(domain.Identity{ID: rs.ProfileID, Email: cred.Email, Metadata: cred.Metadata}, rs.ID, refresh, p.now())
	if err != nil {
		return err
	}
	p.current = sess
	p.logger.Info("restored session", slog.String("session_id", rs.ID))
	return nil
}

// abandonRestore starts anonymous. Only a missing record discards the file.
func (p *Provider) abandonRestore(what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Info("persisted session is no longer valid", slog.String("missing", what))
		p.forget()
		return
	}
	p.logger.Warn("failed to restore session", slog.String("load", what), slog.Any("error", err))
}

func (p *Provider) persist(refresh string) {
	if p.cfg.SessionFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.cfg.SessionFile), 0o700); err != nil {
		p.logger.Warn("failed to create session directory", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(p.cfg.SessionFile, []byte(refresh), 0o600); err != nil {
		p.logger.Warn("failed to persist session", slog.Any("error", err))
	}
}

func (p *Provider) forget() {
	if p.cfg.SessionFile == "" {
		return
	}
	if err := os.Remove(p.cfg.SessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("failed to remove session file", slog.Any("error", err))
	}
}

func (p *Provider) allow(email string) bool {
	key := strings.ToLower(email)

	p.limMu.Lock()
	defer p.limMu.Unlock()

	lim, ok := p.limiters[key]
	if !ok {
		every := p.cfg.AttemptWindow / time.Duration(p.cfg.MaxAttempts)
		lim = rate.NewLimiter(rate.Every(every), p.cfg.MaxAttempts)
		p.limiters[key] = lim
	}
	return lim.Allow()
}

// pruneLimiters drops limiters that have refilled completely.
func (p *Provider) pruneLimiters() {
	p.limMu.Lock()
	defer p.limMu.Unlock()

	for key, lim := range p.limiters {
		if lim.Tokens() >= float64(lim.Burst()) {
			delete(p.limiters, key)
		}
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Identity != nil {
		id := *s.Identity
		id.Metadata = s.Identity.Metadata.Clone()
		out.Identity = &id
	}
	return &out
}

var _ provider.IdentityProvider = (*Provider)(nil)
