// Package oidc is an identity provider backed by an external OpenID Connect
// server. Credentials are checked with the resource owner password grant and
// identities come from the verified ID token.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/provider"
	"github.com/aussiebroadwan/portal/pkg/idx"
)

type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Claims copied into metadata under "role" and "name". A role claim may
	// hold a string or a list of strings.
	RoleClaim string
	NameClaim string

	RefreshInterval time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Scopes) == 0 {
		c.Scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}
	if c.RoleClaim == "" {
		c.RoleClaim = domain.MetadataKeyRole
	}
	if c.NameClaim == "" {
		c.NameClaim = domain.MetadataKeyName
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Minute
	}
	return c
}

// registered claims that describe the token rather than the user
var tokenClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"azp": {}, "nonce": {}, "at_hash": {}, "c_hash": {}, "auth_time": {},
	"sid": {}, "typ": {}, "acr": {}, "session_state": {},
}

type Provider struct {
	oauth         *oauth2.Config
	verifier      *gooidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client
	cfg           Config
	logger        *slog.Logger
	broker        *provider.Broker
	now           func() time.Time

	mu      sync.Mutex
	current *domain.Session
	token   *oauth2.Token
	closed  bool

	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
}

// New discovers the issuer's endpoints and keys.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc: issuer url and client id are required")
	}

	discovered, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := discovered.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to read discovery document: %w", err)
	}

	cfg = cfg.withDefaults()
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     discovered.Endpoint(),
		Scopes:       cfg.Scopes,
	}
	verifier := discovered.Verifier(&gooidc.Config{ClientID: cfg.ClientID})

	p := NewWithVerifier(oauthCfg, verifier, cfg, logger)
	p.revocationURL = extra.RevocationEndpoint
	return p, nil
}

// NewWithVerifier builds a provider from explicit endpoints, skipping
// discovery.
func NewWithVerifier(oauthCfg *oauth2.Config, verifier *gooidc.IDTokenVerifier, cfg Config, logger *slog.Logger) *Provider {
	return &Provider{
		oauth:      oauthCfg,
		verifier:   verifier,
		httpClient: http.DefaultClient,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		broker:     provider.NewBroker(),
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// SetRevocationURL overrides the discovered token revocation endpoint.
func (p *Provider) SetRevocationURL(u string) { p.revocationURL = u }

// Start announces INITIAL_SESSION and starts the refresh loop.
func (p *Provider) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.started = true
		initial := cloneSession(p.current)
		p.mu.Unlock()

		p.broker.Publish(domain.SessionEvent{Kind: domain.EventInitialSession, Session: initial})
		go p.run()
	})
	return nil
}

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
	if !p.token.Expiry.IsZero() && !p.now().Before(p.token.Expiry) {
		if err := p.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return cloneSession(p.current), nil
}

func (p *Provider) VerifyCredentials(ctx context.Context, email, password string) (*domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, provider.ErrClosed
	}

	token, err := p.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, translate(err)
	}

	identity, err := p.identityFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		p.logger.Warn("token response carried no id_token")
		return nil, nil
	}

	p.token = token
	p.current = p.session(idx.New().String(), identity, token)
	p.broker.Publish(domain.SessionEvent{Kind: domain.EventSignedIn, Session: cloneSession(p.current)})

	out := *identity
	out.Metadata = identity.Metadata.Clone()
	return &out, nil
}

// SignOut revokes the refresh token when the issuer advertises a revocation
// endpoint. A failed revoke keeps the session.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return provider.ErrClosed
	}
	if p.current == nil {
		return nil
	}

	if p.revocationURL != "" && p.token.RefreshToken != "" {
		if err := p.revoke(ctx, p.token.RefreshToken); err != nil {
			return err
		}
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
	defer p.mu.Unlock()

	if p.current == nil || p.token.Expiry.IsZero() {
		return
	}
	if p.token.Expiry.Sub(p.now()) <= p.cfg.RefreshInterval {
		if err := p.refreshLocked(ctx); err != nil {
			p.logger.Warn("session refresh failed", slog.Any("error", err))
		}
	}
}

// refreshLocked exchanges the refresh token. A rejected refresh token ends
// the session; transport failures are returned and the session is kept.
func (p *Provider) refreshLocked(ctx context.Context) error {
	if p.token.RefreshToken == "" {
		p.endLocked()
		return nil
	}

	stale := *p.token
	stale.Expiry = time.Unix(1, 0) // force the exchange
	fresh, err := p.oauth.TokenSource(ctx, &stale).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			p.endLocked()
			return nil
		}
		return fmt.Errorf("refresh token: %w", err)
	}

	identity := p.current.Identity
	if next, err := p.identityFromToken(ctx, fresh); err != nil {
		return err
	} else if next != nil {
		identity = next
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = p.token.RefreshToken
	}

	p.token = fresh
	p.current = p.session(p.current.ID, identity, fresh)
	p.broker.Publish(domain.SessionEvent{Kind: domain.EventTokenRefreshed, Session: cloneSession(p.current)})
	return nil
}

func (p *Provider) endLocked() {
	p.current = nil
	p.token = nil
	p.broker.Publish(domain.SessionEvent{Kind: domain.EventSignedOut})
}

func (p *Provider) session(sid string, identity *domain.Identity, token *oauth2.Token) *domain.Session {
	id := *identity
	return &domain.Session{
		ID:           sid,
		Identity:     &id,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}

// identityFromToken verifies the ID token carried by token. A response
// without one yields a nil identity.
func (p *Provider) identityFromToken(ctx context.Context, token *oauth2.Token) (*domain.Identity, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, nil
	}

	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	email, _ := claims["email"].(string)
	if !emailVerified(claims) {
		p.logger.Warn("ignoring unverified email claim", slog.String("sub", idToken.Subject))
		email = ""
	}
	return &domain.Identity{
		ID:       idToken.Subject,
		Email:    email,
		Metadata: p.metadata(claims),
	}, nil
}

// emailVerified reports false only when email_verified is present and not
// true. Some issuers send the claim as a string.
func emailVerified(claims map[string]any) bool {
	v, ok := claims["email_verified"]
	if !ok {
		return true
	}
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// metadata keeps the user-describing claims and normalises the configured
// role and name claims onto the keys the resolver reads.
func (p *Provider) metadata(claims map[string]any) domain.Metadata {
	m := domain.Metadata{}
	for k, v := range claims {
		if _, skip := tokenClaims[k]; skip {
			continue
		}
		m[k] = v
	}

	if role, ok := pickRole(claimPath(claims, p.cfg.RoleClaim)); ok {
		m[domain.MetadataKeyRole] = role
	}
	if name, ok := claimPath(claims, p.cfg.NameClaim).(string); ok {
		m[domain.MetadataKeyName] = name
	}
	return m
}

// claimPath resolves a dotted path such as "realm_access.roles".
func claimPath(claims map[string]any, path string) any {
	var cur any = claims
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// pickRole accepts a single role or a list, preferring the most privileged
// known role in a list.
func pickRole(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, v != ""
	case []any:
		found := ""
		for _, item := range v {
			s, _ := item.(string)
			switch domain.Role(strings.ToLower(s)) {
			case domain.RoleAdmin:
				return s, true
			case domain.RoleEditor:
				found = s
			}
		}
		return found, found != ""
	default:
		return "", false
	}
}

func (p *Provider) revoke(ctx context.Context, token string) error {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"refresh_token"},
		"client_id":       {p.oauth.ClientID},
	}
	if p.oauth.ClientSecret != "" {
		form.Set("client_secret", p.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// translate maps token endpoint failures onto provider errors whose messages
// carry the words the facade classifies on.
func translate(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("token request: %w", err)
	}

	desc := strings.ToLower(re.ErrorDescription)
	switch {
	case re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests,
		re.ErrorCode == "slow_down", re.ErrorCode == "temporarily_unavailable":
		return &provider.Error{Code: provider.CodeRateLimited, Message: "Request rate limit reached"}
	case strings.Contains(desc, "not fully set up"), strings.Contains(desc, "not verified"), strings.Contains(desc, "confirm"):
		return &provider.Error{Code: provider.CodeEmailNotConfirmed, Message: "Email not confirmed"}
	case re.ErrorCode == "invalid_grant":
		return &provider.Error{Code: provider.CodeInvalidCredentials, Message: "Invalid login credentials"}
	}

	msg := re.ErrorDescription
	if msg == "" {
		msg = re.ErrorCode
	}
	if msg == "" {
		msg = err.Error()
	}
	return &provider.Error{Code: provider.CodeUnexpected, Message: msg}
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
