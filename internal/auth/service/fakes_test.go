package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/provider"
	"github.com/aussiebroadwan/portal/internal/auth/store"
)

// fakeProvider is a scriptable IdentityProvider. Events are pushed through a
// real Broker so ordering matches production.
type fakeProvider struct {
	broker *provider.Broker

	mu          sync.Mutex
	session     *domain.Session
	sessionErr  error
	identity    *domain.Identity
	verifyErr   error
	signOutErr  error
	verifyCalls int
	lastEmail   string

	// When set, VerifyCredentials signals entered and waits for release.
	entered chan struct{}
	release chan struct{}

	unsubscribes atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{broker: provider.NewBroker()}
}

type countingSub struct {
	inner provider.Subscription
	count *atomic.Int32
}

func (c countingSub) Unsubscribe() {
	c.count.Add(1)
	c.inner.Unsubscribe()
}

func (f *fakeProvider) Subscribe() (<-chan domain.SessionEvent, provider.Subscription) {
	ch, sub := f.broker.Subscribe()
	return ch, countingSub{inner: sub, count: &f.unsubscribes}
}

func (f *fakeProvider) CurrentSession(context.Context) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeProvider) VerifyCredentials(ctx context.Context, email, _ string) (*domain.Identity, error) {
	f.mu.Lock()
	f.verifyCalls++
	f.lastEmail = email
	entered, release := f.entered, f.release
	identity, err := f.identity, f.verifyErr
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return identity, err
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeProvider) publish(kind domain.EventKind, identity *domain.Identity) {
	ev := domain.SessionEvent{Kind: kind}
	if identity != nil {
		ev.Session = &domain.Session{ID: "s-" + identity.ID, Identity: identity}
	}
	f.broker.Publish(ev)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

// fakeProfiles is an in-memory store.Profiles with injectable failures.
type fakeProfiles struct {
	mu        sync.Mutex
	byEmail   map[string]domain.Profile
	findErr   error
	updateErr error

	lastLogins chan string
}

func newFakeProfiles(profiles ...domain.Profile) *fakeProfiles {
	f := &fakeProfiles{
		byEmail:    make(map[string]domain.Profile),
		lastLogins: make(chan string, 16),
	}
	for _, p := range profiles {
		f.byEmail[p.Email] = p
	}
	return f
}

func (f *fakeProfiles) FindProfileByEmail(_ context.Context, email string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return domain.Profile{}, f.findErr
	}
	p, ok := f.byEmail[email]
	if !ok {
		return domain.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) GetProfileByID(_ context.Context, id string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byEmail {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Profile{}, store.ErrNotFound
}

func (f *fakeProfiles) CreateProfile(_ context.Context, p domain.Profile) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[p.Email] = p
	return p, nil
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, p domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[p.Email] = p
	return nil
}

func (f *fakeProfiles) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	err := f.updateErr
	if err == nil {
		for email, p := range f.byEmail {
			if p.ID == id {
				p.LastLogin = &at
				f.byEmail[email] = p
			}
		}
	}
	f.mu.Unlock()

	f.lastLogins <- id
	return err
}

func (f *fakeProfiles) IsEmpty(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEmail) == 0, nil
}

// recordingRecorder captures Record calls synchronously.
type recordingRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRecorder) Record(profileID string, _ time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, profileID)
	return true
}

func (r *recordingRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}
