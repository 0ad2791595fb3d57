// Package authstate is the process-wide session state machine observers
// subscribe to.
package authstate

import (
	"context"
	"net/url"
	"sync"

	"github.com/sahilvermadev/mapx/internal/log"
	"github.com/sahilvermadev/mapx/internal/metrics"
	"github.com/sahilvermadev/mapx/internal/onboarding"
	"github.com/sahilvermadev/mapx/internal/session"
	"github.com/sahilvermadev/mapx/internal/signal"
	"github.com/sahilvermadev/mapx/internal/token"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
)

// Navigation targets.
const (
	PathAuthenticated = "/dashboard"
	PathLogin         = "/login"
)

// OAuth callback query parameters.
const (
	ParamToken        = "token"
	ParamRefreshToken = "refreshToken"
)

// Session is the part of session.Service the machine drives.
type Session interface {
	IsAuthenticated(ctx context.Context) bool
	TokenForRequest(ctx context.Context) string
	CurrentUser(ctx context.Context) *token.Identity
	Establish(ctx context.Context, access, refresh string) error
	BeginLogout(ctx context.Context) tokenstore.Pair
	RevokeRemote(ctx context.Context, pair tokenstore.Pair, scope session.Scope) error
}

// UsernameStatusProvider answers the onboarding question.
type UsernameStatusProvider interface {
	UsernameStatus(ctx context.Context) (*onboarding.Status, error)
}

// Navigator moves the user between areas of the application.
type Navigator interface {
	// ReplaceURL swaps the current location without adding history.
	ReplaceURL(u *url.URL)
	Navigate(path string)
}

// UsernameFailurePolicy picks the onboarding status to assume when the
// status fetch fails.
type UsernameFailurePolicy func(err error) *onboarding.Status

// AssumeHasUsername treats a failed fetch as "already onboarded".
var AssumeHasUsername UsernameFailurePolicy = func(error) *onboarding.Status {
	return &onboarding.Status{HasUsername: true}
}

// Machine owns the auth state. Subscribers receive snapshots in transition
// order; they may read State but must not trigger transitions synchronously.
type Machine struct {
	session   Session
	usernames UsernameStatusProvider
	nav       Navigator
	onFailure UsernameFailurePolicy
	logger    *log.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	st          state
	initialized bool
	// epoch advances whenever a session starts or ends; background results
	// tagged with an older epoch are dropped.
	epoch   uint64
	subs    map[uint64]func(State)
	nextSub uint64

	notifyMu sync.Mutex
	bootOnce sync.Once
	wg       sync.WaitGroup
	unsub    func()
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithMetrics enables transition metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithUsernameFailurePolicy replaces AssumeHasUsername.
func WithUsernameFailurePolicy(p UsernameFailurePolicy) Option {
	return func(m *Machine) { m.onFailure = p }
}

// WithBus subscribes the machine to signal.EventUnauthorized.
func WithBus(bus *signal.Bus) Option {
	return func(m *Machine) {
		m.unsub = bus.Subscribe(signal.EventUnauthorized, m.HandleUnauthorized)
	}
}

// New returns a Machine in the bootstrapping state. usernames and nav may
// be nil.
func New(sess Session, usernames UsernameStatusProvider, nav Navigator, opts ...Option) *Machine {
	m := &Machine{
		session:   sess,
		usernames: usernames,
		nav:       nav,
		onFailure: AssumeHasUsername,
		st:        bootstrapping{},
		subs:      make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger).Named("authstate")
	if m.nav == nil {
		m.nav = NewLogNavigator(m.logger)
	}
	return m
}

// Close detaches the machine from the event bus.
func (m *Machine) Close() {
	if m.unsub != nil {
		m.unsub()
	}
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.st, m.initialized)
}

// Subscribe registers fn for every subsequent snapshot.
func (m *Machine) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Wait blocks until background work started by the machine finishes.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// commitLocked installs next, publishes it and returns the resulting
// epoch. m.mu must be held; it is released before subscribers run.
func (m *Machine) commitLocked(next state) uint64 {
	_, was := m.st.(authenticated)
	_, is := next.(authenticated)
	if was != is {
		m.epoch++
	}
	epoch := m.epoch
	m.st = next
	snap := snapshot(next, m.initialized)
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	m.metrics.RecordTransition(string(snap.Phase))
	for _, fn := range subs {
		fn(snap)
	}
	return epoch
}

func (m *Machine) transition(next state) {
	m.mu.Lock()
	m.commitLocked(next)
}

// settle ends bootstrapping. It is dropped if something else already
// moved the machine on.
func (m *Machine) settle(next state) (epoch uint64, ok bool) {
	m.mu.Lock()
	if _, still := m.st.(bootstrapping); !still {
		m.mu.Unlock()
		return 0, false
	}
	m.initialized = true
	return m.commitLocked(next), true
}

// Bootstrap determines the initial state. It runs at most once per
// Machine; later calls return immediately.
func (m *Machine) Bootstrap(ctx context.Context, entry *url.URL) {
	m.bootOnce.Do(func() { m.bootstrap(ctx, entry) })
}

func (m *Machine) bootstrap(ctx context.Context, entry *url.URL) {
	if entry != nil {
		q := entry.Query()
		if access := q.Get(ParamToken); access != "" {
			m.completeCallback(ctx, entry, access, q.Get(ParamRefreshToken))
			return
		}
	}

	if !m.session.IsAuthenticated(ctx) {
		m.settle(unauthenticated{})
		return
	}

	// Renew an expired access token first; CurrentUser clears on expiry.
	m.session.TokenForRequest(ctx)

	user := m.session.CurrentUser(ctx)
	if user == nil {
		m.settle(unauthenticated{})
		return
	}

	if epoch, ok := m.settle(authenticated{user: user}); ok {
		m.fetchUsernameStatusAsync(ctx, epoch)
	}
}

func (m *Machine) completeCallback(ctx context.Context, entry *url.URL, access, refresh string) {
	clean := *entry
	q := entry.Query()
	q.Del(ParamToken)
	q.Del(ParamRefreshToken)
	clean.RawQuery = q.Encode()
	m.nav.ReplaceURL(&clean)

	user := token.IdentityOf(access)
	if user == nil {
		m.logger.Warn("callback token carries no identity")
		m.settle(unauthenticated{})
		return
	}

	if err := m.session.Establish(ctx, access, refresh); err != nil {
		m.logger.WithError(err).Warn("could not store callback token")
		m.settle(unauthenticated{})
		return
	}

	epoch, ok := m.settle(authenticated{user: user})
	if !ok {
		return
	}
	m.logger.Info("signed in from callback", "user_id", user.ID)
	m.nav.Navigate(PathAuthenticated)
	m.fetchUsernameStatusAsync(ctx, epoch)
}

func (m *Machine) fetchUsernameStatusAsync(ctx context.Context, epoch uint64) {
	if m.usernames == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.applyUsernameStatus(epoch, m.fetchUsernameStatus(ctx))
	}()
}

func (m *Machine) fetchUsernameStatus(ctx context.Context) *onboarding.Status {
	st, err := m.usernames.UsernameStatus(ctx)
	if err != nil || st == nil {
		m.logger.WithError(err).Debug("username status unavailable; applying failure policy")
		return m.onFailure(err)
	}
	return st
}

func (m *Machine) applyUsernameStatus(epoch uint64, st *onboarding.Status) {
	m.mu.Lock()
	cur, ok := m.st.(authenticated)
	if !ok || m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Debug("dropping username status from a finished session")
		return
	}
	cur.status = st
	m.commitLocked(cur)
}

// Logout ends the session locally and revokes it remotely in the
// background. The state is unauthenticated when Logout returns.
func (m *Machine) Logout(ctx context.Context) {
	m.logout(ctx, session.ScopeDevice)
}

// LogoutAllDevices is Logout revoking every session of the user.
func (m *Machine) LogoutAllDevices(ctx context.Context) {
	m.logout(ctx, session.ScopeAll)
}

func (m *Machine) logout(ctx context.Context, scope session.Scope) {
	m.transition(loggingOut{})
	pair := m.session.BeginLogout(ctx)
	m.transition(unauthenticated{})
	m.nav.Navigate(PathLogin)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.session.RevokeRemote(context.WithoutCancel(ctx), pair, scope)
	}()
}

// CloseUsernameModal records that the user has a username without
// waiting for the backend to confirm it.
func (m *Machine) CloseUsernameModal() {
	m.mu.Lock()
	cur, ok := m.st.(authenticated)
	if !ok {
		m.mu.Unlock()
		return
	}
	st := onboarding.Status{HasUsername: true}
	if cur.status != nil {
		st = *cur.status
		st.HasUsername = true
	}
	cur.status = &st
	m.commitLocked(cur)
}

// RecheckUsernameStatus fetches the onboarding status again. It does
// nothing when no session is active.
func (m *Machine) RecheckUsernameStatus(ctx context.Context) {
	m.mu.Lock()
	_, ok := m.st.(authenticated)
	epoch := m.epoch
	m.mu.Unlock()
	if !ok || m.usernames == nil {
		return
	}
	m.applyUsernameStatus(epoch, m.fetchUsernameStatus(ctx))
}

// HandleUnauthorized forces the unauthenticated state. It is the reaction
// to signal.EventUnauthorized and waits on nothing.
func (m *Machine) HandleUnauthorized() {
	m.mu.Lock()
	if _, already := m.st.(unauthenticated); already {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.logger.Info("backend rejected credentials; session ended")
	m.commitLocked(unauthenticated{})
}
