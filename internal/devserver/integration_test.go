package devserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilvermadev/mapx/internal/authapi"
	"github.com/sahilvermadev/mapx/internal/authstate"
	"github.com/sahilvermadev/mapx/internal/devserver"
	"github.com/sahilvermadev/mapx/internal/log"
	"github.com/sahilvermadev/mapx/internal/onboarding"
	"github.com/sahilvermadev/mapx/internal/session"
	"github.com/sahilvermadev/mapx/internal/signal"
	"github.com/sahilvermadev/mapx/internal/token"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
	"github.com/sahilvermadev/mapx/internal/transport"
)

// client is one signed-in process: store, session, transport and machine.
type client struct {
	store   *tokenstore.Memory
	session *session.Service
	http    *http.Client
	machine *authstate.Machine
	nav     *authstate.LogNavigator
}

func newClient(t *testing.T, baseURL string, clock token.Clock) *client {
	t.Helper()
	logger := log.Nop()
	api := authapi.NewClient(baseURL, 5*time.Second)
	store := tokenstore.NewMemory()
	svc := session.New(store, api, api, session.WithClock(clock), session.WithLogger(logger))

	bus := signal.NewBus()
	httpClient := transport.NewClient(&transport.Transport{Tokens: svc, Bus: bus, Logger: logger})
	nav := authstate.NewLogNavigator(logger)
	m := authstate.New(svc, onboarding.NewClient(baseURL, httpClient), nav,
		authstate.WithBus(bus), authstate.WithLogger(logger))
	t.Cleanup(func() {
		m.Wait()
		m.Close()
	})
	return &client{store: store, session: svc, http: httpClient, machine: m, nav: nav}
}

func (c *client) get(t *testing.T, rawURL string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	resp, err := c.http.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func devLogin(t *testing.T, baseURL, email string) *url.URL {
	t.Helper()
	body := strings.NewReader(`{"email":"` + email + `","callbackUrl":"http://app.local/auth/callback?next=%2Fdashboard"}`)
	resp, err := http.Post(baseURL+"/dev/login", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		CallbackURL string `json:"callbackUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	u, err := url.Parse(out.CallbackURL)
	require.NoError(t, err)
	return u
}

func startServer(t *testing.T, clock token.Clock) *httptest.Server {
	t.Helper()
	users, err := devserver.ParseUsers([]byte(devserver.DefaultUsers))
	require.NoError(t, err)
	issuer := devserver.NewIssuer([]byte("integration"), "mapx-dev", clock).WithTTL(10*time.Minute, 24*time.Hour)
	ts := httptest.NewServer(devserver.New(issuer, users, devserver.WithLogger(log.Nop()), devserver.WithClock(clock)).Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestSessionLifecycleAgainstDevServer(t *testing.T) {
	ctx := context.Background()
	clock := token.NewFixedClock(time.Unix(1_700_000_000, 0))
	ts := startServer(t, clock)
	c := newClient(t, ts.URL, clock)

	c.machine.Bootstrap(ctx, devLogin(t, ts.URL, "grace@example.com"))
	c.machine.Wait()

	st := c.machine.State()
	require.True(t, st.IsAuthenticated)
	assert.Equal(t, "grace@example.com", st.User.Email)
	require.NotNil(t, st.UsernameStatus)
	assert.True(t, st.ShowUsernameModal, "grace has no username yet")
	assert.Equal(t, authstate.PathAuthenticated, c.nav.Location())

	first := c.session.Snapshot(ctx)

	// Within the expiry buffer the transport renews before sending.
	clock.Advance(9 * time.Minute)
	assert.Equal(t, http.StatusOK, c.get(t, ts.URL+"/api/me"))
	renewed := c.session.Snapshot(ctx)
	assert.NotEqual(t, first.Access, renewed.Access)
	assert.Equal(t, first.Refresh, renewed.Refresh)

	c.machine.Logout(ctx)
	c.machine.Wait()
	assert.Equal(t, authstate.PhaseUnauthenticated, c.machine.State().Phase)
	assert.True(t, c.session.Snapshot(ctx).Empty())

	// The revoked refresh token is dead server-side.
	_, err := authapi.NewClient(ts.URL, time.Second).Refresh(ctx, first.Refresh)
	require.Error(t, err)
}

func TestRevocationElsewhereSignalsUnauthorized(t *testing.T) {
	ctx := context.Background()
	clock := token.NewFixedClock(time.Unix(1_700_000_000, 0))
	ts := startServer(t, clock)

	laptop := newClient(t, ts.URL, clock)
	phone := newClient(t, ts.URL, clock)
	laptop.machine.Bootstrap(ctx, devLogin(t, ts.URL, "ada@example.com"))
	phone.machine.Bootstrap(ctx, devLogin(t, ts.URL, "ada@example.com"))
	laptop.machine.Wait()
	phone.machine.Wait()
	require.True(t, laptop.machine.State().IsAuthenticated)
	require.False(t, laptop.machine.State().ShowUsernameModal)

	phone.machine.LogoutAllDevices(ctx)
	phone.machine.Wait()

	// The laptop's access token still works until it expires.
	assert.Equal(t, http.StatusOK, laptop.get(t, ts.URL+"/api/me"))
	assert.True(t, laptop.machine.State().IsAuthenticated)

	clock.Advance(11 * time.Minute)
	assert.Equal(t, http.StatusUnauthorized, laptop.get(t, ts.URL+"/api/me"))

	st := laptop.machine.State()
	assert.Equal(t, authstate.PhaseUnauthenticated, st.Phase)
	assert.Nil(t, st.User)
	_, stored := laptop.store.Raw(tokenstore.KeyAccess)
	assert.False(t, stored)
}

func TestUsernameOnboardingAgainstDevServer(t *testing.T) {
	ctx := context.Background()
	clock := token.NewFixedClock(time.Unix(1_700_000_000, 0))
	ts := startServer(t, clock)
	c := newClient(t, ts.URL, clock)

	c.machine.Bootstrap(ctx, devLogin(t, ts.URL, "grace@example.com"))
	c.machine.Wait()
	require.True(t, c.machine.State().ShowUsernameModal)

	usernames := onboarding.NewClient(ts.URL, c.http)
	_, err := usernames.SetUsername(ctx, "ada")
	require.Error(t, err, "ada is taken")
	assert.True(t, c.machine.State().ShowUsernameModal)

	set, err := usernames.SetUsername(ctx, "amazing_grace")
	require.NoError(t, err)
	assert.Equal(t, "amazing_grace", set.Username)

	c.machine.CloseUsernameModal()
	st := c.machine.State()
	assert.False(t, st.ShowUsernameModal)
	assert.True(t, st.UsernameStatus.HasUsername)

	c.machine.RecheckUsernameStatus(ctx)
	st = c.machine.State()
	assert.False(t, st.ShowUsernameModal)
	assert.Equal(t, "amazing_grace", st.UsernameStatus.Username)
	assert.Equal(t, clock.Now().UTC().Format(time.RFC3339), st.UsernameStatus.UsernameSetAt)
}
