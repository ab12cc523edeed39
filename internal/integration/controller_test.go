package integration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/musictime/internal/events"
	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/repositories"
	"github.com/desertthunder/musictime/internal/services"
	"github.com/desertthunder/musictime/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

func signedSession(t *testing.T, expires time.Time) string {
	t.Helper()
	claims := shared.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expires)},
		UserID:           42,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign session: %v", err)
	}
	return "JWT " + token
}

func TestController(t *testing.T) {
	t.Run("Connect", func(t *testing.T) {
		t.Run("without integration redirects without prompting", func(t *testing.T) {
			h := newHarness(t)
			h.set(KeySessionToken, "JWT session")

			result, err := h.ctrl.Connect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if result.Outcome != OutcomeCompleted || result.AuthURL == "" {
				t.Fatalf("expected dispatched redirect, got %+v", result)
			}
			if len(h.prompter.asked) != 0 {
				t.Errorf("expected no prompt, got %v", h.prompter.asked)
			}
			if h.ops.indexOf("clear") != -1 || h.backend.disconnectCalls != 0 {
				t.Error("expected no disconnect without an existing integration")
			}
			if len(h.browser) != 1 || h.browser[0] != result.AuthURL {
				t.Errorf("expected browser to open %q, got %v", result.AuthURL, h.browser)
			}
		})

		t.Run("redirect URL carries the plugin and session parameters", func(t *testing.T) {
			h := newHarness(t)
			h.set(KeySessionToken, "JWT session")

			result, err := h.ctrl.Connect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			u, err := url.Parse(result.AuthURL)
			if err != nil {
				t.Fatalf("failed to parse redirect: %v", err)
			}
			if u.Scheme+"://"+u.Host+u.Path != "https://api.example.com/auth/spotify" {
				t.Errorf("unexpected redirect target %q", result.AuthURL)
			}

			q := u.Query()
			expected := map[string]string{
				"plugin":              "codetime",
				"pluginVersion":       "0.1.0",
				"plugin_id":           "13",
				"mac":                 "false",
				"plugin_token":        "JWT session",
				"auth_callback_state": h.get(KeyAuthCallbackState),
				"plugin_uuid":         h.get(KeyPluginUUID),
			}
			for key, want := range expected {
				if got := q.Get(key); got != want {
					t.Errorf("expected %s=%q, got %q", key, want, got)
				}
			}
			if q.Get("auth_callback_state") == "" || q.Get("plugin_uuid") == "" {
				t.Error("expected generated callback state and plugin uuid")
			}
		})

		t.Run("callback state and plugin uuid are reused", func(t *testing.T) {
			h := newHarness(t)

			first, _ := h.ctrl.Connect(h.ctx)
			second, _ := h.ctrl.Connect(h.ctx)

			if first.AuthURL != second.AuthURL {
				t.Errorf("expected stable redirect, got %q and %q", first.AuthURL, second.AuthURL)
			}
		})

		t.Run("declined leaves state unchanged", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "tok")
			h.profiles.responses = []*services.SpotifyUser{{ID: "u1", Product: "free"}}
			h.creds.Set("client", "secret")
			if err := h.ctrl.UpdateConfig(h.ctx); err != nil {
				t.Fatalf("failed to publish config: %v", err)
			}
			h.cache.Refresh(h.ctx, false)

			before := h.snapshot()
			h.prompter.answers = []bool{false}

			result, err := h.ctrl.Connect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if !result.Declined() {
				t.Errorf("expected declined outcome, got %v", result.Outcome)
			}
			if after := h.snapshot(); after != before {
				t.Errorf("state changed:\nbefore %s\nafter  %s", before, after)
			}
			if len(h.browser) != 0 || h.backend.disconnectCalls != 0 || len(h.events) != 0 {
				t.Error("declined connect should have no side effects")
			}
			if h.prompter.asked[0] != msgConnectDifferent {
				t.Errorf("unexpected prompt %q", h.prompter.asked[0])
			}
		})

		t.Run("dismissed prompt counts as declined", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "tok")
			h.prompter.err = errors.New("program killed")

			result, err := h.ctrl.Connect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !result.Declined() || h.active() == nil {
				t.Error("expected dismissal to abort with the integration intact")
			}
		})

		t.Run("confirmed with duplicate records clears both then redirects", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			b := h.seed("spotify", "active", "B")

			if active := h.active(); active.ID() != b.ID() {
				t.Fatalf("expected newest record to be authoritative, got %s", active.AccessToken())
			}

			h.prompter.answers = []bool{true}
			result, err := h.ctrl.Connect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if n := h.spotifyRecords(); n != 0 {
				t.Errorf("expected spotify records cleared, got %d", n)
			}
			if result.AuthURL == "" {
				t.Error("expected redirect after clearing")
			}
			if len(h.prompter.asked) != 1 {
				t.Errorf("expected a single prompt, got %v", h.prompter.asked)
			}
			if len(h.prompter.informed) != 0 {
				t.Error("silent disconnect should not show a message")
			}
			if h.ops.indexOf("clear") > h.ops.indexOf("url") {
				t.Errorf("expected clear before redirect, got %v", h.ops.ops)
			}
		})

		t.Run("expired session is reported", func(t *testing.T) {
			h := newHarness(t)
			h.set(KeySessionToken, signedSession(t, h.ctrl.now().Add(-time.Hour)))

			if _, err := h.ctrl.Connect(h.ctx); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(h.logs.String(), "session token has expired") {
				t.Errorf("expected expiry warning, got %s", h.logs.String())
			}
		})

		t.Run("browser failure still returns the URL", func(t *testing.T) {
			h := newHarness(t)
			h.ctrl.openBrowser = func(string) error { return errors.New("no display") }

			result, err := h.ctrl.Connect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result.AuthURL == "" {
				t.Error("expected URL for manual use")
			}
		})
	})

	t.Run("Disconnect", func(t *testing.T) {
		for _, remoteErr := range []error{nil, errRemote} {
			name := "remote ok"
			if remoteErr != nil {
				name = "remote failure"
			}

			t.Run("confirmed clears local state with "+name, func(t *testing.T) {
				h := newHarness(t)
				h.seed("spotify", "active", "A")
				h.seed("spotify", "active", "B")
				other := h.seed("slack", "active", "S")
				h.profiles.responses = []*services.SpotifyUser{{ID: "u1", Product: "premium"}}
				h.cache.Refresh(h.ctx, false)
				h.backend.disconnectErr = remoteErr
				h.prompter.answers = []bool{true}

				result, err := h.ctrl.Disconnect(h.ctx, true)
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}

				if result.Outcome != OutcomeCompleted {
					t.Errorf("expected completed, got %v", result.Outcome)
				}
				if n := h.spotifyRecords(); n != 0 {
					t.Errorf("expected zero spotify records, got %d", n)
				}
				if _, err := h.repo.Get(h.ctx, other.ID()); err != nil {
					t.Errorf("other providers should survive: %v", err)
				}
				if h.cache.Get() != nil {
					t.Error("expected cached profile to be cleared")
				}
				if h.sink.last().LoggedIn() || h.sink.last().SpotifyRefreshToken != "" {
					t.Errorf("expected empty published credentials, got %+v", h.sink.last())
				}
				if !slices.Equal(h.prompter.informed, []string{msgDisconnected}) {
					t.Errorf("expected success message, got %v", h.prompter.informed)
				}
				if h.ops.indexOf("revoke") > h.ops.indexOf("clear") {
					t.Errorf("expected remote revoke before local clear, got %v", h.ops.ops)
				}
			})
		}

		t.Run("notifications", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")

			if _, err := h.ctrl.Disconnect(h.ctx, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			h.ctrl.Wait()

			expected := []events.Topic{events.TopicSyncPlaybackStatus, events.TopicRefreshPlaylists, events.TopicRefreshRecommendations}
			if !slices.Equal(h.topics(), expected) {
				t.Errorf("expected %v, got %v", expected, h.topics())
			}
			if h.events[0].Running {
				t.Error("expected playback status to be not running")
			}
			if !slices.Equal(h.delays, []time.Duration{250 * time.Millisecond}) {
				t.Errorf("expected refreshes to be delayed, got %v", h.delays)
			}
		})

		t.Run("declined has no side effects", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			before := h.snapshot()

			result, err := h.ctrl.Disconnect(h.ctx, true)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if !result.Declined() {
				t.Error("expected declined")
			}
			if h.backend.disconnectCalls != 0 || len(h.events) != 0 {
				t.Error("declined disconnect should not reach the backend or notify")
			}
			if after := h.snapshot(); after != before {
				t.Errorf("state changed:\nbefore %s\nafter  %s", before, after)
			}
		})

		t.Run("without confirmation is silent", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")

			if _, err := h.ctrl.Disconnect(h.ctx, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(h.prompter.asked) != 0 || len(h.prompter.informed) != 0 {
				t.Errorf("expected no dialogs, got %v %v", h.prompter.asked, h.prompter.informed)
			}
		})

		t.Run("store failure still republishes", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			h.store.clearErrs = []error{errors.New("disk full")}
			published := len(h.sink.configs)

			_, err := h.ctrl.Disconnect(h.ctx, false)
			if !errors.Is(err, shared.ErrStorage) {
				t.Fatalf("expected storage error, got %v", err)
			}
			if len(h.sink.configs) != published+1 {
				t.Error("expected config to be republished")
			}
			if !h.sink.last().LoggedIn() {
				t.Error("published config should match the records still stored")
			}
		})

		t.Run("sends the session to the backend", func(t *testing.T) {
			h := newHarness(t)
			h.set(KeySessionToken, "JWT session")

			if _, err := h.ctrl.Disconnect(h.ctx, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !slices.Contains(h.backend.sessions, "JWT session") {
				t.Errorf("expected session token, got %v", h.backend.sessions)
			}
		})
	})

	t.Run("SwitchAccount", func(t *testing.T) {
		t.Run("confirmed clears before redirecting", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			h.prompter.answers = []bool{true}

			result, err := h.ctrl.SwitchAccount(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if result.AuthURL == "" {
				t.Fatal("expected redirect")
			}
			if !slices.Equal(h.prompter.asked, []string{msgConfirmSwitch}) {
				t.Errorf("expected a single switch prompt, got %v", h.prompter.asked)
			}
			if !slices.Equal(h.ops.ops, []string{"revoke", "clear", "url", "browser"}) {
				t.Errorf("unexpected operation order %v", h.ops.ops)
			}
			if h.spotifyRecords() != 0 || h.cache.Get() != nil {
				t.Error("expected store and cache cleared")
			}
		})

		t.Run("declined is a no-op", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			before := h.snapshot()

			result, err := h.ctrl.SwitchAccount(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !result.Declined() || len(h.ops.ops) != 0 {
				t.Errorf("expected no operations, got %v", h.ops.ops)
			}
			if h.snapshot() != before {
				t.Error("state changed")
			}
		})

		t.Run("failed disconnect still attempts connect", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			h.store.clearErrs = []error{errors.New("locked")}
			h.prompter.answers = []bool{true, true}

			result, err := h.ctrl.SwitchAccount(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if !slices.Equal(h.prompter.asked, []string{msgConfirmSwitch, msgConnectDifferent}) {
				t.Errorf("expected connect to run its own check, got %v", h.prompter.asked)
			}
			if result.AuthURL == "" || h.spotifyRecords() != 0 {
				t.Errorf("expected redirect after the retried clear, got %+v", result)
			}
		})
	})

	t.Run("UpdateClientCredentials", func(t *testing.T) {
		t.Run("stores credentials without publishing", func(t *testing.T) {
			h := newHarness(t)
			h.backend.clientInfo = &services.ClientInfo{ClientID: "id", ClientSecret: "secret"}

			h.ctrl.UpdateClientCredentials(h.ctx)

			if id, secret := h.creds.Get(); id != "id" || secret != "secret" {
				t.Errorf("expected credentials, got %q %q", id, secret)
			}
			if len(h.sink.configs) != 0 {
				t.Error("credentials update should not publish")
			}
		})

		t.Run("failure keeps previous credentials", func(t *testing.T) {
			h := newHarness(t)
			h.creds.Set("old", "old-secret")
			h.backend.clientInfoErr = errRemote

			h.ctrl.UpdateClientCredentials(h.ctx)

			if id, _ := h.creds.Get(); id != "old" {
				t.Errorf("expected previous credentials, got %q", id)
			}
		})

		t.Run("empty response is ignored", func(t *testing.T) {
			h := newHarness(t)
			h.creds.Set("old", "old-secret")
			h.backend.clientInfo = &services.ClientInfo{}

			h.ctrl.UpdateClientCredentials(h.ctx)

			if id, _ := h.creds.Get(); id != "old" {
				t.Errorf("expected previous credentials, got %q", id)
			}
		})
	})

	t.Run("UpdateConfig", func(t *testing.T) {
		h := newHarness(t)
		h.seed("spotify", "active", "A")
		b := h.seed("spotify", "ACTIVE", "B")
		h.creds.Set("id", "secret")

		if err := h.ctrl.UpdateConfig(h.ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		config := h.sink.last()
		if config.SpotifyAccessToken != b.AccessToken() || config.SpotifyClientID != "id" {
			t.Errorf("expected newest record with client id, got %+v", config)
		}
	})

	t.Run("IsPremiumUser", func(t *testing.T) {
		h := newHarness(t)
		h.seed("spotify", "active", "A")
		h.profiles.responses = []*services.SpotifyUser{{ID: "u1", Product: "premium"}}
		h.cache.Refresh(h.ctx, false)

		if !h.ctrl.IsPremiumUser(h.ctx) || !h.ctrl.HasSpotifyUser() {
			t.Error("expected premium user")
		}
		if h.profiles.calls != 1 {
			t.Errorf("expected no extra fetch, got %d", h.profiles.calls)
		}
	})

	t.Run("CheckCallbackState", func(t *testing.T) {
		h := newHarness(t)

		if err := h.ctrl.CheckCallbackState(h.ctx, ""); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected invalid state before any redirect, got %v", err)
		}

		if _, err := h.ctrl.Connect(h.ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		state := h.get(KeyAuthCallbackState)

		if err := h.ctrl.CheckCallbackState(h.ctx, state); err != nil {
			t.Errorf("expected state to match, got %v", err)
		}
		if err := h.ctrl.CheckCallbackState(h.ctx, "forged"); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})

	t.Run("CompleteConnect", func(t *testing.T) {
		remote := &models.RemoteUser{
			ID:    42,
			Email: "dev@example.com",
			Integrations: []models.RemoteIntegration{
				{Name: "Spotify", Status: "ACTIVE", AccessToken: "new", RefreshToken: "new-refresh"},
				{Name: "slack", Status: "active", AccessToken: "s"},
			},
		}

		t.Run("stores the remote integration and publishes it", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "stale")
			h.backend.user = remote
			h.profiles.responses = []*services.SpotifyUser{{ID: "u1", Product: "premium"}}

			active, err := h.ctrl.CompleteConnect(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if active.AccessToken() != "new" || h.spotifyRecords() != 1 {
				t.Errorf("expected the remote record to replace the stale one, got %s", active.AccessToken())
			}
			if h.sink.last().SpotifyAccessToken != "new" {
				t.Errorf("expected new token to be published, got %+v", h.sink.last())
			}
			if !h.cache.HasUser() {
				t.Error("expected profile to be cached")
			}
			expected := []events.Topic{events.TopicRefreshPlaylists, events.TopicRefreshRecommendations}
			if !slices.Equal(h.topics(), expected) {
				t.Errorf("expected %v, got %v", expected, h.topics())
			}
		})

		t.Run("backend failure changes nothing", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			h.backend.userErr = errRemote
			before := h.snapshot()

			if _, err := h.ctrl.CompleteConnect(h.ctx); err == nil {
				t.Fatal("expected error")
			}
			if h.snapshot() != before {
				t.Error("state changed")
			}
		})

		t.Run("no active spotify integration", func(t *testing.T) {
			h := newHarness(t)
			h.backend.user = &models.RemoteUser{ID: 1}

			if _, err := h.ctrl.CompleteConnect(h.ctx); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected not found, got %v", err)
			}
			if h.sink.last().LoggedIn() {
				t.Error("expected logged-out config")
			}
		})
	})

	t.Run("Status", func(t *testing.T) {
		t.Run("connected", func(t *testing.T) {
			h := newHarness(t)
			h.seed("spotify", "active", "A")
			h.set(KeySessionToken, signedSession(t, h.ctrl.now().Add(time.Hour)))
			h.profiles.responses = []*services.SpotifyUser{{ID: "u1", Email: "dev@example.com", Product: "open"}}

			status, err := h.ctrl.Status(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if !status.Connected() || status.User == nil || status.User.Email != "dev@example.com" {
				t.Errorf("unexpected status %+v", status)
			}
			if status.Session == nil || status.Session.UserID != 42 {
				t.Errorf("expected session claims, got %+v", status.Session)
			}
		})

		t.Run("disconnected does not fetch", func(t *testing.T) {
			h := newHarness(t)

			status, err := h.ctrl.Status(h.ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if status.Connected() || status.User != nil || status.Session != nil {
				t.Errorf("expected empty status, got %+v", status)
			}
			if h.profiles.calls != 0 {
				t.Error("expected no profile fetch")
			}
		})
	})

	t.Run("Outcome", func(t *testing.T) {
		for o, want := range map[Outcome]string{OutcomeCompleted: "completed", OutcomeDeclined: "declined", Outcome(9): "unknown"} {
			if o.String() != want {
				t.Errorf("expected %q, got %q", want, o.String())
			}
		}
	})
}

type slowSettings struct {
	repositories.KeyValueStore
	delay time.Duration
}

func (s slowSettings) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(s.delay)
	return s.KeyValueStore.Get(ctx, key)
}

func TestControllerCallbackState(t *testing.T) {
	t.Run("overlapping redirects share one state", func(t *testing.T) {
		h := newHarness(t)
		h.ctrl.settings = slowSettings{KeyValueStore: h.settings, delay: 10 * time.Millisecond}

		var generated atomic.Int32
		generate := func() string {
			return fmt.Sprintf("state-%d", generated.Add(1))
		}

		const callers = 4
		states := make([]string, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				states[i], errs[i] = h.ctrl.getOrCreate(h.ctx, KeyAuthCallbackState, generate)
			}()
		}
		wg.Wait()

		for i := range callers {
			if errs[i] != nil {
				t.Fatalf("expected no error, got %v", errs[i])
			}
			if states[i] != states[0] {
				t.Errorf("expected one shared state, got %v", states)
				break
			}
		}
		if n := generated.Load(); n != 1 {
			t.Errorf("expected a single generated state, got %d", n)
		}
		if stored := h.get(KeyAuthCallbackState); stored != states[0] {
			t.Errorf("expected stored state %q, got %q", states[0], stored)
		}
		if err := h.ctrl.CheckCallbackState(h.ctx, states[0]); err != nil {
			t.Errorf("expected shared state to verify, got %v", err)
		}
	})
}
