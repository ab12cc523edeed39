package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musictime/internal/events"
	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/repositories"
	"github.com/desertthunder/musictime/internal/services"
	"github.com/desertthunder/musictime/internal/shared"
	tu "github.com/desertthunder/musictime/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

type opLog struct {
	ops []string
}

func (l *opLog) add(op string) { l.ops = append(l.ops, op) }

func (l *opLog) indexOf(op string) int {
	for i, o := range l.ops {
		if o == op {
			return i
		}
	}
	return -1
}

// recordingStore wraps the sqlite repository and can fail ClearSpotify on demand.
type recordingStore struct {
	*repositories.IntegrationRepository
	log       *opLog
	clearErrs []error
}

func (s *recordingStore) ClearSpotify(ctx context.Context) (int, error) {
	s.log.add("clear")
	if len(s.clearErrs) > 0 {
		err := s.clearErrs[0]
		s.clearErrs = s.clearErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return s.IntegrationRepository.ClearSpotify(ctx)
}

type fakeBackend struct {
	log     *opLog
	baseURL string

	clientInfo    *services.ClientInfo
	clientInfoErr error
	disconnectErr error
	user          *models.RemoteUser
	userErr       error

	clientInfoCalls int
	disconnectCalls int
	userCalls       int
	sessions        []string
}

func (b *fakeBackend) BaseURL() string {
	b.log.add("url")
	return b.baseURL
}

func (b *fakeBackend) ClientInfo(_ context.Context, session string) (*services.ClientInfo, error) {
	b.clientInfoCalls++
	b.sessions = append(b.sessions, session)
	return b.clientInfo, b.clientInfoErr
}

func (b *fakeBackend) DisconnectSpotify(_ context.Context, session string) error {
	b.log.add("revoke")
	b.disconnectCalls++
	b.sessions = append(b.sessions, session)
	return b.disconnectErr
}

func (b *fakeBackend) CurrentUser(_ context.Context, session string) (*models.RemoteUser, error) {
	b.userCalls++
	b.sessions = append(b.sessions, session)
	return b.user, b.userErr
}

// fakeProfiles returns responses in order, repeating the last one.
type fakeProfiles struct {
	responses []*services.SpotifyUser
	err       error
	calls     int
}

func (p *fakeProfiles) UserProfile(context.Context) (*services.SpotifyUser, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, nil
	}
	idx := min(p.calls-1, len(p.responses)-1)
	user := *p.responses[idx]
	return &user, nil
}

type fakePrompter struct {
	answers  []bool
	err      error
	asked    []string
	informed []string
}

func (p *fakePrompter) Confirm(_ context.Context, message string) (bool, error) {
	p.asked = append(p.asked, message)
	if p.err != nil {
		return false, p.err
	}
	if len(p.answers) == 0 {
		return false, nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func (p *fakePrompter) Inform(message string) {
	p.informed = append(p.informed, message)
}

type fakeSink struct {
	configs []services.PlaybackConfig
}

func (s *fakeSink) SetConfig(config services.PlaybackConfig) {
	s.configs = append(s.configs, config)
}

func (s *fakeSink) last() services.PlaybackConfig {
	if len(s.configs) == 0 {
		return services.PlaybackConfig{}
	}
	return s.configs[len(s.configs)-1]
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	ops      *opLog
	repo     *repositories.IntegrationRepository
	store    *recordingStore
	settings *repositories.SettingsRepository
	backend  *fakeBackend
	profiles *fakeProfiles
	prompter *fakePrompter
	sink     *fakeSink
	creds    *ClientCredentials
	cache    *UserCache
	logs     *tu.SafeBuffer
	events   []events.Event
	delays   []time.Duration
	browser  []string
	ctrl     *Controller
}

var testPlugin = shared.PluginConfig{Type: "codetime", ID: 13, Version: "0.1.0"}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupTestDB(t)
	h := &harness{t: t, ctx: context.Background(), ops: &opLog{}, logs: &tu.SafeBuffer{}}

	h.repo = repositories.NewIntegrationRepository(db)
	h.store = &recordingStore{IntegrationRepository: h.repo, log: h.ops}
	h.settings = repositories.NewSettingsRepository(db)
	h.backend = &fakeBackend{log: h.ops, baseURL: "https://api.example.com"}
	h.profiles = &fakeProfiles{}
	h.prompter = &fakePrompter{}
	h.sink = &fakeSink{}
	h.creds = &ClientCredentials{}

	logger := shared.NewLogger(h.logs)
	shared.SetLogLevel(logger, log.DebugLevel)

	h.cache = NewUserCache(h.store, h.profiles, logger)
	bridge := NewCredentialBridge(h.sink)
	bridge.isMac = func() bool { return false }

	bus := events.NewBus()
	for _, topic := range []events.Topic{events.TopicSyncPlaybackStatus, events.TopicRefreshPlaylists, events.TopicRefreshRecommendations} {
		bus.Subscribe(topic, func(e events.Event) { h.events = append(h.events, e) })
	}

	h.ctrl = New(Options{
		Store:        h.store,
		Settings:     h.settings,
		Backend:      h.backend,
		Bridge:       bridge,
		Cache:        h.cache,
		Credentials:  h.creds,
		Prompter:     h.prompter,
		Events:       bus,
		Plugin:       testPlugin,
		RefreshDelay: 250 * time.Millisecond,
		OpenBrowser: func(url string) error {
			h.ops.add("browser")
			h.browser = append(h.browser, url)
			return nil
		},
		Logger: logger,
	})
	h.ctrl.isMac = func() bool { return false }
	h.ctrl.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	h.ctrl.schedule = func(d time.Duration, fn func()) {
		h.delays = append(h.delays, d)
		fn()
	}

	return h
}

func (h *harness) seed(provider, status, access string) *models.Integration {
	h.t.Helper()
	integration := models.NewIntegration(0, provider, status, access, access+"-refresh")
	if err := h.repo.Create(h.ctx, integration); err != nil {
		h.t.Fatalf("failed to seed integration: %v", err)
	}
	return integration
}

func (h *harness) set(key, value string) {
	h.t.Helper()
	if err := h.settings.Set(h.ctx, key, value); err != nil {
		h.t.Fatalf("failed to set %s: %v", key, err)
	}
}

func (h *harness) get(key string) string {
	h.t.Helper()
	value, err := h.settings.Get(h.ctx, key)
	if err != nil {
		h.t.Fatalf("failed to get %s: %v", key, err)
	}
	return value
}

func (h *harness) active() *models.Integration {
	h.t.Helper()
	active, err := h.repo.ActiveSpotify(h.ctx)
	if err != nil {
		h.t.Fatalf("failed to read active integration: %v", err)
	}
	return active
}

func (h *harness) spotifyRecords() int {
	h.t.Helper()
	records, err := h.repo.List(h.ctx, map[string]any{"provider": models.ProviderSpotify})
	if err != nil {
		h.t.Fatalf("failed to list integrations: %v", err)
	}
	return len(records)
}

// snapshot renders every piece of local state the controller owns.
func (h *harness) snapshot() string {
	h.t.Helper()
	records, err := h.repo.List(h.ctx, nil)
	if err != nil {
		h.t.Fatalf("failed to list integrations: %v", err)
	}

	out := ""
	for _, r := range records {
		out += fmt.Sprintf("%s|%d|%s|%s|%s|%s;", r.ID(), r.Sequence(), r.Provider(), r.Status(), r.AccessToken(), r.RefreshToken())
	}
	out += fmt.Sprintf("user=%+v;", h.cache.Get())
	out += fmt.Sprintf("configs=%d:%+v", len(h.sink.configs), h.sink.last())
	return out
}

func (h *harness) topics() []events.Topic {
	topics := make([]events.Topic, 0, len(h.events))
	for _, e := range h.events {
		topics = append(topics, e.Topic)
	}
	return topics
}

var errRemote = errors.New("remote unavailable")
