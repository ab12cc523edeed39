package integration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musictime/internal/events"
	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/repositories"
	"github.com/desertthunder/musictime/internal/services"
	"github.com/desertthunder/musictime/internal/shared"
)

// Keys in the local key-value store.
const (
	KeySessionToken       = "jwt"
	KeyAuthCallbackState  = "auth_callback_state"
	KeyLegacySpotifyToken = "spotify_access_token"
	KeyPluginUUID         = "plugin_uuid"
)

const (
	msgConnectDifferent  = "Connect with a different Spotify account?"
	msgConfirmDisconnect = "Are you sure you would like to disconnect Spotify?"
	msgConfirmSwitch     = "Are you sure you would like to connect to a different Spotify account?"
	msgDisconnected      = "Successfully disconnected your Spotify connection."
)

const defaultRefreshDelay = time.Second

// Store is the integration record registry.
type Store interface {
	IntegrationReader
	ClearSpotify(ctx context.Context) (int, error)
	ReplaceFromRemote(ctx context.Context, user *models.RemoteUser) error
}

// Backend is the account backend that brokers the Spotify OAuth flow.
type Backend interface {
	UserFetcher
	BaseURL() string
	ClientInfo(ctx context.Context, session string) (*services.ClientInfo, error)
	DisconnectSpotify(ctx context.Context, session string) error
}

// Prompter asks the user yes/no questions and shows final messages.
//
// Anything but an explicit yes, including an error, counts as "no".
type Prompter interface {
	Confirm(ctx context.Context, message string) (bool, error)
	Inform(message string)
}

// Outcome describes how a user-driven operation ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeDeclined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// Result is returned by connect, disconnect and switch. AuthURL is set when a browser redirect was dispatched.
type Result struct {
	Outcome Outcome
	AuthURL string
}

// Declined reports whether the user said no.
func (r Result) Declined() bool {
	return r.Outcome == OutcomeDeclined
}

// Status is a read-only view of the link for display.
type Status struct {
	Integration *models.Integration
	User        *services.SpotifyUser
	Session     *shared.SessionClaims
}

// Connected reports whether an authoritative integration exists.
func (s Status) Connected() bool {
	return s.Integration != nil
}

// Options configures a [Controller]. Store, Settings, Backend, Bridge, Cache and Prompter are required.
type Options struct {
	Store        Store
	Settings     repositories.KeyValueStore
	Backend      Backend
	Bridge       *CredentialBridge
	Cache        *UserCache
	Credentials  *ClientCredentials
	Prompter     Prompter
	Events       events.Publisher
	Plugin       shared.PluginConfig
	RefreshDelay time.Duration
	OpenBrowser  func(url string) error
	Logger       *log.Logger
}

// Controller orchestrates the Spotify link: connect, disconnect, switch and legacy migration.
//
// Local mutations (store writes, config publishes, cache invalidation) are serialized by an
// internal lock. Prompts and remote calls happen outside of it, so a second call made while a
// prompt is open proceeds independently and every step it takes is either idempotent or gated
// by its own confirmation.
type Controller struct {
	mu sync.Mutex

	store       Store
	settings    repositories.KeyValueStore
	backend     Backend
	bridge      *CredentialBridge
	cache       *UserCache
	credentials *ClientCredentials
	prompter    Prompter
	events      events.Publisher
	plugin      shared.PluginConfig
	migrator    *LegacyMigrator
	logger      *log.Logger

	refreshDelay time.Duration
	openBrowser  func(string) error
	isMac        func() bool
	now          func() time.Time
	schedule     func(time.Duration, func())
	pending      sync.WaitGroup
}

// New creates a [Controller].
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "integration")

	c := &Controller{
		store:        opts.Store,
		settings:     opts.Settings,
		backend:      opts.Backend,
		bridge:       opts.Bridge,
		cache:        opts.Cache,
		credentials:  opts.Credentials,
		prompter:     opts.Prompter,
		events:       opts.Events,
		plugin:       opts.Plugin,
		logger:       logger,
		refreshDelay: opts.RefreshDelay,
		openBrowser:  opts.OpenBrowser,
		isMac:        shared.IsMac,
		now:          time.Now,
		schedule:     func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}

	if c.credentials == nil {
		c.credentials = &ClientCredentials{}
	}
	if c.events == nil {
		c.events = events.NewBus()
	}
	if c.refreshDelay <= 0 {
		c.refreshDelay = defaultRefreshDelay
	}
	if c.openBrowser == nil {
		c.openBrowser = shared.OpenBrowser
	}

	c.migrator = NewLegacyMigrator(c.store, c.settings, c.backend, c, logger)
	return c
}

// Connect starts the browser OAuth flow.
//
// When an authoritative integration exists the user must confirm replacing it; on yes it is
// disconnected silently first. The flow ends once the redirect has been dispatched; the
// tokens arrive later through the inbound callback.
func (c *Controller) Connect(ctx context.Context) (Result, error) {
	active, err := c.store.ActiveSpotify(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	if active != nil {
		if !c.confirm(ctx, msgConnectDifferent) {
			c.logger.Info("connect declined")
			return Result{Outcome: OutcomeDeclined}, nil
		}
		if _, err := c.Disconnect(ctx, false); err != nil {
			return Result{}, err
		}
	}

	return c.redirect(ctx)
}

// Disconnect unlinks the Spotify account.
//
// With requireConfirmation the user is asked first and any answer but yes aborts with no side
// effects. The backend is told to revoke its tokens on a best-effort basis; local records are
// cleared whether or not that call succeeds.
func (c *Controller) Disconnect(ctx context.Context, requireConfirmation bool) (Result, error) {
	if requireConfirmation && !c.confirm(ctx, msgConfirmDisconnect) {
		c.logger.Info("disconnect declined")
		return Result{Outcome: OutcomeDeclined}, nil
	}

	if err := c.backend.DisconnectSpotify(ctx, c.session(ctx)); err != nil {
		c.logger.Warn("failed to revoke spotify tokens on the backend, clearing local records anyway", "error", err)
	}

	c.mu.Lock()
	removed, clearErr := c.store.ClearSpotify(ctx)
	configErr := c.updateConfigLocked(ctx)
	c.cache.Invalidate()
	c.mu.Unlock()

	c.events.Publish(events.Event{Topic: events.TopicSyncPlaybackStatus, Running: false})
	c.after(c.refreshDelay, func() {
		c.events.Publish(events.Event{Topic: events.TopicRefreshPlaylists})
		c.events.Publish(events.Event{Topic: events.TopicRefreshRecommendations})
	})

	if clearErr != nil {
		return Result{}, fmt.Errorf("%w: %v", shared.ErrStorage, clearErr)
	}
	if configErr != nil {
		return Result{}, configErr
	}

	c.logger.Info("spotify disconnected", "removed", removed)
	if requireConfirmation {
		c.prompter.Inform(msgDisconnected)
	}
	return Result{Outcome: OutcomeCompleted}, nil
}

// SwitchAccount disconnects the current account and starts a new connect flow after one confirmation.
//
// A failed disconnect is logged and the connect still runs.
func (c *Controller) SwitchAccount(ctx context.Context) (Result, error) {
	if !c.confirm(ctx, msgConfirmSwitch) {
		c.logger.Info("switch declined")
		return Result{Outcome: OutcomeDeclined}, nil
	}

	c.cache.Invalidate()
	if _, err := c.Disconnect(ctx, false); err != nil {
		c.logger.Warn("disconnect failed during account switch", "error", err)
	}

	return c.Connect(ctx)
}

// IsPremiumUser reports whether the connected user is on the premium tier.
func (c *Controller) IsPremiumUser(ctx context.Context) bool {
	return c.cache.IsPremium(ctx)
}

// HasSpotifyUser reports whether a Spotify profile is cached.
func (c *Controller) HasSpotifyUser() bool {
	return c.cache.HasUser()
}

// RefreshUser loads the Spotify profile into the cache. See [UserCache.Refresh].
func (c *Controller) RefreshUser(ctx context.Context, force bool) {
	c.cache.Refresh(ctx, force)
}

// UpdateClientCredentials fetches the Spotify application credentials from the backend.
//
// A failed fetch keeps the previous pair. It does not publish; see [Controller.UpdateConfig].
func (c *Controller) UpdateClientCredentials(ctx context.Context) {
	info, err := c.backend.ClientInfo(ctx, c.session(ctx))
	if err != nil {
		c.logger.Warn("failed to fetch spotify client info", "error", err)
		return
	}
	if info == nil || info.ClientID == "" {
		c.logger.Warn("backend returned empty spotify client info")
		return
	}

	c.credentials.Set(info.ClientID, info.ClientSecret)
	c.logger.Debug("updated spotify client credentials")
}

// UpdateConfig publishes the authoritative integration and cached client credentials to the playback layer.
func (c *Controller) UpdateConfig(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateConfigLocked(ctx)
}

func (c *Controller) updateConfigLocked(ctx context.Context) error {
	active, err := c.store.ActiveSpotify(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	if active == nil {
		c.cache.Invalidate()
	}

	id, secret := c.credentials.Get()
	config := c.bridge.Publish(active, id, secret)
	c.logger.Debug("published playback config", "logged_in", config.LoggedIn(), "client_id", id != "")
	return nil
}

// MigrateLegacyAccess promotes a legacy single-token credential into integration records.
// See [LegacyMigrator.Migrate].
func (c *Controller) MigrateLegacyAccess(ctx context.Context) (bool, error) {
	return c.migrator.Migrate(ctx)
}

// CheckCallbackState verifies that state matches the token sent with the last redirect.
func (c *Controller) CheckCallbackState(ctx context.Context, state string) error {
	expected, err := c.settings.Get(ctx, KeyAuthCallbackState)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if expected == "" || state != expected {
		return fmt.Errorf("%w: callback state mismatch", shared.ErrInvalidState)
	}
	return nil
}

// CompleteConnect finishes a browser flow: it reloads the user's integrations from the backend,
// republishes the config and refreshes the cached profile.
func (c *Controller) CompleteConnect(ctx context.Context) (*models.Integration, error) {
	user, err := c.backend.CurrentUser(ctx, c.session(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	c.mu.Lock()
	if err := c.store.ReplaceFromRemote(ctx, user); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	err = c.updateConfigLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	active, err := c.store.ActiveSpotify(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if active == nil {
		return nil, fmt.Errorf("%w: backend reported no active spotify integration", shared.ErrNotFound)
	}

	c.cache.Refresh(ctx, true)
	c.events.Publish(events.Event{Topic: events.TopicRefreshPlaylists})
	c.events.Publish(events.Event{Topic: events.TopicRefreshRecommendations})

	c.logger.Info("spotify connected", "integration", active.ID())
	return active, nil
}

// Status reads the current link without changing it. A missing profile is fetched lazily.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	active, err := c.store.ActiveSpotify(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	status := Status{Integration: active}
	if active != nil {
		c.cache.Refresh(ctx, false)
		status.User = c.cache.Get()
	}

	if claims, err := shared.ParseSessionClaims(c.session(ctx)); err == nil {
		status.Session = claims
	}
	return status, nil
}

// Wait blocks until scheduled refresh notifications have been published.
func (c *Controller) Wait() {
	c.pending.Wait()
}

func (c *Controller) redirect(ctx context.Context) (Result, error) {
	session := c.session(ctx)
	c.checkSession(session)

	state, err := c.getOrCreate(ctx, KeyAuthCallbackState, shared.GenerateState)
	if err != nil {
		return Result{}, err
	}
	pluginUUID, err := c.getOrCreate(ctx, KeyPluginUUID, shared.GenerateID)
	if err != nil {
		return Result{}, err
	}

	authURL := c.authURL(session, state, pluginUUID)
	if err := c.openBrowser(authURL); err != nil {
		c.logger.Warn("failed to open browser, open the authorization URL manually", "error", err)
	}

	c.logger.Info("spotify authorization dispatched")
	return Result{Outcome: OutcomeCompleted, AuthURL: authURL}, nil
}

func (c *Controller) authURL(session, state, pluginUUID string) string {
	q := url.Values{}
	q.Set("plugin", c.plugin.Type)
	q.Set("plugin_uuid", pluginUUID)
	q.Set("pluginVersion", c.plugin.Version)
	q.Set("plugin_id", strconv.Itoa(c.plugin.ID))
	q.Set("mac", strconv.FormatBool(c.isMac()))
	q.Set("auth_callback_state", state)
	q.Set("plugin_token", session)
	return c.backend.BaseURL() + "/auth/spotify?" + q.Encode()
}

func (c *Controller) checkSession(session string) {
	if session == "" {
		c.logger.Warn("no session token stored, the backend will not be able to link the account")
		return
	}

	claims, err := shared.ParseSessionClaims(session)
	switch {
	case errors.Is(err, shared.ErrInvalidSession):
		c.logger.Debug("session token is not a readable JWT", "error", err)
	case err == nil && claims.Expired(c.now()):
		c.logger.Warn("session token has expired", "expired_at", claims.ExpiresAt.Time)
	}
}

// getOrCreate holds the lock across read, generate and write so overlapping connects share one value.
func (c *Controller) getOrCreate(ctx context.Context, key string, generate func() string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := c.settings.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if value != "" {
		return value, nil
	}

	value = generate()
	if err := c.settings.Set(ctx, key, value); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return value, nil
}

func (c *Controller) session(ctx context.Context) string {
	session, err := c.settings.Get(ctx, KeySessionToken)
	if err != nil {
		c.logger.Warn("failed to read session token", "error", err)
		return ""
	}
	return session
}

func (c *Controller) confirm(ctx context.Context, message string) bool {
	if c.prompter == nil {
		return false
	}

	ok, err := c.prompter.Confirm(ctx, message)
	if err != nil {
		c.logger.Debug("prompt dismissed", "error", err)
		return false
	}
	return ok
}

func (c *Controller) after(d time.Duration, fn func()) {
	c.pending.Add(1)
	c.schedule(d, func() {
		defer c.pending.Done()
		fn()
	})
}
