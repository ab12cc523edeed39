package integration

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/services"
)

// ProfileFetcher loads the Spotify profile for the currently published credentials.
type ProfileFetcher interface {
	UserProfile(ctx context.Context) (*services.SpotifyUser, error)
}

// IntegrationReader is read-only access to the authoritative integration.
type IntegrationReader interface {
	ActiveSpotify(ctx context.Context) (*models.Integration, error)
}

// UserCache holds the last fetched Spotify profile.
type UserCache struct {
	mu       sync.RWMutex
	user     *services.SpotifyUser
	store    IntegrationReader
	profiles ProfileFetcher
	logger   *log.Logger
}

func NewUserCache(store IntegrationReader, profiles ProfileFetcher, logger *log.Logger) *UserCache {
	return &UserCache{store: store, profiles: profiles, logger: logger}
}

// Get returns a copy of the cached profile without fetching, or nil.
func (c *UserCache) Get() *services.SpotifyUser {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.user == nil {
		return nil
	}
	user := *c.user
	return &user
}

// HasUser reports whether a cached profile carries a product tier.
func (c *UserCache) HasUser() bool {
	user := c.Get()
	return user != nil && user.Product != ""
}

func (c *UserCache) hasID() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil && c.user.ID != ""
}

func (c *UserCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
}

// Refresh fetches the profile when an active integration exists and force is set, nothing is
// cached or the cached profile lacks an id. Failures keep the previous value and are only logged.
func (c *UserCache) Refresh(ctx context.Context, force bool) {
	active, err := c.store.ActiveSpotify(ctx)
	if err != nil {
		c.logger.Warn("failed to read spotify integration", "error", err)
		return
	}
	if active == nil {
		return
	}

	if !force && c.hasID() {
		return
	}

	user, err := c.profiles.UserProfile(ctx)
	if err != nil {
		c.logger.Warn("failed to fetch spotify profile", "error", err)
		return
	}
	if user == nil {
		return
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
	c.logger.Debug("cached spotify profile", "id", user.ID, "product", user.Product)
}

// IsPremium reports whether the cached profile is on the premium tier.
//
// A cached non-premium profile is refreshed once before answering so late tier upgrades are seen.
// Without a cached profile it answers false and does not fetch.
func (c *UserCache) IsPremium(ctx context.Context) bool {
	user := c.Get()
	if user == nil {
		return false
	}
	if user.IsPremium() {
		return true
	}

	c.Refresh(ctx, true)
	return c.Get().IsPremium()
}
