package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/repositories"
	"github.com/desertthunder/musictime/internal/shared"
)

// UserFetcher loads the signed-in backend user with their linked integrations.
type UserFetcher interface {
	CurrentUser(ctx context.Context, session string) (*models.RemoteUser, error)
}

// ConfigUpdater republishes the playback configuration.
type ConfigUpdater interface {
	UpdateConfig(ctx context.Context) error
}

// LegacyMigrator promotes the pre-integration single access token into integration records.
type LegacyMigrator struct {
	store    Store
	settings repositories.KeyValueStore
	users    UserFetcher
	config   ConfigUpdater
	logger   *log.Logger
}

func NewLegacyMigrator(store Store, settings repositories.KeyValueStore, users UserFetcher, config ConfigUpdater, logger *log.Logger) *LegacyMigrator {
	return &LegacyMigrator{store: store, settings: settings, users: users, config: config, logger: logger}
}

// Migrate runs only when no authoritative integration exists and the legacy token is set.
//
// It rebuilds the records from the backend user and republishes the config, then clears the
// legacy token whether or not a usable record was found, so it never runs twice. Returns true
// when an active integration exists afterwards.
func (m *LegacyMigrator) Migrate(ctx context.Context) (bool, error) {
	active, err := m.store.ActiveSpotify(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if active != nil {
		return false, nil
	}

	legacy, err := m.settings.Get(ctx, KeyLegacySpotifyToken)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if legacy == "" {
		return false, nil
	}

	migrated, migrateErr := m.promote(ctx)

	if err := m.settings.Set(ctx, KeyLegacySpotifyToken, ""); err != nil {
		return migrated, errors.Join(migrateErr, fmt.Errorf("%w: %v", shared.ErrStorage, err))
	}

	m.logger.Info("legacy spotify token migrated", "active", migrated)
	return migrated, migrateErr
}

func (m *LegacyMigrator) promote(ctx context.Context) (bool, error) {
	session, err := m.settings.Get(ctx, KeySessionToken)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	user, err := m.users.CurrentUser(ctx, session)
	if err != nil {
		m.logger.Warn("failed to fetch user for legacy migration", "error", err)
		return false, nil
	}
	if user == nil {
		return false, nil
	}

	if err := m.store.ReplaceFromRemote(ctx, user); err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if err := m.config.UpdateConfig(ctx); err != nil {
		return false, err
	}

	active, err := m.store.ActiveSpotify(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return active != nil, nil
}
