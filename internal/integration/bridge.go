package integration

import (
	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/services"
	"github.com/desertthunder/musictime/internal/shared"
)

// ConfigSink receives full playback configuration snapshots.
type ConfigSink interface {
	SetConfig(services.PlaybackConfig)
}

// CredentialBridge translates the authoritative integration into a [services.PlaybackConfig]
// and pushes it to the playback layer.
type CredentialBridge struct {
	sink  ConfigSink
	isMac func() bool
}

// NewCredentialBridge creates a bridge publishing to sink.
func NewCredentialBridge(sink ConfigSink) *CredentialBridge {
	return &CredentialBridge{sink: sink, isMac: shared.IsMac}
}

// Publish builds a snapshot from active and the client credentials and hands it to the sink.
//
// A nil active integration publishes empty tokens, which the playback layer treats as logged out.
// Desktop player flags depend only on the host platform and are set on every call.
func (b *CredentialBridge) Publish(active *models.Integration, clientID, clientSecret string) services.PlaybackConfig {
	mac := b.isMac()
	config := services.PlaybackConfig{
		SpotifyClientID:                 clientID,
		SpotifyClientSecret:             clientSecret,
		EnableSpotifyDesktop:            mac,
		EnableItunesDesktop:             false,
		EnableItunesDesktopSongTracking: mac,
	}

	if active != nil {
		config.SpotifyAccessToken = active.AccessToken()
		config.SpotifyRefreshToken = active.RefreshToken()
	}

	b.sink.SetConfig(config)
	return config
}
