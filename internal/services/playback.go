package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/desertthunder/musictime/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// PlaybackConfig is a full configuration snapshot for the playback layer.
//
// Empty tokens mean "logged out": only desktop players remain usable.
type PlaybackConfig struct {
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyAccessToken  string
	SpotifyRefreshToken string

	EnableSpotifyDesktop            bool
	EnableItunesDesktop             bool
	EnableItunesDesktopSongTracking bool
}

// LoggedIn reports whether the snapshot carries Spotify credentials.
func (c PlaybackConfig) LoggedIn() bool {
	return c.SpotifyAccessToken != ""
}

// Token converts the snapshot credentials into an [oauth2.Token]. Returns nil when logged out.
func (c PlaybackConfig) Token() *oauth2.Token {
	if !c.LoggedIn() {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.SpotifyAccessToken,
		RefreshToken: c.SpotifyRefreshToken,
		TokenType:    "Bearer",
	}
}

// PlaybackLibrary is the playback-control layer. It holds the last published [PlaybackConfig]
// and calls the Spotify Web API with the tokens it carries.
type PlaybackLibrary struct {
	mu         sync.RWMutex
	config     PlaybackConfig
	baseURL    string
	transport  *http.Client
	httpClient *http.Client
}

// NewPlaybackLibrary creates a logged-out playback library.
//
// baseURL defaults to the Spotify Web API and client to [http.DefaultClient]; both are
// overridable so tests can point the library at a local server.
func NewPlaybackLibrary(baseURL string, client *http.Client) *PlaybackLibrary {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PlaybackLibrary{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: client,
	}
}

// SetConfig replaces the current configuration. A snapshot without an access token logs the library out.
func (p *PlaybackLibrary) SetConfig(config PlaybackConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.config = config
	if !config.LoggedIn() {
		p.httpClient = nil
		return
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.SpotifyClientID,
		ClientSecret: config.SpotifyClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.transport)
	p.httpClient = oauthConfig.Client(ctx, config.Token())
}

// Config returns the current configuration snapshot.
func (p *PlaybackLibrary) Config() PlaybackConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// UserProfile retrieves the current authenticated user's profile.
func (p *PlaybackLibrary) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := p.doRequest(ctx, http.MethodGet, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (p *PlaybackLibrary) doRequest(ctx context.Context, method, endpoint string, result any) error {
	p.mu.RLock()
	client := p.httpClient
	p.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("%w: no spotify access token configured", shared.ErrNotAuthenticated)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: spotify rejected the access token", shared.ErrTokenExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
