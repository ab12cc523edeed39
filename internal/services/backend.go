package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/shared"
	"golang.org/x/time/rate"
)

const defaultAPIEndpoint = "https://api.software.com"

// BackendService provides methods for calling the account backend.
type BackendService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewBackendService creates a new backend client. A non-positive rps disables rate limiting.
func NewBackendService(baseURL string, client *http.Client, rps float64) *BackendService {
	if baseURL == "" {
		baseURL = defaultAPIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &BackendService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// BaseURL returns the backend root used to build browser redirects.
func (b *BackendService) BaseURL() string {
	return b.baseURL
}

// ClientInfo fetches the Spotify application credentials.
func (b *BackendService) ClientInfo(ctx context.Context, session string) (*ClientInfo, error) {
	var info ClientInfo
	if err := b.do(ctx, http.MethodGet, "/auth/spotify/clientInfo", session, nil, &info); err != nil {
		return nil, err
	}
	if info.ClientID == "" {
		return nil, fmt.Errorf("%w: backend returned no spotify client id", shared.ErrMissingCredentials)
	}
	return &info, nil
}

// DisconnectSpotify asks the backend to invalidate its Spotify tokens for the session user.
func (b *BackendService) DisconnectSpotify(ctx context.Context, session string) error {
	return b.do(ctx, http.MethodPut, "/auth/spotify/disconnect", session, map[string]any{}, nil)
}

// CurrentUser fetches the signed-in user with their linked integrations.
func (b *BackendService) CurrentUser(ctx context.Context, session string) (*models.RemoteUser, error) {
	var user models.RemoteUser
	if err := b.do(ctx, http.MethodGet, "/users/me", session, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do performs a rate-limited JSON request against the backend.
func (b *BackendService) do(ctx context.Context, method, path, session string, body, result any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("Authorization", session)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s %s", shared.ErrNotAuthenticated, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s status %d", shared.ErrAPIRequest, method, path, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}

	return nil
}
