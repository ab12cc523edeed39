// Package services implements the HTTP collaborators of the Spotify integration lifecycle.
//
// # Backend
//
// [BackendService] talks to the account backend that brokers the Spotify OAuth flow:
//   - GET /auth/spotify/clientInfo returns the Spotify application credentials
//   - PUT /auth/spotify/disconnect invalidates server-side tokens
//   - GET /users/me returns the signed-in user with their linked integrations
//
// Every request carries the session token in the Authorization header and waits on a
// [rate.Limiter] so retries from the editor cannot flood the backend.
//
// # Playback Library
//
// [PlaybackLibrary] is the playback-control layer. It accepts full configuration snapshots
// through [PlaybackLibrary.SetConfig] and uses the published tokens to call the Spotify Web API.
// The [oauth2.Client] automatically refreshes expired tokens using the refresh token.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : no access token has been published
//   - [shared.ErrTokenExpired] : Spotify rejected the token
//   - [shared.ErrAPIRequest] : HTTP request failed or returned a non-2xx status
package services
