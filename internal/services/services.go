// package services defines HTTP clients for the account backend and the Spotify playback layer
package services

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, open
}

// IsPremium reports whether the profile is on the premium tier.
func (u *SpotifyUser) IsPremium() bool {
	return u != nil && u.Product == "premium"
}

// ClientInfo holds the Spotify application credentials issued by the backend.
type ClientInfo struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}
