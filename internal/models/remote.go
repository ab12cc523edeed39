package models

import "strings"

// RemoteUser is the account backend's representation of the signed-in user.
type RemoteUser struct {
	ID           int64               `json:"id"`
	Email        string              `json:"email"`
	Integrations []RemoteIntegration `json:"integrations"`
}

// RemoteIntegration is a linked account as reported by the backend.
type RemoteIntegration struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ProviderIntegrations derives unsaved [Integration] records for provider, in payload order.
func (u *RemoteUser) ProviderIntegrations(provider string) []*Integration {
	if u == nil {
		return nil
	}

	var out []*Integration
	for _, ri := range u.Integrations {
		if !strings.EqualFold(ri.Name, provider) {
			continue
		}
		status := ri.Status
		if status == "" {
			status = StatusInactive
		}
		out = append(out, NewIntegration(0, strings.ToLower(ri.Name), status, ri.AccessToken, ri.RefreshToken))
	}
	return out
}
