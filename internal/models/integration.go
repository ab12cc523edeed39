package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProviderSpotify = "spotify"

	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusRevoked  = "revoked"
)

// Integration is a stored link to a third-party music provider.
//
// Records are never edited in place: the controller replaces the whole provider set on every material change.
// The sequence orders records by insertion; among duplicates the highest sequence is authoritative.
type Integration struct {
	id           string
	sequence     int
	provider     string
	status       string
	accessToken  string
	refreshToken string
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewIntegration creates an unsaved [Integration]. The repository assigns ID and sequence on insert.
func NewIntegration(sequence int, provider, status, accessToken, refreshToken string) *Integration {
	now := time.Now()
	return &Integration{
		sequence:     sequence,
		provider:     provider,
		status:       status,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (i *Integration) ID() string            { return i.id }
func (i *Integration) Sequence() int         { return i.sequence }
func (i *Integration) Provider() string      { return i.provider }
func (i *Integration) Status() string        { return i.status }
func (i *Integration) AccessToken() string   { return i.accessToken }
func (i *Integration) RefreshToken() string  { return i.refreshToken }
func (i *Integration) CreatedAt() time.Time  { return i.createdAt }
func (i *Integration) UpdatedAt() time.Time  { return i.updatedAt }
func (i *Integration) DeletedAt() *time.Time { return i.deletedAt }

func (i *Integration) SetID(id string)           { i.id = id }
func (i *Integration) SetSequence(seq int)       { i.sequence = seq }
func (i *Integration) SetCreatedAt(t time.Time)  { i.createdAt = t }
func (i *Integration) SetUpdatedAt(t time.Time)  { i.updatedAt = t }
func (i *Integration) SetDeletedAt(t *time.Time) { i.deletedAt = t }

// IsProvider reports whether the record belongs to provider, ignoring case.
func (i *Integration) IsProvider(provider string) bool {
	return strings.EqualFold(i.provider, provider)
}

// IsActive reports whether the record's status is "active", ignoring case.
func (i *Integration) IsActive() bool {
	return strings.EqualFold(i.status, StatusActive)
}

// HasCredentials reports whether the record carries an access token.
func (i *Integration) HasCredentials() bool {
	return i.accessToken != ""
}

// Validate checks required fields.
func (i *Integration) Validate() error {
	if strings.TrimSpace(i.provider) == "" {
		return fmt.Errorf("integration provider is required")
	}
	if strings.TrimSpace(i.status) == "" {
		return fmt.Errorf("integration status is required")
	}
	return nil
}

// LastActive returns the last record in records that belongs to provider and is active, or nil.
//
// Storage order is insertion order, so the last match is the newest one.
func LastActive(records []*Integration, provider string) *Integration {
	for idx := len(records) - 1; idx >= 0; idx-- {
		if r := records[idx]; r.IsProvider(provider) && r.IsActive() {
			return r
		}
	}
	return nil
}
