package domain

import (
	"github.com/google/uuid"
)

// ConnID identifies one live transport connection
type ConnID string

// Identity is the authenticated user behind a connection
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Avatar      string
}

// Peer returns the public view of the identity
func (i Identity) Peer() PeerInfo {
	return PeerInfo{UserID: i.UserID, DisplayName: i.DisplayName, Avatar: i.Avatar}
}

// Profile is the canonical display data held by the user store
type Profile struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty" db:"avatar_url"`
}

// Avatar returns the avatar reference or an empty string
func (p *Profile) Avatar() string {
	if p.AvatarURL == nil {
		return ""
	}
	return *p.AvatarURL
}

// Name returns the display name, falling back to the username
func (p *Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// PeerInfo is the identity shown to other users
type PeerInfo struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
}

// PresenceEntry is one distinct online user
type PresenceEntry = PeerInfo
