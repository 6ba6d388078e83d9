package core

import (
	"context"
	"net/http"
)

// Discoverer resolves the provider an identity document declares
// authoritative for itself.
type Discoverer interface {
	DiscoverPreferredProvider(ctx context.Context, identityURI string) (string, error)
}

// Session is the host-visible view of per-request session state.
type Session struct {
	Identified bool
	UserID     string
}

// SessionReader exposes read-only session state to host capabilities.
type SessionReader interface {
	Read(r *http.Request) Session
}

// ConsentCollaborator runs the consent flow for an authorization
// request. With skip set, consent is granted without user interaction.
type ConsentCollaborator interface {
	Obtain(ctx context.Context, req *AuthRequest, skip bool) error
}

// LogoutCollaborator ends the session behind a logout request and writes
// the post-logout response.
type LogoutCollaborator interface {
	Logout(ctx context.Context, req *AuthRequest) error
}
