package host

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/session"
)

// AutoConsent grants consent without interaction. Deployments wanting
// an interactive consent screen replace this collaborator.
type AutoConsent struct{}

var _ core.ConsentCollaborator = AutoConsent{}

func (AutoConsent) Obtain(ctx context.Context, req *core.AuthRequest, skip bool) error {
	if !skip {
		return errors.New("host: interactive consent flow not available")
	}
	log.Ctx(ctx).Debug().Msg("consent granted without interaction")
	return nil
}

// SessionLogout ends the browser session and sends the user to the
// post-logout page.
type SessionLogout struct {
	Sessions      *session.Store
	PostLogoutURI string
}

var _ core.LogoutCollaborator = (*SessionLogout)(nil)

func (l *SessionLogout) Logout(ctx context.Context, req *core.AuthRequest) error {
	l.Sessions.Clear(req.Response, req.Request)
	http.Redirect(req.Response, req.Request, l.PostLogoutURI, http.StatusFound)
	log.Ctx(ctx).Debug().Msg("session ended")
	return nil
}
