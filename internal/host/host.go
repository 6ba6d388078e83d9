// Package host builds the capability set the authorization flow calls
// back into: authenticate, obtain consent, log out. It ships working
// defaults wired to the local session store; deployments can override
// any single capability on the returned set.
package host

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/core"
)

// DefaultLoginPath is where unauthenticated users are sent.
const DefaultLoginPath = "/login"

// Options tune the default capabilities. They usually come from the
// free-form host section of the configuration file.
type Options struct {
	// LoginPath overrides where unauthenticated users are redirected.
	LoginPath string `mapstructure:"login_path"`

	// SkipConsent controls whether consent is granted without user
	// interaction. Defaults to true.
	SkipConsent *bool `mapstructure:"skip_consent"`
}

// OptionsFromMap decodes the host configuration section.
func OptionsFromMap(m map[string]any) (*Options, error) {
	var opts Options
	if err := mapstructure.Decode(m, &opts); err != nil {
		return nil, fmt.Errorf("host: decoding options: %w", err)
	}
	return &opts, nil
}

// Deps are the collaborators behind the default capabilities.
type Deps struct {
	Sessions core.SessionReader
	Consent  core.ConsentCollaborator
	Logout   core.LogoutCollaborator
}

// New builds the host capability set.
func New(opts *Options, deps Deps) *core.HostAPI {
	if opts == nil {
		opts = &Options{}
	}
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	skipConsent := true
	if opts.SkipConsent != nil {
		skipConsent = *opts.SkipConsent
	}

	return &core.HostAPI{
		Authenticate:  authenticate(deps.Sessions, loginPath),
		ObtainConsent: obtainConsent(deps.Consent, skipConsent),
		Logout:        logout(deps.Logout),
	}
}

// authenticate resolves the subject from session state. Anonymous
// requests are resolved to no subject and redirected to the login flow,
// with the original query string preserved so the authorization request
// can resume after sign-in.
func authenticate(sessions core.SessionReader, loginPath string) func(context.Context, *core.AuthRequest) (core.Decision, error) {
	return func(ctx context.Context, req *core.AuthRequest) (core.Decision, error) {
		sess := sessions.Read(req.Request)
		if sess.Identified && sess.UserID != "" {
			if err := req.SetSubject(&core.Subject{ID: sess.UserID}); err != nil {
				return core.DecisionContinue, err
			}
			log.Ctx(ctx).Debug().Str("user_id", sess.UserID).Msg("subject resolved from session")
			return core.DecisionContinue, nil
		}

		if err := req.ClearSubject(); err != nil {
			return core.DecisionContinue, err
		}

		target := loginPath
		if q := req.Request.URL.RawQuery; q != "" {
			target += "?" + q
		}
		http.Redirect(req.Response, req.Request, target, http.StatusFound)
		return core.DecisionResponseSent, nil
	}
}

// obtainConsent delegates to the consent collaborator. Collaborator
// failures are logged, never propagated.
func obtainConsent(consent core.ConsentCollaborator, skip bool) func(context.Context, *core.AuthRequest) (core.Decision, error) {
	return func(ctx context.Context, req *core.AuthRequest) (core.Decision, error) {
		if consent == nil {
			return core.DecisionContinue, nil
		}
		if err := consent.Obtain(ctx, req, skip); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("consent collaborator failed, continuing")
		}
		return core.DecisionContinue, nil
	}
}

// logout delegates to the logout collaborator, which owns the response.
// Collaborator failures are logged, never propagated.
func logout(collab core.LogoutCollaborator) func(context.Context, *core.AuthRequest) (core.Decision, error) {
	return func(ctx context.Context, req *core.AuthRequest) (core.Decision, error) {
		if collab == nil {
			return core.DecisionContinue, nil
		}
		if err := collab.Logout(ctx, req); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("logout collaborator failed, continuing")
		}
		return core.DecisionResponseSent, nil
	}
}
