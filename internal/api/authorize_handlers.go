package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/internal/core"
)

// handleAuthorize runs the host capabilities over an incoming
// authorization request. Authenticate may answer the request itself
// (login redirect); once it continues, consent runs, and the resolved
// request is handed to the issuance engine.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	req := core.NewAuthRequest(w, r, s.host)

	decision, err := s.host.Authenticate(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("authenticate capability failed")
		presenter.Error(w, r, "authentication failed", http.StatusInternalServerError)
		return
	}
	if decision == core.DecisionResponseSent {
		return
	}

	decision, err = s.host.ObtainConsent(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("consent capability failed")
		presenter.Error(w, r, "consent failed", http.StatusInternalServerError)
		return
	}
	if decision == core.DecisionResponseSent {
		return
	}

	logger.Debug().Str("subject", req.Subject().ID).Msg("subject resolved, delegating to issuance")

	if err := s.issuance.Authorize(ctx, req); err != nil {
		logger.Error().Err(err).Msg("issuance engine failed")
		presenter.Err(w, r, err, "authorization failed")
	}
}
