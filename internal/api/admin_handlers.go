package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/internal/core"
)

// ClientSummary is the admin view of a relying-party registration. The
// client secret never leaves the store.
type ClientSummary struct {
	Issuer       string    `json:"issuer"`
	ClientID     string    `json:"client_id"`
	RedirectURIs []string  `json:"redirect_uris"`
	RegisteredAt time.Time `json:"registered_at"`
}

// handleAdminClients lists the relying-party registrations of this host.
func (s *Server) handleAdminClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	regs, err := s.clients.List()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list client registrations")
		presenter.Error(w, r, "failed to list client registrations", http.StatusInternalServerError)
		return
	}

	out := make([]ClientSummary, 0, len(regs))
	for _, reg := range regs {
		out = append(out, ClientSummary{
			Issuer:       reg.Issuer,
			ClientID:     reg.ClientID,
			RedirectURIs: reg.RedirectURIs,
			RegisteredAt: reg.RegisteredAt,
		})
	}

	presenter.JSON(w, r, out, http.StatusOK)
}

// handleAdminAudit processes requests to retrieve audit log entries.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	// filters
	q := r.URL.Query()
	limitStr := q.Get("limit")

	filterCorrelationID := q.Get("correlation_id")
	filterWebID := q.Get("webid")
	filterAction := q.Get("action")

	limit := 50
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err != nil {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		} else {
			limit = v
		}
	}

	var entries []core.AuditEntry
	var err error

	if filterCorrelationID != "" || filterWebID != "" || filterAction != "" {
		logger.Info().Msgf("applying audit log filters")
		entries, err = s.querier.Find(func(entry core.AuditEntry) bool {
			if filterCorrelationID != "" && entry.ID != filterCorrelationID {
				return false
			}
			if filterWebID != "" && entry.WebID != filterWebID {
				return false
			}
			if filterAction != "" && entry.Action != filterAction {
				return false
			}
			return true
		}, limit)
	} else {
		log.Debug().Msgf("retrieving recent audit log entries")
		entries, err = s.querier.GetRecent(limit)
	}

	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}

	presenter.JSON(w, r, entries, http.StatusOK)
}
