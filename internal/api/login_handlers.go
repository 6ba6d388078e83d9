package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/api/middleware"
	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/metrics"
	"github.com/solid/oidc-auth-manager/internal/rp"
	"github.com/solid/oidc-auth-manager/internal/users"
	"github.com/solid/oidc-auth-manager/pkg/origin"
)

const (
	// flowCookieName carries the state of a remote sign-in between the
	// redirect to the provider and the callback.
	flowCookieName = "oam_auth_flow"
	flowTTL        = 10 * time.Minute
)

// loginFlow is the round-trip state of a remote sign-in.
type loginFlow struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Issuer   string `json:"issuer"`
	ReturnTo string `json:"return_to"`
}

const loginPage = `<!doctype html>
<meta charset="utf-8">
<title>Sign in</title>
<h1>Sign in</h1>
<form method="post" action="%s">
  <input type="hidden" name="return_to" value="%s">
  <p><label>Username <input name="username" autocomplete="username"></label></p>
  <p><label>Password <input type="password" name="password" autocomplete="current-password"></label></p>
  <p><button>Sign in</button></p>
</form>
<h2>Or use your WebID</h2>
<form method="post" action="%s">
  <input type="hidden" name="return_to" value="%s">
  <p><label>WebID or provider <input name="webid" size="48" placeholder="https://alice.example.com/profile/card#me"></label></p>
  <p><button>Continue</button></p>
</form>
`

// handleLoginPage renders the built-in credential form. The query string
// of the interrupted authorization request rides along so the form can
// send the user back once a session exists.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	returnTo := "/"
	if r.URL.RawQuery != "" {
		returnTo = AuthorizeRoute + "?" + r.URL.RawQuery
	}
	escaped := html.EscapeString(returnTo)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, loginPage, PasswordLoginRoute, escaped, ProviderLoginRoute, escaped)
}

// handlePasswordLogin checks local credentials and starts a session for
// the account's webid.
func (s *Server) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)
	reqID := middleware.CorrelationCtx(ctx)

	auditEntry := core.AuditEntry{
		ID:     reqID,
		Time:   time.Now(),
		Action: "auth.login",
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log")
		}
	}()

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	auditEntry.Username = username

	user, err := s.users.Authenticate(username, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			logger.Warn().Str("username", username).Msg("login rejected")
			presenter.Error(w, r, "invalid username or password", http.StatusUnauthorized)
			auditEntry.Error = "invalid credentials"
			return
		}
		logger.Error().Err(err).Msg("credential check failed")
		presenter.Error(w, r, "login failed", http.StatusInternalServerError)
		auditEntry.Error = "credential check failed"
		return
	}

	s.sessions.Issue(w, user.WebID)
	auditEntry.Granted = true
	auditEntry.WebID = user.WebID

	logger.Info().Str("username", user.Username).Str("webid", user.WebID).Msg("local login")
	http.Redirect(w, r, safeReturnTo(r.FormValue("return_to")), http.StatusFound)
}

// handleProviderLogin starts a remote sign-in: discover the preferred
// provider for the entered identity, then redirect to its authorization
// endpoint with fresh state and nonce.
func (s *Server) handleProviderLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	input := strings.TrimSpace(r.FormValue("webid"))
	if input == "" {
		presenter.Error(w, r, "webid or provider required", http.StatusBadRequest)
		return
	}
	if !origin.IsURI(input) {
		presenter.Error(w, r, "enter an absolute https uri", http.StatusBadRequest)
		return
	}

	provider, err := s.discovery.DiscoverPreferredProvider(ctx, input)
	if err != nil {
		logger.Warn().Err(err).Str("identity", input).Msg("provider discovery failed")
		presenter.Error(w, r, "could not determine a provider for this identity", http.StatusBadRequest)
		return
	}

	party, err := s.clients.Connect(ctx, provider)
	if err != nil {
		if errors.Is(err, rp.ErrNotRegistered) {
			logger.Warn().Str("provider", provider).Msg("no client for provider")
			presenter.Error(w, r, "this provider does not accept client registrations", http.StatusBadRequest)
			return
		}
		logger.Error().Err(err).Str("provider", provider).Msg("provider connect failed")
		presenter.Error(w, r, "could not reach the provider", http.StatusBadGateway)
		return
	}

	state := randToken()
	nonce := randToken()
	s.setFlowCookie(w, &loginFlow{
		State:    state,
		Nonce:    nonce,
		Issuer:   provider,
		ReturnTo: safeReturnTo(r.FormValue("return_to")),
	})

	logger.Info().Str("provider", provider).Msg("redirecting to provider")
	http.Redirect(w, r, party.OAuth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
}

// handleAuthCallback finishes a remote sign-in: exchange the code,
// verify the ID token, derive the webid through the trust checks, and
// start a session for it.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)
	reqID := middleware.CorrelationCtx(ctx)

	auditEntry := core.AuditEntry{
		ID:     reqID,
		Time:   time.Now(),
		Action: "auth.callback",
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log")
		}
	}()

	flow, err := s.readFlowCookie(r)
	s.clearFlowCookie(w)
	if err != nil {
		logger.Warn().Err(err).Msg("callback without a live sign-in flow")
		presenter.Error(w, r, "no sign-in in progress", http.StatusBadRequest)
		auditEntry.Error = "missing flow state"
		return
	}
	auditEntry.Issuer = flow.Issuer

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		logger.Warn().Str("error", errCode).Str("description", q.Get("error_description")).Msg("provider denied the request")
		presenter.Error(w, r, "provider denied the request: "+errCode, http.StatusBadRequest)
		auditEntry.Error = "provider error: " + errCode
		return
	}
	if q.Get("state") != flow.State {
		logger.Warn().Msg("state mismatch on callback")
		presenter.Error(w, r, "state mismatch", http.StatusBadRequest)
		auditEntry.Error = "state mismatch"
		return
	}

	party, err := s.clients.Connect(ctx, flow.Issuer)
	if err != nil {
		logger.Error().Err(err).Str("provider", flow.Issuer).Msg("provider connect failed")
		presenter.Error(w, r, "could not reach the provider", http.StatusBadGateway)
		auditEntry.Error = "provider connect failed"
		return
	}

	token, err := party.OAuth.Exchange(ctx, q.Get("code"))
	if err != nil {
		logger.Warn().Err(err).Msg("code exchange failed")
		presenter.Error(w, r, "code exchange failed", http.StatusUnauthorized)
		auditEntry.Error = "code exchange failed"
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		logger.Warn().Msg("token response carries no id_token")
		presenter.Error(w, r, "provider returned no id token", http.StatusUnauthorized)
		auditEntry.Error = "no id token"
		return
	}

	idToken, err := party.Verifier().Verify(ctx, rawIDToken)
	if err != nil {
		logger.Warn().Err(err).Msg("id token verification failed")
		presenter.Error(w, r, "id token verification failed", http.StatusUnauthorized)
		auditEntry.Error = "id token verification failed"
		return
	}
	if idToken.Nonce != flow.Nonce {
		logger.Warn().Msg("nonce mismatch on callback")
		presenter.Error(w, r, "nonce mismatch", http.StatusUnauthorized)
		auditEntry.Error = "nonce mismatch"
		return
	}

	var claims core.Claims
	if err := idToken.Claims(&claims); err != nil {
		logger.Warn().Err(err).Msg("unreadable id token claims")
		presenter.Error(w, r, "unreadable id token claims", http.StatusUnauthorized)
		auditEntry.Error = "unreadable claims"
		return
	}

	webid, err := s.verifier.VerifyWebID(ctx, claims)
	metrics.ObserveVerification(metrics.VerificationResult(webid, err))
	if err != nil {
		logger.Warn().Err(err).Msg("webid verification failed")
		presenter.Error(w, r, "webid verification failed", http.StatusUnauthorized)
		auditEntry.Error = err.Error()
		return
	}
	if webid == "" {
		logger.Warn().Msg("token carries no webid")
		presenter.Error(w, r, "token carries no webid", http.StatusUnauthorized)
		auditEntry.Error = "no webid in token"
		return
	}

	s.sessions.Issue(w, webid)
	auditEntry.Granted = true
	auditEntry.WebID = webid

	logger.Info().Str("webid", webid).Str("provider", flow.Issuer).Msg("remote login")
	http.Redirect(w, r, safeReturnTo(flow.ReturnTo), http.StatusFound)
}

// handleLogout delegates to the host logout capability, which owns the
// response.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)
	reqID := middleware.CorrelationCtx(ctx)

	auditEntry := core.AuditEntry{
		ID:     reqID,
		Time:   time.Now(),
		Action: "auth.logout",
	}
	if sess := s.sessions.Read(r); sess.Identified {
		auditEntry.WebID = sess.UserID
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log")
		}
	}()

	req := core.NewAuthRequest(w, r, s.host)
	if _, err := s.host.Logout(ctx, req); err != nil {
		logger.Error().Err(err).Msg("logout capability failed")
		presenter.Error(w, r, "logout failed", http.StatusInternalServerError)
		auditEntry.Error = "logout failed"
		return
	}
	auditEntry.Granted = true
}

func (s *Server) setFlowCookie(w http.ResponseWriter, flow *loginFlow) {
	raw, _ := json.Marshal(flow)
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   int(flowTTL.Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.authority.Issuer, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) readFlowCookie(r *http.Request) (*loginFlow, error) {
	c, err := r.Cookie(flowCookieName)
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, fmt.Errorf("decoding flow cookie: %w", err)
	}
	var flow loginFlow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("parsing flow cookie: %w", err)
	}
	return &flow, nil
}

func (s *Server) clearFlowCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// safeReturnTo only ever sends the browser to a local path. Anything
// else would make the login form an open redirector.
func safeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	return raw
}

// randToken returns an unguessable value for state and nonce parameters.
func randToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
