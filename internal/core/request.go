package core

import (
	"context"
	"errors"
	"net/http"
)

// Subject identifies the local account an authorization request resolved
// to. The "_id" key matches the persisted account document shape.
type Subject struct {
	ID string `json:"_id"`
}

// Decision tells the caller of a host capability how to proceed.
type Decision int

const (
	// DecisionContinue means the capability finished without writing to
	// the response; the surrounding handler keeps going.
	DecisionContinue Decision = iota

	// DecisionResponseSent means the capability already wrote the
	// response, e.g. a redirect to the login page. The surrounding
	// handler must stop.
	DecisionResponseSent
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionResponseSent:
		return "response_sent"
	default:
		return "unknown"
	}
}

// HostAPI bundles the behavior the embedding host injects into the
// authorization flow. Capabilities are plain funcs so a deployment can
// swap any one of them at construction time without touching the rest.
type HostAPI struct {
	// Authenticate resolves the request's subject from host session
	// state, or sends the user to the login flow.
	Authenticate func(ctx context.Context, req *AuthRequest) (Decision, error)

	// ObtainConsent runs the consent flow for the resolved subject.
	ObtainConsent func(ctx context.Context, req *AuthRequest) (Decision, error)

	// Logout ends the host session behind the request.
	Logout func(ctx context.Context, req *AuthRequest) (Decision, error)
}

// AuthRequest carries one authorization exchange across the host
// boundary: the live request/response pair, the injected host behavior,
// and the subject resolution state.
type AuthRequest struct {
	Response http.ResponseWriter
	Request  *http.Request
	Host     *HostAPI

	subject    *Subject
	subjectSet bool
}

// NewAuthRequest wraps an incoming authorization call. The subject starts
// out unresolved.
func NewAuthRequest(w http.ResponseWriter, r *http.Request, host *HostAPI) *AuthRequest {
	return &AuthRequest{
		Response: w,
		Request:  r,
		Host:     host,
	}
}

// Subject returns the resolved subject, or nil while unresolved or when
// resolution found no user.
func (a *AuthRequest) Subject() *Subject {
	return a.subject
}

// SubjectResolved reports whether resolution has happened at all, even
// when it resolved to no user.
func (a *AuthRequest) SubjectResolved() bool {
	return a.subjectSet
}

// SetSubject records the resolved identity. Resolution happens at most
// once per request; a second call fails regardless of value.
func (a *AuthRequest) SetSubject(s *Subject) error {
	if a.subjectSet {
		return errors.New("auth request: subject already resolved")
	}
	a.subject = s
	a.subjectSet = true
	return nil
}

// ClearSubject resolves the request to no user. A concrete subject is
// never downgraded; clearing twice is a no-op.
func (a *AuthRequest) ClearSubject() error {
	if a.subjectSet && a.subject != nil {
		return errors.New("auth request: refusing to clear a concrete subject")
	}
	a.subject = nil
	a.subjectSet = true
	return nil
}
