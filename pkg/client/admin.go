package client

import (
	"context"
	"strconv"

	"github.com/solid/oidc-auth-manager/internal/api"
	"github.com/solid/oidc-auth-manager/internal/core"
)

// ListClients retrieves the relying-party registrations of the server.
func (c *Client) ListClients(ctx context.Context) ([]api.ClientSummary, string, error) {
	var resp []api.ClientSummary
	correlation, err := c.get(ctx, c.url().
		setPath(api.ListClientsRoute).
		build(), &resp)
	return resp, correlation, err
}

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	WebID         string
	Action        string
}

// ListAudits retrieves the latest audit entries from the server, limited to the specified number.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", strconv.FormatUint(uint64(opts.Limit), 10))
	}
	if opts.CorrelationID != "" {
		ub = ub.addQueryParam("correlation_id", opts.CorrelationID)
	}
	if opts.WebID != "" {
		ub = ub.addQueryParam("webid", opts.WebID)
	}
	if opts.Action != "" {
		ub = ub.addQueryParam("action", opts.Action)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}
