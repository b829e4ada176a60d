package client

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/errs"
	"github.com/rustyeddy/traderclient/transport"
)

// admin is a session-less caller for the account lifecycle endpoints.
func admin(baseURL, token string, opts []Option) (*Client, error) {
	if token == "" {
		return nil, errs.Precondition("token is required")
	}
	o := buildOptions(opts)
	tr, err := newTransport(baseURL, o, map[string]string{transport.HeaderAuthorization: token})
	if err != nil {
		return nil, err
	}
	return &Client{tr: tr, logger: o.logger, wire: o.wire, state: StateActive}, nil
}

// ListAccounts lists every account on the server. It requires the admin token.
func ListAccounts(ctx context.Context, baseURL, adminToken string, opts ...Option) ([]broker.AccountSummary, error) {
	c, err := admin(baseURL, adminToken, opts)
	if err != nil {
		return nil, err
	}

	var out []broker.AccountSummary
	if err := c.get(ctx, transport.CmdAccounts, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAccount removes the named account. token must be the account's own token.
func DeleteAccount(ctx context.Context, baseURL, name, token string, opts ...Option) error {
	if name == "" {
		return errs.Precondition("account name is required")
	}
	c, err := admin(baseURL, token, opts)
	if err != nil {
		return err
	}

	if err := c.call(ctx, transport.Request{
		Method:  http.MethodDelete,
		Command: transport.CmdAccounts,
		Query:   url.Values{"name": {name}},
	}, nil); err != nil {
		return err
	}
	c.logger.Info("account deleted", zap.String("name", name))
	return nil
}
