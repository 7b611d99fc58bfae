package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Service maintenance endpoint paths. These require the service token.
const (
	FlushCachePath      = "/api/v1/tools/flush-cache"
	FlushAdminCachePath = "/api/v1/tools/flush-admin-cache"
	AddUserTokenPath    = "/api/v1/users/add-token"
)

// FlushCache clears the service's meeting cache.
func (c *Client) FlushCache(ctx context.Context) error {
	if err := c.requireServiceToken(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, FlushCachePath, nil, nil, "", c.options.ServiceToken)
}

// FlushAdminCache clears the service's admin cache.
func (c *Client) FlushAdminCache(ctx context.Context) error {
	if err := c.requireServiceToken(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, FlushAdminCachePath, nil, nil, "", c.options.ServiceToken)
}

// AddUserToken registers a user token with the service so subsequent
// extension calls carrying that token authenticate.
func (c *Client) AddUserToken(ctx context.Context, userID, token string) error {
	if err := c.requireServiceToken(); err != nil {
		return err
	}
	if userID == "" || token == "" {
		return fmt.Errorf("user id and token are both required")
	}

	body, err := json.Marshal(map[string]string{
		"user_id": userID,
		"token":   token,
	})
	if err != nil {
		return fmt.Errorf("encoding add-token request: %w", err)
	}

	return c.do(ctx, http.MethodPost, AddUserTokenPath, url.Values{}, body,
		"application/json", c.options.ServiceToken)
}

func (c *Client) requireServiceToken() error {
	if c.options.ServiceToken == "" {
		return fmt.Errorf("service token is not configured")
	}
	return nil
}
