// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package management

import (
	"context"
	"net/http"

	"github.com/absmach/rmqctl/message"
)

// User is the authenticated management user.
type User struct {
	Name string `json:"name"`
	Tags any    `json:"tags"`
}

// ListVHosts returns every virtual host visible to the user.
func (c *Client) ListVHosts(ctx context.Context) ([]message.VHost, error) {
	var vhosts []message.VHost
	if err := c.do(ctx, http.MethodGet, nil, nil, &vhosts, "vhosts"); err != nil {
		return nil, err
	}
	return vhosts, nil
}

// WhoAmI returns the authenticated user. It is the cheapest way to check
// connectivity and credentials.
func (c *Client) WhoAmI(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, nil, nil, &u, "whoami")
	return u, err
}
