// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import "fmt"

// Connection returns the profile called name, or the default profile when name
// is empty. A single profile is the default even when it is not marked.
func (c *Config) Connection(name string) (Connection, error) {
	if len(c.Connections) == 0 {
		return Connection{}, ErrNoConnection
	}
	if name == "" {
		for _, conn := range c.Connections {
			if conn.Default {
				return conn, nil
			}
		}
		if len(c.Connections) == 1 {
			return c.Connections[0], nil
		}
		return Connection{}, fmt.Errorf("%w: no default among %d connections", ErrNoConnection, len(c.Connections))
	}

	i := c.index(name)
	if i < 0 {
		return Connection{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	return c.Connections[i], nil
}

// AddConnection stores conn, replacing a profile with the same name, and makes
// it the default.
func (c *Config) AddConnection(conn Connection) error {
	if conn.VHost == "" {
		conn.VHost = "/"
	}
	if err := conn.Validate(); err != nil {
		return err
	}

	conn.Default = true
	if i := c.index(conn.Name); i >= 0 {
		c.Connections[i] = conn
	} else {
		c.Connections = append(c.Connections, conn)
	}
	return c.SetDefault(conn.Name)
}

// RemoveConnection deletes the profile called name. When it was the default,
// the first remaining profile becomes the default.
func (c *Config) RemoveConnection(name string) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	wasDefault := c.Connections[i].Default
	c.Connections = append(c.Connections[:i], c.Connections[i+1:]...)
	if wasDefault && len(c.Connections) > 0 {
		c.Connections[0].Default = true
	}
	return nil
}

// SetDefault marks the profile called name as the default.
func (c *Config) SetDefault(name string) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	for j := range c.Connections {
		c.Connections[j].Default = j == i
	}
	return nil
}

// SetVHost sets the virtual host of the profile called name, or of the default
// profile when name is empty.
func (c *Config) SetVHost(name, vhost string) error {
	if vhost == "" {
		return fmt.Errorf("vhost cannot be empty")
	}
	conn, err := c.Connection(name)
	if err != nil {
		return err
	}
	c.Connections[c.index(conn.Name)].VHost = vhost
	return nil
}

func (c *Config) index(name string) int {
	for i, conn := range c.Connections {
		if conn.Name == name {
			return i
		}
	}
	return -1
}
