// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/internal/wiring"
	"github.com/absmach/rmqctl/message"
)

func connectionCommand() *command {
	return &command{
		name:    "connection",
		summary: "Manage connection profiles",
		sub: []*command{
			{name: "add", usage: "connection add <name> --host HOST --username USER --password PASS [flags]", summary: "Add a connection profile and make it the default", run: connectionAdd},
			{name: "list", usage: "connection list", summary: "List connection profiles", run: connectionList},
			{name: "remove", usage: "connection remove <name>", summary: "Remove a connection profile", run: connectionRemove},
			{name: "set-default", usage: "connection set-default <name>", summary: "Make a connection profile the default", run: connectionSetDefault},
			{name: "test", usage: "connection test", summary: "Check that the broker accepts the credentials", run: connectionTest},
		},
	}
}

func connectionAdd(_ context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	conn := config.Connection{}
	fs.StringVar(&conn.Host, "host", "", "RabbitMQ server hostname")
	fs.StringVar(&conn.Username, "username", "", "RabbitMQ username")
	fs.StringVar(&conn.Password, "password", "", "RabbitMQ password")
	fs.StringVar(&conn.VHost, "vhost", "/", "RabbitMQ virtual host")
	fs.StringVar(&conn.Type, "type", config.ConnectionAMQP, "Connection type: amqp for messaging or http for management API only")
	fs.IntVar(&conn.AMQPPort, "amqp-port", 5672, "Port of the AMQP listener")
	fs.IntVar(&conn.HTTPPort, "http-port", 15672, "Port of the management API")
	fs.BoolVar(&conn.TLS, "tls", false, "Use TLS")
	fs.StringVar(&conn.TLSOptions.ServerCAFile, "ca-file", "", "CA certificate verifying the broker")
	fs.StringVar(&conn.TLSOptions.CertFile, "cert-file", "", "Client certificate")
	fs.StringVar(&conn.TLSOptions.KeyFile, "key-file", "", "Client certificate key")
	fs.StringVar(&conn.TLSOptions.ServerName, "server-name", "", "Server name expected in the broker certificate")
	fs.BoolVar(&conn.TLSOptions.InsecureSkipVerify, "insecure", false, "Skip broker certificate verification")

	pos, err := a.leaf(cmd, fs, args, 1, 1)
	if err != nil {
		return err
	}
	conn.Name = pos[0]
	if conn.Host == "" || conn.Username == "" {
		fs.Usage()
		return fmt.Errorf("%w: --host and --username are required", errUsage)
	}

	if err := a.Config.AddConnection(conn); err != nil {
		return err
	}
	if err := a.saveConfig(); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Added %s connection '%s'. This connection is now the default.\n", conn.Type, conn.Name)
	fmt.Fprintln(a.Stdout, "Set its default vhost with 'rmqctl vhost set-default <vhost>'.")
	return nil
}

func connectionList(_ context.Context, a *App, cmd *command, args []string) error {
	if _, err := a.leaf(cmd, a.flags(cmd), args, 0, 0); err != nil {
		return err
	}

	if a.output == OutputJSON {
		type view struct {
			Name     string `json:"name"`
			Type     string `json:"type"`
			Host     string `json:"host"`
			AMQPPort int    `json:"amqp_port,omitempty"`
			HTTPPort int    `json:"http_port"`
			VHost    string `json:"vhost"`
			TLS      bool   `json:"tls"`
			Default  bool   `json:"default"`
		}
		views := make([]view, 0, len(a.Config.Connections))
		for _, c := range a.Config.Connections {
			views = append(views, view{c.Name, c.Type, c.Host, c.AMQPPort, c.HTTPPort, c.VHost, c.TLS, c.Default})
		}
		return a.json(views)
	}

	if len(a.Config.Connections) == 0 {
		fmt.Fprintln(a.Stdout, "No connections configured. Add one with 'rmqctl connection add'.")
		return nil
	}
	t := newTable(a.Stdout, "NAME", "TYPE", "HOST", "AMQP", "HTTP", "VHOST", "TLS", "DEFAULT")
	for _, c := range a.Config.Connections {
		amqpPort := "-"
		if c.Type == config.ConnectionAMQP {
			amqpPort = strconv.Itoa(c.AMQPPort)
		}
		def := ""
		if c.Default {
			def = "*"
		}
		t.row(c.Name, c.Type, c.Host, amqpPort, strconv.Itoa(c.HTTPPort), c.VHost, strconv.FormatBool(c.TLS), def)
	}
	return t.flush()
}

func connectionRemove(_ context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 1, 1)
	if err != nil {
		return err
	}
	if err := a.Config.RemoveConnection(pos[0]); err != nil {
		return err
	}
	if err := a.saveConfig(); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Removed connection '%s'.\n", pos[0])
	return nil
}

func connectionSetDefault(_ context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 1, 1)
	if err != nil {
		return err
	}
	if err := a.Config.SetDefault(pos[0]); err != nil {
		return err
	}
	if err := a.saveConfig(); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Connection '%s' is now the default.\n", pos[0])
	return nil
}

func connectionTest(ctx context.Context, a *App, cmd *command, args []string) error {
	if _, err := a.leaf(cmd, a.flags(cmd), args, 0, 0); err != nil {
		return err
	}
	rt, conn, err := a.connect()
	if err != nil {
		return err
	}
	defer a.closeRuntime(rt)

	user, err := rt.VHosts.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("connection '%s' failed: %w", conn.Name, err)
	}
	fmt.Fprintf(a.Stdout, "Connection '%s' is working, authenticated as %s.\n", conn.Name, user.Name)
	return nil
}

func vhostCommand() *command {
	return &command{
		name:    "vhost",
		summary: "List virtual hosts and select the default one",
		sub: []*command{
			{name: "list", usage: "vhost list", summary: "List the virtual hosts of the connection", run: vhostList},
			{name: "set-default", usage: "vhost set-default <vhost>", summary: "Set the virtual host of the connection", run: vhostSetDefault},
		},
	}
}

func vhostList(ctx context.Context, a *App, cmd *command, args []string) error {
	if _, err := a.leaf(cmd, a.flags(cmd), args, 0, 0); err != nil {
		return err
	}
	return a.withRuntime(func(rt *wiring.Runtime, conn config.Connection) error {
		vhosts, err := rt.VHosts.ListVHosts(ctx)
		if err != nil {
			return err
		}
		for i := range vhosts {
			vhosts[i].Default = vhosts[i].Name == conn.VHost
		}
		if a.output == OutputJSON {
			if vhosts == nil {
				vhosts = []message.VHost{}
			}
			return a.json(vhosts)
		}
		t := newTable(a.Stdout, "NAME", "DESCRIPTION", "DEFAULT")
		for _, v := range vhosts {
			def := ""
			if v.Default {
				def = "*"
			}
			t.row(v.Name, v.Description, def)
		}
		return t.flush()
	})
}

func vhostSetDefault(_ context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 1, 1)
	if err != nil {
		return err
	}
	if err := a.Config.SetVHost(a.connection, pos[0]); err != nil {
		return err
	}
	if err := a.saveConfig(); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Virtual host '%s' is now the default.\n", pos[0])
	return nil
}
