// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package broker embeds an MQTT broker for local deployments and tests.
package broker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/tempmesh/tempmesh/internal/log"
)

type (
	// Options configure the embedded broker.
	Options struct {
		// TCPAddress is the host:port of the MQTT listener.
		TCPAddress string

		// WebSocketAddress enables an MQTT-over-WebSocket listener when set.
		WebSocketAddress string

		// Users restricts connections to these username/password pairs. Any
		// client may connect when it is empty.
		Users map[string]string

		Logger *slog.Logger
	}

	// Broker is an embedded MQTT broker.
	Broker struct {
		server *mochi.Server
		log    log.Logger
		opts   Options
	}
)

// DefaultTCPAddress is the listener address used when none is configured.
const DefaultTCPAddress = ":1883"

// New creates the broker and its listeners. Call Serve to start accepting
// connections.
func New(opts Options) (*Broker, error) {
	if opts.TCPAddress == "" {
		opts.TCPAddress = DefaultTCPAddress
	}

	serverLog := opts.Logger
	if serverLog == nil {
		serverLog = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	server := mochi.New(&mochi.Options{Logger: serverLog})

	if err := addAuth(server, opts.Users); err != nil {
		return nil, err
	}

	if err := server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "tcp",
		Address: opts.TCPAddress,
	})); err != nil {
		return nil, err
	}

	if opts.WebSocketAddress != "" {
		if err := server.AddListener(listeners.NewWebsocket(listeners.Config{
			Type:    "ws",
			ID:      "ws",
			Address: opts.WebSocketAddress,
		})); err != nil {
			return nil, err
		}
	}

	return &Broker{server: server, log: log.Wrap(opts.Logger), opts: opts}, nil
}

func addAuth(server *mochi.Server, users map[string]string) error {
	if len(users) == 0 {
		return server.AddHook(new(auth.AllowHook), nil)
	}

	rules := make(auth.AuthRules, 0, len(users))
	for user, pass := range users {
		rules = append(rules, auth.AuthRule{
			Username: auth.RString(user),
			Password: auth.RString(pass),
			Allow:    true,
		})
	}
	return server.AddHook(new(auth.Hook), &auth.Options{
		Ledger: &auth.Ledger{Auth: rules},
	})
}

// Serve starts the listeners. It does not block.
func (b *Broker) Serve() error {
	if err := b.server.Serve(); err != nil {
		return err
	}
	b.log.Info(context.Background(), "broker listening",
		slog.String("tcp", b.opts.TCPAddress),
		slog.String("ws", b.opts.WebSocketAddress),
		slog.Bool("auth", len(b.opts.Users) > 0),
	)
	return nil
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int64 {
	return atomic.LoadInt64(&b.server.Info.ClientsConnected)
}

// Close stops the listeners and disconnects all clients.
func (b *Broker) Close() error {
	return b.server.Close()
}
