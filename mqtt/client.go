// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package mqtt provides the MQTT transport: a client that buffers incoming
// messages and hands them to subscription handlers when polled, backed by
// either an MQTT v5 or an MQTT v3.1.1 implementation.
package mqtt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/internal/retry"
	"github.com/tempmesh/tempmesh/mqtt/internal"
)

type (
	// Client is an MQTT client whose subscription handlers run only inside
	// Poll, on the caller's goroutine. Deliveries arriving between polls are
	// buffered in a bounded inbox; when it is full the newest delivery is
	// dropped.
	Client struct {
		backend  backend
		clientID string
		inbox    *internal.Queue[*Message]

		subscriptions []subscription
		subMu         sync.RWMutex

		state   atomic.Uint32
		dropped atomic.Uint64

		log logger
	}

	subscription struct {
		filter  string
		handler MessageHandler
	}
)

// NewClient creates a client for the given settings. It does not connect.
func NewClient(
	cs *ConnectionSettings,
	opt ...ClientOption,
) (*Client, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}

	var opts ClientOptions
	opts.Apply(opt)

	c := newClient(cs.ClientID, &opts)

	switch cs.ProtocolVersion {
	case V311:
		b, err := newV311Backend(
			cs, c.clientID, opts.ConnectionRetry, c.deliver, c.log,
		)
		if err != nil {
			return nil, err
		}
		c.backend = b
	default:
		c.backend = newV5Backend(
			cs.ConnectionProvider(),
			cs,
			c.clientID,
			opts.ConnectionRetry,
			c.deliver,
			c.log,
		)
	}
	return c, nil
}

// NewClientFromConnectionString parses the connection string and creates a
// client.
func NewClientFromConnectionString(
	connStr string,
	opt ...ClientOption,
) (*Client, error) {
	cs, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	return NewClient(cs, opt...)
}

// NewClientFromEnv creates a client from MQTT_* environment variables.
func NewClientFromEnv(opt ...ClientOption) (*Client, error) {
	cs, err := SettingsFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(cs, opt...)
}

func newClient(settingsID string, opts *ClientOptions) *Client {
	c := &Client{clientID: settingsID}

	if opts.ClientID != "" {
		c.clientID = opts.ClientID
	}
	if c.clientID == "" {
		c.clientID = RandomClientID()
	}

	size := opts.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	c.inbox = internal.NewQueue[*Message](size)

	c.log = logger{log.Wrap(opts.Logger)}

	if opts.ConnectionRetry == nil {
		opts.ConnectionRetry = &retry.Backoff{Logger: opts.Logger}
	}
	return c
}

// ID returns the MQTT client ID.
func (c *Client) ID() string {
	return c.clientID
}

// Connect opens the connection, retrying according to the connection retry
// policy.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(uint32(NotStarted), uint32(Started)) {
		return &ClientStateError{State: ClientState(c.state.Load())}
	}

	if err := c.backend.connect(ctx); err != nil {
		c.state.Store(uint32(NotStarted))
		return err
	}

	c.log.Info(ctx, "connected", slog.String("client_id", c.clientID))
	return nil
}

// Publish sends the payload on the topic.
func (c *Client) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opt ...PublishOption,
) error {
	if err := c.started(); err != nil {
		return err
	}
	if err := ValidateTopicName(topic); err != nil {
		return err
	}

	var opts PublishOptions
	opts.Apply(opt)
	return c.backend.publish(ctx, topic, payload, &opts)
}

// Subscribe registers the handler for messages matching the filter and
// subscribes to it. The handler is only invoked from Poll.
func (c *Client) Subscribe(
	ctx context.Context,
	filter string,
	handler MessageHandler,
	opt ...SubscribeOption,
) error {
	if err := c.started(); err != nil {
		return err
	}
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}
	if handler == nil {
		return &InvalidArgumentError{message: "handler must not be nil"}
	}

	var opts SubscribeOptions
	opts.Apply(opt)

	if err := c.backend.subscribe(ctx, filter, opts.QoS); err != nil {
		return err
	}

	c.subMu.Lock()
	c.subscriptions = append(c.subscriptions, subscription{filter, handler})
	c.subMu.Unlock()
	return nil
}

// Poll dispatches every delivery buffered so far to the matching handlers,
// in arrival order, and returns how many deliveries were processed. If ctx is
// done partway through, the deliveries not yet dispatched stay buffered for
// the next Poll.
func (c *Client) Poll(ctx context.Context) (int, error) {
	if ClientState(c.state.Load()) == ShutDown {
		return 0, &ClientStateError{State: ShutDown}
	}

	c.subMu.RLock()
	subs := c.subscriptions
	c.subMu.RUnlock()

	n := c.inbox.Size()
	for i := range n {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		msg, ok := c.inbox.Dequeue()
		if !ok {
			return i, nil
		}
		for _, s := range subs {
			if IsTopicFilterMatch(s.filter, msg.Topic) {
				s.handler(ctx, msg)
			}
		}
	}
	return n, nil
}

// Pending returns the number of buffered deliveries.
func (c *Client) Pending() int {
	return c.inbox.Size()
}

// Dropped returns how many deliveries were discarded because the inbox was
// full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Close disconnects and releases the client. Buffered deliveries are
// discarded.
func (c *Client) Close() error {
	prev := ClientState(c.state.Swap(uint32(ShutDown)))
	if prev == ShutDown {
		return &ClientStateError{State: ShutDown}
	}
	c.inbox.Drain(-1)
	if prev == NotStarted {
		return nil
	}
	return c.backend.close()
}

func (c *Client) started() error {
	if s := ClientState(c.state.Load()); s != Started {
		return &ClientStateError{State: s}
	}
	return nil
}

func (c *Client) deliver(msg *Message) {
	if c.inbox.Enqueue(msg) {
		return
	}
	c.dropped.Add(1)
	c.log.Warn(context.Background(), &InboxFullError{Topic: msg.Topic},
		slog.Uint64("dropped", c.dropped.Load()),
	)
}
