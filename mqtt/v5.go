// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/tempmesh/tempmesh/internal/retry"
)

// v5Backend speaks MQTT v5 through paho.golang over any ConnectionProvider.
// A lost connection is re-established in the background and the known
// subscriptions are renewed.
type v5Backend struct {
	provider  ConnectionProvider
	clientID  string
	keepAlive uint16
	username  string
	password  string
	retry     retry.Policy
	deliver   deliverFunc
	log       logger

	mu            sync.Mutex
	client        *paho.Client
	subscriptions map[string]QoS
	closed        bool
	reconnecting  bool

	shutdown context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newV5Backend(
	provider ConnectionProvider,
	cs *ConnectionSettings,
	clientID string,
	policy retry.Policy,
	deliver deliverFunc,
	log logger,
) *v5Backend {
	shutdown, cancel := context.WithCancel(context.Background())
	return &v5Backend{
		provider:      provider,
		clientID:      clientID,
		keepAlive:     uint16(cs.KeepAlive / time.Second),
		username:      cs.Username,
		password:      cs.Password,
		retry:         policy,
		deliver:       deliver,
		log:           log,
		subscriptions: map[string]QoS{},
		shutdown:      shutdown,
		cancel:        cancel,
	}
}

func (b *v5Backend) connect(ctx context.Context) error {
	return b.retry.Start(ctx, "connect", b.attempt)
}

func (b *v5Backend) attempt(ctx context.Context) (bool, error) {
	conn, err := b.provider(ctx)
	if err != nil {
		return true, err
	}

	var client *paho.Client
	client = paho.NewClient(paho.ClientConfig{
		ClientID: b.clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			b.lost(client, err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			b.log.Packet(context.Background(), d)
			b.lost(client, &ConnectionError{
				message: "server sent DISCONNECT",
			})
		},
	})
	client.AddOnPublishReceived(func(pr paho.PublishReceived) (bool, error) {
		b.deliver(&Message{
			Topic:    pr.Packet.Topic,
			Payload:  pr.Packet.Payload,
			QoS:      QoS(pr.Packet.QoS),
			Retained: pr.Packet.Retain,
		})
		return true, nil
	})

	packet := &paho.Connect{
		ClientID:     b.clientID,
		KeepAlive:    b.keepAlive,
		CleanStart:   true,
		Username:     b.username,
		UsernameFlag: b.username != "",
		Password:     []byte(b.password),
		PasswordFlag: b.password != "",
	}
	b.log.Packet(ctx, packet)

	connack, err := client.Connect(ctx, packet)
	if connack != nil {
		b.log.Packet(ctx, connack)
	}
	if err != nil {
		_ = conn.Close()
		if connack != nil && connack.ReasonCode >= 0x80 {
			// Refusals such as bad credentials will not heal on their own.
			return isRetryableConnack(connack.ReasonCode),
				&ConnackError{ReasonCode: connack.ReasonCode}
		}
		return true, &ConnectionError{
			message: "error connecting to MQTT server",
			wrapped: err,
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return false, &ClientStateError{State: ShutDown}
	}
	b.client = client
	subs := maps.Clone(b.subscriptions)
	b.mu.Unlock()

	for filter, qos := range subs {
		if err := b.sendSubscribe(ctx, client, filter, qos); err != nil {
			b.log.Warn(ctx, err, slog.String("topic", filter))
		}
	}
	return false, nil
}

// lost starts a background reconnect if client is still the current one.
func (b *v5Backend) lost(client *paho.Client, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || client == nil || b.client != client {
		return
	}
	b.client = nil

	b.log.Warn(b.shutdown, &ConnectionError{
		message: "connection lost",
		wrapped: err,
	})

	if b.reconnecting {
		return
	}
	b.reconnecting = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.retry.Start(b.shutdown, "reconnect", b.attempt)

		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()

		if err != nil && b.shutdown.Err() == nil {
			b.log.Err(b.shutdown, err)
		}
	}()
}

func (b *v5Backend) current() (*paho.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return nil, &ClientStateError{State: ShutDown}
	case b.client == nil:
		return nil, &ConnectionError{message: "not connected"}
	default:
		return b.client, nil
	}
}

func (b *v5Backend) publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts *PublishOptions,
) error {
	client, err := b.current()
	if err != nil {
		return err
	}

	packet := &paho.Publish{
		Topic:   topic,
		QoS:     byte(opts.QoS),
		Retain:  opts.Retain,
		Payload: payload,
	}
	b.log.Packet(ctx, packet)

	res, err := client.Publish(ctx, packet)
	if err != nil {
		return &ConnectionError{message: "error publishing", wrapped: err}
	}
	if res != nil && res.ReasonCode >= 0x80 {
		return &ConnectionError{message: "publish refused by server"}
	}
	return nil
}

func (b *v5Backend) subscribe(
	ctx context.Context,
	filter string,
	qos QoS,
) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return &ClientStateError{State: ShutDown}
	}
	b.subscriptions[filter] = qos
	client := b.client
	b.mu.Unlock()

	// Renewed by the reconnect if currently disconnected.
	if client == nil {
		return nil
	}
	return b.sendSubscribe(ctx, client, filter, qos)
}

func (b *v5Backend) sendSubscribe(
	ctx context.Context,
	client *paho.Client,
	filter string,
	qos QoS,
) error {
	packet := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: byte(qos)},
		},
	}
	b.log.Packet(ctx, packet)

	suback, err := client.Subscribe(ctx, packet)
	if err != nil {
		return &ConnectionError{message: "error subscribing", wrapped: err}
	}
	b.log.Packet(ctx, suback)
	if len(suback.Reasons) > 0 && suback.Reasons[0] >= 0x80 {
		return &SubackError{Topic: filter, ReasonCode: suback.Reasons[0]}
	}
	return nil
}

func (b *v5Backend) close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return &ClientStateError{State: ShutDown}
	}
	b.closed = true
	client := b.client
	b.client = nil
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if client == nil {
		return nil
	}
	packet := &paho.Disconnect{ReasonCode: 0}
	b.log.Packet(context.Background(), packet)
	return client.Disconnect(packet)
}

// Reason codes for transient server conditions.
func isRetryableConnack(code byte) bool {
	switch code {
	case 0x88, // Server unavailable
		0x89, // Server busy
		0x97, // Quota exceeded
		0x9F: // Connection rate exceeded
		return true
	default:
		return false
	}
}
