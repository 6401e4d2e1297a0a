// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	pahov3 "github.com/eclipse/paho.mqtt.golang"
	"github.com/tempmesh/tempmesh/internal/retry"
)

// v311Backend speaks MQTT v3.1.1 through paho.mqtt.golang, which manages
// reconnection itself; subscriptions are renewed from its connect handler.
type v311Backend struct {
	client  pahov3.Client
	retry   retry.Policy
	deliver deliverFunc
	log     logger

	mu            sync.Mutex
	subscriptions map[string]QoS
	closed        bool
}

func newV311Backend(
	cs *ConnectionSettings,
	clientID string,
	policy retry.Policy,
	deliver deliverFunc,
	log logger,
) (*v311Backend, error) {
	tlsConfig, err := cs.TLSConfig()
	if err != nil {
		return nil, err
	}

	b := &v311Backend{
		retry:         policy,
		deliver:       deliver,
		log:           log,
		subscriptions: map[string]QoS{},
	}

	opts := pahov3.NewClientOptions().
		AddBroker(cs.URL()).
		SetClientID(clientID).
		SetKeepAlive(cs.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)
	if cs.ConnectionTimeout > 0 {
		opts.SetConnectTimeout(cs.ConnectionTimeout)
	}
	if cs.Username != "" {
		opts.SetUsername(cs.Username)
		opts.SetPassword(cs.Password)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	b.client = pahov3.NewClient(opts)
	return b, nil
}

func (b *v311Backend) connect(ctx context.Context) error {
	return b.retry.Start(ctx, "connect", func(ctx context.Context) (bool, error) {
		b.log.Debug(ctx, "connecting", slog.String("protocol", "3.1.1"))
		tok := b.client.Connect()
		if err := wait(ctx, tok); err != nil {
			if ct, ok := tok.(*pahov3.ConnectToken); ok {
				if code, ok := v311Refusals[ct.ReturnCode()]; ok {
					return isRetryableConnack(code),
						&ConnackError{ReasonCode: code}
				}
			}
			return ctx.Err() == nil, &ConnectionError{
				message: "error connecting to MQTT server",
				wrapped: err,
			}
		}
		return false, nil
	})
}

// MQTT v3.1.1 CONNACK return codes and their MQTT v5 equivalents.
var v311Refusals = map[byte]byte{
	1: 0x84,
	2: 0x85,
	3: 0x88,
	4: 0x86,
	5: 0x87,
}

func (b *v311Backend) onConnect(client pahov3.Client) {
	b.mu.Lock()
	subs := maps.Clone(b.subscriptions)
	b.mu.Unlock()

	ctx := context.Background()
	b.log.Info(ctx, "connected", slog.Int("subscriptions", len(subs)))
	for filter, qos := range subs {
		// Runs on paho's goroutine; waiting here would stall its router.
		client.Subscribe(filter, byte(qos), b.onMessage)
	}
}

func (b *v311Backend) onConnectionLost(_ pahov3.Client, err error) {
	b.log.Warn(context.Background(), &ConnectionError{
		message: "connection lost",
		wrapped: err,
	})
}

func (b *v311Backend) onMessage(_ pahov3.Client, msg pahov3.Message) {
	b.deliver(&Message{
		Topic:    msg.Topic(),
		Payload:  msg.Payload(),
		QoS:      QoS(msg.Qos()),
		Retained: msg.Retained(),
	})
}

func (b *v311Backend) publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts *PublishOptions,
) error {
	if err := b.usable(); err != nil {
		return err
	}
	b.log.Debug(ctx, "publish",
		slog.String("topic", topic),
		slog.Int("payload_size", len(payload)),
		slog.Int("qos", int(opts.QoS)),
	)
	tok := b.client.Publish(topic, byte(opts.QoS), opts.Retain, payload)
	if err := wait(ctx, tok); err != nil {
		return &ConnectionError{message: "error publishing", wrapped: err}
	}
	return nil
}

func (b *v311Backend) subscribe(
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
	b.mu.Unlock()

	// Renewed by onConnect if currently disconnected.
	if !b.client.IsConnectionOpen() {
		return nil
	}

	b.log.Debug(ctx, "subscribe", slog.String("topic", filter))
	tok := b.client.Subscribe(filter, byte(qos), b.onMessage)
	if err := wait(ctx, tok); err != nil {
		return &ConnectionError{message: "error subscribing", wrapped: err}
	}
	if st, ok := tok.(*pahov3.SubscribeToken); ok {
		if code, ok := st.Result()[filter]; ok && code >= 0x80 {
			return &SubackError{Topic: filter, ReasonCode: code}
		}
	}
	return nil
}

func (b *v311Backend) usable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &ClientStateError{State: ShutDown}
	}
	return nil
}

func (b *v311Backend) close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return &ClientStateError{State: ShutDown}
	}
	b.closed = true
	b.mu.Unlock()

	b.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, tok pahov3.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
