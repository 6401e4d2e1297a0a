// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
	"github.com/tempmesh/tempmesh/internal/log"
)

type logger struct{ log.Logger }

// Packet logs an outgoing or received v5 packet at debug level. The message is
// the packet type in snake case. Payloads are reduced to their size and
// credentials are never logged.
func (l logger) Packet(ctx context.Context, packet any) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	typ := reflect.TypeOf(packet)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return
	}
	name := strcase.ToSnake(typ.Name())
	l.Log(ctx, slog.LevelDebug, name, packetAttrs(packet)...)
}

func packetAttrs(packet any) []slog.Attr {
	switch p := packet.(type) {
	case *paho.Connect:
		a := []slog.Attr{
			slog.String("client_id", p.ClientID),
			slog.Int("keep_alive", int(p.KeepAlive)),
			slog.Bool("clean_start", p.CleanStart),
		}
		if p.UsernameFlag {
			a = append(a, slog.String("username", p.Username))
		}
		return a

	case *paho.Connack:
		a := []slog.Attr{
			slog.Int("reason_code", int(p.ReasonCode)),
			slog.Bool("session_present", p.SessionPresent),
		}
		if p.Properties != nil && p.Properties.ReasonString != "" {
			a = append(a, slog.String("reason", p.Properties.ReasonString))
		}
		return a

	case *paho.Publish:
		return []slog.Attr{
			slog.String("topic", p.Topic),
			slog.Int("qos", int(p.QoS)),
			slog.Bool("retain", p.Retain),
			slog.Int("payload_size", len(p.Payload)),
		}

	case *paho.Subscribe:
		a := make([]slog.Attr, 0, 2*len(p.Subscriptions))
		for _, s := range p.Subscriptions {
			a = append(a,
				slog.String("topic", s.Topic),
				slog.Int("qos", int(s.QoS)),
			)
		}
		return a

	case *paho.Suback:
		codes := make([]int, len(p.Reasons))
		for i, r := range p.Reasons {
			codes[i] = int(r)
		}
		return []slog.Attr{slog.Any("reason_codes", codes)}

	case *paho.Disconnect:
		a := []slog.Attr{slog.Int("reason_code", int(p.ReasonCode))}
		if p.Properties != nil && p.Properties.ReasonString != "" {
			a = append(a, slog.String("reason", p.Properties.ReasonString))
		}
		return a

	default:
		return nil
	}
}
