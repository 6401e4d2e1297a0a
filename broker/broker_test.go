// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package broker_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tempmesh/tempmesh/broker"
	"github.com/tempmesh/tempmesh/internal/retry"
	"github.com/tempmesh/tempmesh/mqtt"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestBrokerAuth(t *testing.T) {
	port := freePort(t)
	b, err := broker.New(broker.Options{
		TCPAddress: fmt.Sprintf("127.0.0.1:%d", port),
		Users:      map[string]string{"pico": "secret"},
	})
	require.NoError(t, err)
	require.NoError(t, b.Serve())
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	good, err := mqtt.NewClientFromConnectionString(fmt.Sprintf(
		"HostName=127.0.0.1;TcpPort=%d;Username=pico;Password=secret",
		port,
	))
	require.NoError(t, err)
	require.NoError(t, good.Connect(ctx))
	t.Cleanup(func() { _ = good.Close() })

	require.Eventually(t, func() bool { return b.Clients() == 1 },
		5*time.Second, 10*time.Millisecond)

	bad, err := mqtt.NewClientFromConnectionString(
		fmt.Sprintf(
			"HostName=127.0.0.1;TcpPort=%d;Username=pico;Password=wrong",
			port,
		),
		mqtt.WithConnectionRetry(&retry.Backoff{MaxAttempts: 1}),
	)
	require.NoError(t, err)

	var connack *mqtt.ConnackError
	require.ErrorAs(t, bad.Connect(ctx), &connack)
	require.Equal(t, byte(0x86), connack.ReasonCode)
	require.Equal(t,
		"connection refused: bad user name or password", connack.Error())

	old, err := mqtt.NewClientFromConnectionString(
		fmt.Sprintf(
			"HostName=127.0.0.1;TcpPort=%d;ProtocolVersion=311;"+
				"Username=pico;Password=wrong",
			port,
		),
		mqtt.WithConnectionRetry(&retry.Backoff{MaxAttempts: 1}),
	)
	require.NoError(t, err)
	require.ErrorAs(t, old.Connect(ctx), &connack)
}
