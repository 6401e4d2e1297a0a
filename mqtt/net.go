// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

type (
	// ConnectionProvider is a function that returns a net.Conn connected to an
	// MQTT server that is ready to read to and write from. The returned
	// net.Conn must be safe for concurrent writes.
	ConnectionProvider func(context.Context) (net.Conn, error)

	// TLSConfigProvider is a function that returns the *tls.Config used when
	// opening a TLS connection to an MQTT server.
	TLSConfigProvider func(context.Context) (*tls.Config, error)

	// wsConn adapts a WebSocket carrying binary MQTT frames to a net.Conn.
	wsConn struct {
		*websocket.Conn
		reader io.Reader
		rmu    sync.Mutex
		wmu    sync.Mutex
	}
)

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port uint16) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort(hostname, port))
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return conn, nil
	}
}

// ConstantTLSConfig is a TLSConfigProvider that returns an unchanging
// *tls.Config.
func ConstantTLSConfig(config *tls.Config) TLSConfigProvider {
	return func(context.Context) (*tls.Config, error) {
		return config, nil
	}
}

// TLSConnection is a ConnectionProvider that connects to an MQTT server with
// TLS over TCP.
func TLSConnection(
	hostname string,
	port uint16,
	tlsConfigProvider TLSConfigProvider,
) ConnectionProvider {
	if tlsConfigProvider == nil {
		tlsConfigProvider = ConstantTLSConfig(nil)
	}
	return func(ctx context.Context) (net.Conn, error) {
		config, err := tlsConfigProvider(ctx)
		if err != nil {
			return nil, &ConnectionError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}

		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(ctx, "tcp", hostPort(hostname, port))
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TLS connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// WebSocketConnection is a ConnectionProvider that connects to an MQTT server
// over a WebSocket at the given ws:// or wss:// URL.
func WebSocketConnection(
	url string,
	tlsConfigProvider TLSConfigProvider,
) ConnectionProvider {
	if tlsConfigProvider == nil {
		tlsConfigProvider = ConstantTLSConfig(nil)
	}
	return func(ctx context.Context) (net.Conn, error) {
		config, err := tlsConfigProvider(ctx)
		if err != nil {
			return nil, &ConnectionError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}

		d := websocket.Dialer{
			Subprotocols:     []string{"mqtt"},
			TLSClientConfig:  config,
			HandshakeTimeout: 10 * time.Second,
		}
		conn, res, err := d.DialContext(ctx, url, nil)
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return &wsConn{Conn: conn}, nil
	}
}

func hostPort(hostname string, port uint16) string {
	return net.JoinHostPort(hostname, fmt.Sprint(port))
}

// Read reads from the current binary message, moving on to the next message
// when it is exhausted.
func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as a single binary message.
func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetDeadline sets both the read and write deadlines.
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
