// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

type (
	// ProtocolVersion selects the MQTT protocol spoken to the server.
	ProtocolVersion byte

	// Transport selects the network transport.
	Transport string

	// ConnectionSettings describe how to reach and authenticate with the MQTT
	// server.
	ConnectionSettings struct {
		HostName        string
		TCPPort         uint16
		UseTLS          bool
		Transport       Transport
		Path            string
		ProtocolVersion ProtocolVersion

		ClientID string
		Username string
		Password string
		CAFile   string

		KeepAlive         time.Duration
		ConnectionTimeout time.Duration
	}
)

// Protocol versions.
const (
	V311 ProtocolVersion = 4
	V5   ProtocolVersion = 5
)

// Transports.
const (
	TCP       Transport = "tcp"
	WebSocket Transport = "ws"
)

const (
	defaultTCPPort   = 1883
	defaultKeepAlive = 60 * time.Second
	maxKeepAlive     = 65535 * time.Second
)

// ParseConnectionString parses settings of the form
// HostName=localhost;TcpPort=1883;UseTls=false;KeepAlive=PT60S.
func ParseConnectionString(connStr string) (*ConnectionSettings, error) {
	return fromSettingsMap(parseToSettingsMap(connStr, ";"))
}

// SettingsFromEnv parses settings from MQTT_* environment variables, e.g.
// MQTT_HOST_NAME, MQTT_TCP_PORT and MQTT_USE_TLS.
func SettingsFromEnv() (*ConnectionSettings, error) {
	return fromSettingsMap(parseToSettingsMap(os.Environ(), "="))
}

func parseToSettingsMap(input any, delimiter string) map[string]string {
	settingsMap := make(map[string]string)

	switch v := input.(type) {
	case string:
		v = strings.TrimSuffix(v, delimiter)
		for _, param := range strings.Split(v, delimiter) {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) == 2 {
				k := strings.ToLower(strings.TrimSpace(kv[0]))
				settingsMap[k] = strings.TrimSpace(kv[1])
			}
		}
	case []string:
		for _, envVar := range v {
			kv := strings.SplitN(envVar, delimiter, 2)
			if len(kv) == 2 && strings.HasPrefix(kv[0], "MQTT_") {
				k := strings.ToLower(strings.ReplaceAll(
					strings.TrimPrefix(kv[0], "MQTT_"),
					"_",
					"",
				))
				settingsMap[k] = strings.TrimSpace(kv[1])
			}
		}
	}
	return settingsMap
}

func fromSettingsMap(m map[string]string) (*ConnectionSettings, error) {
	cs := &ConnectionSettings{
		TCPPort:         defaultTCPPort,
		Transport:       TCP,
		ProtocolVersion: V5,
		KeepAlive:       defaultKeepAlive,
	}

	cs.HostName = m["hostname"]
	if cs.HostName == "" {
		return nil, &InvalidArgumentError{
			message: "HostName must not be empty",
		}
	}

	if v, ok := m["tcpport"]; ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "invalid TcpPort",
				wrapped: err,
			}
		}
		cs.TCPPort = uint16(port)
	}

	if v, ok := m["usetls"]; ok {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "invalid UseTls",
				wrapped: err,
			}
		}
		cs.UseTLS = useTLS
	}

	if v, ok := m["transport"]; ok {
		switch t := Transport(strings.ToLower(v)); t {
		case TCP, WebSocket:
			cs.Transport = t
		default:
			return nil, &InvalidArgumentError{
				message: fmt.Sprintf("unknown Transport %q", v),
			}
		}
	}

	if v, ok := m["protocolversion"]; ok {
		switch v {
		case "5", "5.0":
			cs.ProtocolVersion = V5
		case "311", "3.1.1", "4":
			cs.ProtocolVersion = V311
		default:
			return nil, &InvalidArgumentError{
				message: fmt.Sprintf("unsupported ProtocolVersion %q", v),
			}
		}
	}

	assignIfExists(m, "path", &cs.Path)
	assignIfExists(m, "clientid", &cs.ClientID)
	assignIfExists(m, "username", &cs.Username)
	assignIfExists(m, "password", &cs.Password)
	assignIfExists(m, "cafile", &cs.CAFile)

	var err error
	if cs.KeepAlive, err = parseDuration(
		m, "keepalive", "KeepAlive", cs.KeepAlive,
	); err != nil {
		return nil, err
	}
	if cs.ConnectionTimeout, err = parseDuration(
		m, "connectiontimeout", "ConnectionTimeout", 0,
	); err != nil {
		return nil, err
	}

	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

func parseDuration(
	m map[string]string,
	key, name string,
	def time.Duration,
) (time.Duration, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	d, err := duration.Parse(v)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "invalid " + name,
			wrapped: err,
		}
	}
	return d.ToTimeDuration(), nil
}

// Validate checks the settings for consistency.
func (cs *ConnectionSettings) Validate() error {
	if cs.HostName == "" {
		return &InvalidArgumentError{message: "HostName must not be empty"}
	}
	if cs.KeepAlive < 0 || cs.KeepAlive > maxKeepAlive {
		return &InvalidArgumentError{
			message: fmt.Sprintf(
				"KeepAlive must be between 0 and %s", maxKeepAlive,
			),
		}
	}
	if cs.CAFile != "" && !cs.UseTLS {
		return &InvalidArgumentError{
			message: "CaFile should not be set when UseTls is disabled",
		}
	}
	switch cs.ProtocolVersion {
	case V5, V311:
	default:
		return &InvalidArgumentError{
			message: fmt.Sprintf(
				"unsupported protocol version %d", cs.ProtocolVersion,
			),
		}
	}
	return nil
}

// URL returns the server URL in the form accepted by MQTT v3.1.1 clients.
func (cs *ConnectionSettings) URL() string {
	var scheme string
	switch {
	case cs.Transport == WebSocket && cs.UseTLS:
		scheme = "wss"
	case cs.Transport == WebSocket:
		scheme = "ws"
	case cs.UseTLS:
		scheme = "ssl"
	default:
		scheme = "tcp"
	}

	u := fmt.Sprintf("%s://%s:%d", scheme, cs.HostName, cs.TCPPort)
	if cs.Transport == WebSocket {
		u += cs.path()
	}
	return u
}

func (cs *ConnectionSettings) path() string {
	if cs.Path == "" {
		return "/"
	}
	if !strings.HasPrefix(cs.Path, "/") {
		return "/" + cs.Path
	}
	return cs.Path
}

// TLSConfig builds the TLS configuration, or nil when TLS is disabled.
func (cs *ConnectionSettings) TLSConfig() (*tls.Config, error) {
	if !cs.UseTLS {
		return nil, nil
	}

	config := &tls.Config{
		ServerName: cs.HostName,
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}

	if cs.CAFile != "" {
		pem, err := os.ReadFile(cs.CAFile)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "cannot read CaFile",
				wrapped: err,
			}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &InvalidArgumentError{
				message: "no certificates found in CaFile",
			}
		}
		config.RootCAs = pool
	}

	return config, nil
}

// ConnectionProvider returns the provider dialing the configured transport.
func (cs *ConnectionSettings) ConnectionProvider() ConnectionProvider {
	tlsConfig := func(context.Context) (*tls.Config, error) {
		return cs.TLSConfig()
	}

	if cs.Transport == WebSocket {
		return WebSocketConnection(cs.URL(), tlsConfig)
	}
	if cs.UseTLS {
		return TLSConnection(cs.HostName, cs.TCPPort, tlsConfig)
	}
	return TCPConnection(cs.HostName, cs.TCPPort)
}

// assignIfExists assigns non-empty string values from settingsMap to the
// corresponding fields in connection settings.
func assignIfExists(
	settingsMap map[string]string,
	key string,
	field *string,
) {
	if value, exists := settingsMap[key]; exists && value != "" {
		*field = value
	}
}
