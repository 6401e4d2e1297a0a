// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config loads the YAML configuration shared by the tempmesh
// commands. Values are resolved from defaults, then the file, then TEMPMESH_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the full configuration.
	Config struct {
		MQTT       MQTT       `yaml:"mqtt"`
		Topics     Topics     `yaml:"topics"`
		Publisher  Publisher  `yaml:"publisher"`
		Subscriber Subscriber `yaml:"subscriber"`
		Kafka      Kafka      `yaml:"kafka"`
		Broker     Broker     `yaml:"broker"`
		Log        Log        `yaml:"log"`
	}

	// MQTT configures the transport. An empty connection string falls back
	// to the MQTT_* environment variables.
	MQTT struct {
		ConnectionString string `yaml:"connection_string"`
		InboxSize        int    `yaml:"inbox_size"`
	}

	// Topics names the topics the commands use.
	Topics struct {
		Readings  string `yaml:"readings"`
		Time      string `yaml:"time"`
		Average   string `yaml:"average"`
		Indicator string `yaml:"indicator"`
	}

	// Publisher configures the publish command.
	Publisher struct {
		ID       int32    `yaml:"id"`
		Interval Duration `yaml:"interval"`
		Source   Source   `yaml:"source"`
		Clock    Clock    `yaml:"clock"`
	}

	// Source selects the temperature source.
	Source struct {
		// Kind is "simulated" or "constant".
		Kind  string  `yaml:"kind"`
		Value float64 `yaml:"value"`
		Step  float64 `yaml:"step"`
		Min   float64 `yaml:"min"`
		Max   float64 `yaml:"max"`
		Seed  uint64  `yaml:"seed"`
	}

	// Clock selects the publisher's time source.
	Clock struct {
		// Mode is "system", "fixed" or "beacon".
		Mode string `yaml:"mode"`
		// Start is the ISO 8601 start time of a fixed clock.
		Start string `yaml:"start"`
	}

	// Subscriber configures the subscribe command.
	Subscriber struct {
		Window    Duration `yaml:"window"`
		Interval  Duration `yaml:"interval"`
		Threshold float32  `yaml:"threshold"`
		// Location is the IANA zone day-relative seconds are taken in.
		Location string `yaml:"location"`
		// Beacon enables publishing the subscriber's time of day.
		Beacon bool `yaml:"beacon"`
		// Indicator is "log", "topic" or "none".
		Indicator   string `yaml:"indicator"`
		HTTPAddress string `yaml:"http_address"`
	}

	// Kafka enables forwarding averages when Brokers is set.
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	}

	// Broker configures the embedded broker command.
	Broker struct {
		TCPAddress       string            `yaml:"tcp_address"`
		WebSocketAddress string            `yaml:"websocket_address"`
		Users            map[string]string `yaml:"users"`
	}

	// Log configures logging.
	Log struct {
		Level string `yaml:"level"`
	}

	// Duration accepts ISO 8601 ("PT10M") or Go ("10m") syntax.
	Duration time.Duration

	// Error names the configuration property that is invalid.
	Error struct {
		Property string
		Message  string
		Nested   error
	}
)

// Defaults.
const (
	DefaultReadingsTopic  = "temp/pico"
	DefaultTimeTopic      = "temp/time"
	DefaultAverageTopic   = "temp/average"
	DefaultIndicatorTopic = "temp/indicator"

	DefaultWindow             = 10 * time.Minute
	DefaultPublisherInterval  = 10 * time.Second
	DefaultSubscriberInterval = time.Second
	DefaultThreshold          = 25
)

const envPrefix = "TEMPMESH_"

func (e *Error) Error() string {
	msg := e.Property + ": " + e.Message
	if e.Nested != nil {
		msg += ": " + e.Nested.Error()
	}
	return msg
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.Nested
}

// Default returns the configuration used when nothing is set. Load decodes
// the file over it, so a value written explicitly, zero included, is kept.
func Default() *Config {
	return &Config{
		Topics: Topics{
			Readings:  DefaultReadingsTopic,
			Time:      DefaultTimeTopic,
			Average:   DefaultAverageTopic,
			Indicator: DefaultIndicatorTopic,
		},
		Publisher: Publisher{
			ID:       1,
			Interval: Duration(DefaultPublisherInterval),
			Source:   Source{Kind: "simulated", Value: 22, Step: 0.25},
			Clock:    Clock{Mode: "system"},
		},
		Subscriber: Subscriber{
			Window:    Duration(DefaultWindow),
			Interval:  Duration(DefaultSubscriberInterval),
			Threshold: DefaultThreshold,
			Location:  "Local",
			Indicator: "log",
		},
		Kafka:  Kafka{Topic: "tempmesh.average"},
		Broker: Broker{TCPAddress: ":1883"},
		Log:    Log{Level: "info"},
	}
}

// Load reads the YAML file at path, if any, and resolves the configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Property: "file", Message: path, Nested: err}
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, &Error{Property: "file", Message: path, Nested: err}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *Duration) error {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := ParseDuration(v)
			if err != nil {
				return &Error{Property: envPrefix + name, Message: v, Nested: err}
			}
			*dst = d
		}
		return nil
	}

	str("MQTT_CONNECTION_STRING", &c.MQTT.ConnectionString)
	str("SUBSCRIBER_LOCATION", &c.Subscriber.Location)
	str("SUBSCRIBER_HTTP_ADDRESS", &c.Subscriber.HTTPAddress)
	str("PUBLISHER_CLOCK", &c.Publisher.Clock.Mode)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(envPrefix + "PUBLISHER_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return &Error{
				Property: envPrefix + "PUBLISHER_ID",
				Message:  v,
				Nested:   err,
			}
		}
		c.Publisher.ID = int32(id)
	}
	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}

	if err := dur("PUBLISHER_INTERVAL", &c.Publisher.Interval); err != nil {
		return err
	}
	if err := dur("SUBSCRIBER_WINDOW", &c.Subscriber.Window); err != nil {
		return err
	}
	return dur("SUBSCRIBER_INTERVAL", &c.Subscriber.Interval)
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.Subscriber.Window.Std() < time.Second ||
		c.Subscriber.Window.Std() >= 24*time.Hour {
		return &Error{
			Property: "subscriber.window",
			Message:  "must be between 1s and 24h",
		}
	}
	if c.Subscriber.Interval <= 0 {
		return &Error{Property: "subscriber.interval", Message: "must be positive"}
	}
	if c.Publisher.Interval <= 0 {
		return &Error{Property: "publisher.interval", Message: "must be positive"}
	}
	if c.Topics.Readings == "" {
		return &Error{Property: "topics.readings", Message: "must be set"}
	}
	if c.MQTT.InboxSize < 0 {
		return &Error{Property: "mqtt.inbox_size", Message: "must not be negative"}
	}

	switch c.Publisher.Source.Kind {
	case "simulated", "constant":
	default:
		return &Error{
			Property: "publisher.source.kind",
			Message:  fmt.Sprintf("unknown source %q", c.Publisher.Source.Kind),
		}
	}
	switch c.Publisher.Clock.Mode {
	case "system", "beacon":
	case "fixed":
		if c.Publisher.Clock.Start == "" {
			return &Error{
				Property: "publisher.clock.start",
				Message:  "required by the fixed clock",
			}
		}
	default:
		return &Error{
			Property: "publisher.clock.mode",
			Message:  fmt.Sprintf("unknown clock %q", c.Publisher.Clock.Mode),
		}
	}
	switch c.Subscriber.Indicator {
	case "log", "topic", "none":
	default:
		return &Error{
			Property: "subscriber.indicator",
			Message: fmt.Sprintf(
				"unknown indicator %q", c.Subscriber.Indicator,
			),
		}
	}
	if _, err := c.Subscriber.TimeLocation(); err != nil {
		return &Error{
			Property: "subscriber.location",
			Message:  c.Subscriber.Location,
			Nested:   err,
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return &Error{Property: "log.level", Message: c.Log.Level, Nested: err}
	}
	return nil
}

// WindowSeconds returns the freshness window in whole seconds.
func (s Subscriber) WindowSeconds() uint64 {
	return uint64(s.Window.Std() / time.Second)
}

// TimeLocation resolves Location.
func (s Subscriber) TimeLocation() (*time.Location, error) {
	return time.LoadLocation(s.Location)
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// ParseDuration accepts ISO 8601 or Go duration syntax.
func ParseDuration(s string) (Duration, error) {
	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		d, err := duration.Parse(s)
		if err != nil {
			return 0, err
		}
		return Duration(d.ToTimeDuration()), nil
	}
	d, err := time.ParseDuration(s)
	return Duration(d), err
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.Std().String(), nil
}
