// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command tempmesh runs a temperature publisher, the aggregating subscriber
// or an embedded MQTT broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tempmesh/tempmesh/app"
	"github.com/tempmesh/tempmesh/broker"
	"github.com/tempmesh/tempmesh/clock"
	"github.com/tempmesh/tempmesh/config"
	"github.com/tempmesh/tempmesh/device"
	"github.com/tempmesh/tempmesh/httpapi"
	"github.com/tempmesh/tempmesh/metrics"
	"github.com/tempmesh/tempmesh/mqtt"
	"github.com/tempmesh/tempmesh/sink"
)

const usage = `usage: tempmesh <command> [-config file]

commands:
  publish    send temperature readings
  subscribe  average the readings of all live publishers
  broker     run an embedded MQTT broker
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	path := fs.String("config", os.Getenv("TEMPMESH_CONFIG"), "YAML config file")
	check(fs.Parse(os.Args[2:]))

	cfg := must(config.Load(*path))
	level := must(cfg.Log.SlogLevel())
	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	var err error
	switch cmd {
	case "publish":
		err = publish(ctx, cfg, log)
	case "subscribe":
		err = subscribe(ctx, cfg, log)
	case "broker":
		err = runBroker(ctx, cfg, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func connect(
	ctx context.Context,
	cfg *config.Config,
	clientID string,
	log *slog.Logger,
) (*mqtt.Client, error) {
	opts := []mqtt.ClientOption{
		mqtt.WithInboxSize(cfg.MQTT.InboxSize),
		mqtt.WithLogger(log),
	}
	if clientID != "" {
		opts = append(opts, mqtt.WithClientID(clientID))
	}

	var client *mqtt.Client
	var err error
	if cfg.MQTT.ConnectionString != "" {
		client, err = mqtt.NewClientFromConnectionString(
			cfg.MQTT.ConnectionString, opts...,
		)
	} else {
		client, err = mqtt.NewClientFromEnv(opts...)
	}
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func publish(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pc := cfg.Publisher

	var src device.Source
	switch pc.Source.Kind {
	case "constant":
		src = device.Constant(pc.Source.Value)
	default:
		src = device.NewSimulated(
			pc.Source.Value,
			pc.Source.Step,
			pc.Source.Min,
			pc.Source.Max,
			pc.Source.Seed,
		)
	}

	loc, err := cfg.Subscriber.TimeLocation()
	if err != nil {
		return err
	}
	var clk clock.Source
	switch pc.Clock.Mode {
	case "fixed":
		if clk, err = clock.NewFixed(pc.Clock.Start); err != nil {
			return err
		}
	case "beacon":
		clk = clock.NewBeacon(loc)
	default:
		clk = clock.System{Location: loc}
	}

	client, err := connect(ctx, cfg, mqtt.PublisherClientID(pc.ID), log)
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := app.NewPublisher(client, app.PublisherOptions{
		ID:            pc.ID,
		Source:        src,
		Interval:      pc.Interval.Std(),
		Clock:         clk,
		ReadingsTopic: cfg.Topics.Readings,
		TimeTopic:     cfg.Topics.Time,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

func subscribe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	sc := cfg.Subscriber

	loc, err := sc.TimeLocation()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := connect(ctx, cfg, mqtt.SubscriberClientID(), log)
	if err != nil {
		return err
	}
	defer client.Close()

	threshold := device.Threshold(sc.Threshold)
	opts := app.SubscriberOptions{
		Window:        sc.WindowSeconds(),
		Interval:      sc.Interval.Std(),
		Clock:         clock.System{Location: loc},
		ReadingsTopic: cfg.Topics.Readings,
		AverageTopic:  cfg.Topics.Average,
		Threshold:     &threshold,
		Metrics:       metrics.New(reg),
		Logger:        log,
	}
	if sc.Beacon {
		opts.TimeTopic = cfg.Topics.Time
	}

	switch sc.Indicator {
	case "log":
		opts.Indicator = device.NewLogIndicator(log)
	case "topic":
		if opts.Indicator, err = device.NewTopicIndicator(
			client, cfg.Topics.Indicator,
		); err != nil {
			return err
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k := sink.NewKafka(sink.KafkaOptions{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Key:     client.ID(),
			Logger:  log,
		})
		defer k.Close()
		opts.Sinks = append(opts.Sinks, k)
	}

	sub, err := app.NewSubscriber(client, opts)
	if err != nil {
		return err
	}

	if sc.HTTPAddress != "" {
		api := httpapi.New(sub, reg, log)
		go func() {
			if err := api.Serve(ctx, sc.HTTPAddress); err != nil {
				log.Error("http api stopped", slog.Any("error", err))
			}
		}()
	}

	return sub.Run(ctx)
}

func runBroker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := broker.New(broker.Options{
		TCPAddress:       cfg.Broker.TCPAddress,
		WebSocketAddress: cfg.Broker.WebSocketAddress,
		Users:            cfg.Broker.Users,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	if err := b.Serve(); err != nil {
		return err
	}
	<-ctx.Done()
	return b.Close()
}

func check(e error) {
	if e != nil {
		fmt.Fprintln(os.Stderr, e)
		os.Exit(1)
	}
}

func must[T any](t T, e error) T {
	check(e)
	return t
}
