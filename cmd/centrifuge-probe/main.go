// Command centrifuge-probe connects to a server, subscribes to a channel
// and prints publications as they arrive, exercising the client end to end
// the way the teacher's cmd/chief/main.go wires its TUI against the
// session/workspace layer (SPEC_FULL.md §2 expansion).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	centrifuge "github.com/quillhq/centrifuge-go"
	"github.com/quillhq/centrifuge-go/config"
	"github.com/quillhq/centrifuge-go/metrics"
)

func main() {
	var (
		url         = flag.String("url", "ws://localhost:8000/connection/websocket", "server URL")
		channel     = flag.String("channel", "", "channel to subscribe to")
		configPath  = flag.String("config", "", "optional YAML config file")
		verbose     = flag.Bool("v", false, "verbose logging")
		metricsAddr = flag.String("metrics-addr", "", "if set, expose Prometheus metrics on this address")
	)
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if *verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(logLevel).
		With().Timestamp().Logger()

	var opts []centrifuge.Option
	if *configPath != "" {
		f, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("loading config")
		}
		opts = append(opts, f.Options()...)
	}

	client := centrifuge.New(*url, opts...)
	client.WithLogger(logger)

	if *metricsAddr != "" {
		collector := metrics.NewPrometheus()
		client.WithMetrics(collector)

		registry := prometheus.NewRegistry()
		registry.MustRegister(collector.Collectors()...)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	client.OnEvent(centrifuge.EventHandler{
		OnConnected: func(ev centrifuge.ConnectedEvent) {
			logger.Info().Str("client_id", ev.ClientID).Msg("connected")
		},
		OnDisconnected: func(ev centrifuge.DisconnectedEvent) {
			logger.Warn().Str("reason", ev.Reason).Bool("will_reconnect", ev.WillReconnect).Msg("disconnected")
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("session error")
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("connect failed")
	}
	defer client.Close()

	if *channel != "" {
		_, err := client.Subscribe(*channel, true, centrifuge.SubscriptionEventHandler{
			OnSubscribed: func() {
				logger.Info().Str("channel", *channel).Msg("subscribed")
			},
			OnPublication: func(data []byte) {
				printPublication(*channel, data)
			},
			OnJoin: func(info []byte) {
				logger.Debug().Str("channel", *channel).RawJSON("info", info).Msg("join")
			},
			OnLeave: func(info []byte) {
				logger.Debug().Str("channel", *channel).RawJSON("info", info).Msg("leave")
			},
			OnError: func(err error) {
				logger.Error().Err(err).Str("channel", *channel).Msg("subscription error")
			},
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("subscribe failed")
		}
	}

	<-ctx.Done()
}

func printPublication(channel string, data json.RawMessage) {
	fmt.Printf("[%s] %s\n", channel, data)
}
