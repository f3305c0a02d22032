package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/api"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/cost"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/devices"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/influxdb"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/insights"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/kafka"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/logging"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/mqtt"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/poller"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/processor"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/statistics"
)

const shutdownTimeout = 30 * time.Second

var log = logrus.WithField("component", "main")

func main() {
	os.Exit(run())
}

// run wires the monitor and blocks until shutdown. It returns the process exit code.
func run() int {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}
	if err := logging.Setup(cfg.Log, os.Stdout); err != nil {
		log.WithError(err).Error("Failed to configure logging")
		return 1
	}
	metrics.Init()

	// Create context that can be canceled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize sinks
	var (
		sinks        []processor.Sink
		buckets      processor.BucketWriter
		influxClient *influxdb.Client
		kafkaPub     *kafka.Publisher
		mqttPub      *mqtt.Publisher
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.NewClient(ctx, cfg.InfluxDB)
		if err != nil {
			log.WithError(err).Error("Failed to create InfluxDB client")
			return 1
		}
		sinks = append(sinks, influxClient)
		buckets = influxClient
	}
	if cfg.Kafka.Enabled {
		kafkaPub, err = kafka.NewPublisher(cfg.Kafka)
		if err != nil {
			log.WithError(err).Error("Failed to create Kafka publisher")
			return 1
		}
		sinks = append(sinks, kafkaPub)
	}
	if cfg.MQTT.Enabled {
		mqttPub, err = mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			log.WithError(err).Error("Failed to create MQTT publisher")
			return 1
		}
		sinks = append(sinks, mqttPub)
	}

	// Initialize processor
	proc := processor.NewProcessor(cfg.Processor, buckets, sinks...)

	// Initialize the monitor session
	client := sense.NewClient(sense.Config{
		BaseURL:  cfg.Sense.BaseURL,
		Email:    cfg.Sense.Email,
		Password: cfg.Sense.Password,
		Timeout:  cfg.Sense.Timeout,
	})
	session := poller.NewSession(client, statistics.NewEngine(), poller.Config{
		RealtimeInterval: cfg.Poller.RealtimeInterval,
		TrendInterval:    cfg.Poller.TrendInterval,
	}, poller.WithPublisher(proc))

	var deviceOpts []devices.Option
	if kafkaPub != nil {
		deviceOpts = append(deviceOpts, devices.WithInfoPublisher(kafkaPub, func() string {
			return session.Account().MonitorID
		}))
	}
	deviceService := devices.NewService(client, deviceOpts...)

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled && cfg.Kafka.CommandTopic != "" {
		consumer, err = kafka.NewConsumer("commands", cfg.Kafka, deviceService.HandleCommand)
		if err != nil {
			log.WithError(err).Error("Failed to create Kafka command consumer")
			return 1
		}
	}

	// Initialize the API
	apiServer := api.NewServer(
		session,
		cost.New(cfg.Cost.RateConfig()),
		cfg.Cost,
		deviceService,
		insights.NewEngine(cfg.Insights),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiServer.Handler(os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped")
		}
	}()

	// Handle termination signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	fatal := make(chan error, 1)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := startSession(ctx, session); err != nil {
			if !errors.Is(err, context.Canceled) {
				fatal <- err
			}
			return
		}
		if err := session.Run(ctx); err != nil {
			log.WithError(err).Error("Session stopped")
		}
	}()

	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithField("topic", cfg.Kafka.CommandTopic).Info("Consuming device commands")
			if err := consumer.Consume(ctx); err != nil {
				log.WithError(err).Error("Command consumer stopped")
			}
		}()
	}

	// Wait for termination signal or a setup failure
	exitCode := 0
	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Received termination signal. Shutting down...")
	case err := <-fatal:
		log.WithError(err).Error("Monitor setup failed. Shutting down...")
		exitCode = 1
	}

	// Cancel context to stop the loops
	cancel()

	// Set a deadline for clean shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Wait for either all loops to stop or the timeout
	select {
	case <-done:
		log.Info("All loops stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timed out, forcing exit")
	}

	// Now it's safe to drain the processor and close the sinks
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.WithError(err).Warn("Closing Kafka consumer")
		}
	}
	proc.Stop()
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			log.WithError(err).Warn("Closing Kafka publisher")
		}
	}
	if mqttPub != nil {
		mqttPub.Close()
	}
	if influxClient != nil {
		influxClient.Close()
	}
	if err := session.Close(); err != nil {
		log.WithError(err).Warn("Closing session")
	}

	log.Info("Shutdown complete.")
	return exitCode
}

// startSession retries transient start failures with exponential backoff and
// gives up at once on bad credentials or a missing monitor
func startSession(ctx context.Context, session *poller.Session) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0

	operation := func() error {
		err := session.Start(ctx)
		if errors.Is(err, poller.ErrSetupFailed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next.String()).Warn("Monitor not ready")
	}
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}
