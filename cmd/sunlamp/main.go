package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saaga0h/sunlamp/internal/clock"
	"github.com/saaga0h/sunlamp/internal/controller"
	"github.com/saaga0h/sunlamp/internal/network"
	"github.com/saaga0h/sunlamp/internal/output"
	"github.com/saaga0h/sunlamp/internal/power"
	"github.com/saaga0h/sunlamp/internal/provider"
	"github.com/saaga0h/sunlamp/internal/telemetry"
	"github.com/saaga0h/sunlamp/pkg/config"
	"github.com/saaga0h/sunlamp/pkg/health"
	"github.com/saaga0h/sunlamp/pkg/mqtt"
	"github.com/saaga0h/sunlamp/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → file → env → flags
	cfg := config.NewConfig()
	if err := cfg.LoadFromFile(config.ConfigFileFromArgs(os.Args[1:])); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(logWriter(cfg), &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting sunlamp",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"device", cfg.DeviceName,
		"output_kind", cfg.OutputKind,
		"sun_source", cfg.SunSource,
		"timezone", cfg.Timezone,
		"log_level", cfg.LogLevel)

	zone, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("Unknown timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	base := clockwork.NewRealClock()
	clients := provider.NewClients(time.Duration(cfg.HTTPTimeoutSec)*time.Second, cfg.InsecureTLS)

	// Collaborators
	var locator provider.Locator
	switch cfg.LocationSource {
	case "static":
		locator = provider.NewStaticLocator(cfg.Latitude, cfg.Longitude)
	default:
		locator = provider.NewIPInfoLocator(clients.Default, cfg.LocationURL, cfg.LocationSuffix, logger)
	}

	timeSource, err := provider.NewWorldTimeAPI(clients.Default, cfg.TimeURL, cfg.Timezone, logger)
	if err != nil {
		logger.Error("Failed to create time source", "error", err)
		os.Exit(1)
	}
	corrected := clock.NewCorrected(base, timeSource, logger)

	var sun provider.SunEventProvider
	switch cfg.SunSource {
	case "suncalc":
		sun = provider.NewSunCalcProvider(zone, corrected.Now)
	default:
		sun = provider.NewSunriseSunsetIO(clients.Sun, cfg.SunURL, zone, logger)
	}

	// Initialize MQTT client
	var mqttClient mqtt.Client
	if cfg.MQTTEnabled() {
		mqttClient = mqtt.NewClient(cfg, logger)
	}

	// Initialize Redis client
	var redisClient redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(cfg, logger)
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("Redis not reachable yet", "error", err)
		}
	}

	driver, err := buildOutputs(cfg, mqttClient, logger)
	if err != nil {
		logger.Error("Failed to initialise outputs", "error", err)
		os.Exit(1)
	}

	var radio network.Radio = network.NopRadio{}
	if cfg.RadioMode == "command" {
		radio = network.NewCommandRadio(network.Config{
			SSID:           cfg.WiFiSSID,
			Password:       cfg.WiFiPassword,
			WakeCommand:    cfg.RadioWakeCommand,
			ConnectCommand: cfg.RadioConnectCommand,
			SleepCommand:   cfg.RadioSleepCommand,
			ProbeAddress:   cfg.ProbeAddress,
			ConnectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		}, base, logger)
	}

	// Telemetry
	var publishers []telemetry.Publisher
	var recorder *telemetry.RedisRecorder
	if mqttClient != nil {
		publishers = append(publishers, telemetry.NewMQTTPublisher(mqttClient, cfg.DeviceName, logger))
	}
	if redisClient != nil {
		recorder = telemetry.NewRedisRecorder(redisClient, cfg.DeviceName, cfg.HistoryLength,
			time.Duration(cfg.StatusTTLSec)*time.Second, logger)
		publishers = append(publishers, recorder)
	}

	var reports telemetry.Publisher
	if len(publishers) > 0 {
		reports = telemetry.NewMulti(logger, publishers...)
	}

	// Create controller agent
	agent := controller.NewAgent(controller.Dependencies{
		Clock:     corrected,
		Locator:   locator,
		Sun:       sun,
		Output:    driver,
		Radio:     radio,
		Power:     power.NewScheduler(base, time.Duration(cfg.LivenessIntervalSec)*time.Second, time.Duration(cfg.MaxSleepSec)*time.Second, logger),
		Telemetry: reports,
	}, controller.Options{
		Device:        cfg.DeviceName,
		RetryInterval: time.Duration(cfg.RetryIntervalSec) * time.Second,
	}, logger)

	// Start health check server
	healthChecker := health.NewChecker(mqttClient, redisClient, logger).
		WithStatus(func() (interface{}, bool) {
			return agent.Snapshot()
		})
	if recorder != nil {
		healthChecker.WithHistory(recorder.Recent)
	}
	if cfg.RadioMode == "command" {
		healthChecker.WithRadio(agent.RadioAsleep)
	}
	httpServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	// Start agent in a goroutine
	agentDone := make(chan error, 1)
	go func() {
		agentDone <- agent.Start(ctx)
	}()

	// Wait for shutdown signal or agent exit
	running := true
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentDone:
		running = false
		if err != nil {
			logger.Error("Agent failed", "error", err)
		}
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	cancel()

	// An in-flight cycle must finish before the outputs are switched off
	if running {
		if err := <-agentDone; err != nil {
			logger.Error("Agent error", "error", err)
		}
	}

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Sunlamp shutdown complete")
}

// buildOutputs creates the driver for the configured output kind
func buildOutputs(cfg *config.Config, mqttClient mqtt.Client, logger *slog.Logger) (*output.Driver, error) {
	var channels []output.Channel

	switch cfg.OutputKind {
	case "pwm":
		pwm, err := output.NewPWMChannels(cfg.OutputPins, cfg.PWMFrequencyHz, logger)
		if err != nil {
			return nil, err
		}
		channels = pwm
	case "mqtt":
		for i, topic := range cfg.OutputTopics {
			channels = append(channels, output.NewMQTTChannel(fmt.Sprintf("led%d", i), topic, mqttClient, logger))
		}
	case "hue":
		for _, id := range cfg.HueLights {
			channels = append(channels, output.NewHueChannel(cfg.HueHost, cfg.HueUser, id, logger))
		}
	default:
		channels = append(channels,
			output.NewLogChannel("led0", logger),
			output.NewLogChannel("led1", logger))
	}

	return output.NewDriver(logger, channels...), nil
}

func logWriter(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           checker.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
