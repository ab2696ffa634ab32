package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/analyzer"
	"github.com/markus-lassfolk/hifiwifi/pkg/api"
	"github.com/markus-lassfolk/hifiwifi/pkg/audit"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/kafkabus"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/metrics"
	"github.com/markus-lassfolk/hifiwifi/pkg/mqtt"
	"github.com/markus-lassfolk/hifiwifi/pkg/pidfile"
	"github.com/markus-lassfolk/hifiwifi/pkg/probe"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/store"
	"github.com/markus-lassfolk/hifiwifi/pkg/uci"
)

var (
	configPath   = flag.String("config", uci.DefaultPath, "Path to UCI configuration file")
	pidPath      = flag.String("pid-file", "/var/run/hifiwifid.pid", "Path to PID file")
	logLevel     = flag.String("log-level", "", "Override log level (debug|info|warn|error)")
	profilesPath = flag.String("profiles", "", "YAML file with extra activity profiles")
	version      = flag.Bool("version", false, "Show version information")
	once         = flag.Bool("once", false, "Run a single local measurement, print the report and exit")
	force        = flag.Bool("force", false, "Force start by removing stale PID file")
)

const (
	AppName    = "hifiwifid"
	AppVersion = "1.0.0"

	heartbeatFile = "/tmp/hifiwifid.health"
)

// HeartbeatData is written to heartbeatFile every 10 seconds
type HeartbeatData struct {
	Timestamp   string  `json:"ts"`
	UptimeS     int64   `json:"uptime_s"`
	Version     string  `json:"version"`
	Status      string  `json:"status"`
	Room        string  `json:"room"`
	LastOverall string  `json:"last_overall,omitempty"`
	MemMB       float64 `json:"mem_mb"`
	Goroutines  int     `json:"goroutines"`
	DeviceID    string  `json:"device_id"`
}

// daemon holds everything that must be closed on shutdown
type daemon struct {
	cfg      *uci.Config
	logger   *logx.Logger
	analyzer *analyzer.Analyzer
	cycle    *analyzer.LocalCycle
	results  *store.ResultStore
	audit    *audit.DecisionLogger
	mqtt     *mqtt.Client
	kafkaPub *kafkabus.Publisher
	kafkaSub *kafkabus.Consumer
	api      *api.Server
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	logger := logx.NewLogger("info", AppName)

	cfg, err := uci.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	effectiveLogLevel := cfg.LogLevel
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	logger.SetLevel(effectiveLogLevel)

	if !cfg.Enable {
		logger.Info("hifiwifi is disabled in configuration, exiting")
		os.Exit(0)
	}

	if *once {
		os.Exit(runOnce(cfg, logger))
	}

	pidFile := pidfile.New(*pidPath)
	if *force {
		if err := pidFile.ForceRemove(); err != nil {
			logger.Error("Failed to remove existing PID file", "error", err)
			os.Exit(1)
		}
	}
	if err := pidFile.Create(); err != nil {
		logger.Error("Failed to create PID file", "error", err, "path", *pidPath)
		if errors.Is(err, pidfile.ErrRunning) {
			fmt.Fprintf(os.Stderr, "Error: %v\nUse --force to override, or stop the existing instance first\n", err)
		}
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error("Failed to remove PID file", "error", err)
		}
	}()

	logger.Info("Starting hifiwifi daemon", "version", AppVersion, "pid", os.Getpid(), "room", cfg.RoomID, "activity", cfg.Activity)

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize daemon", "error", err)
		os.Exit(1)
	}
	defer d.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := d.api.Start(); err != nil {
		logger.Error("Failed to start API server", "error", err)
		os.Exit(1)
	}

	startTime := time.Now()
	go d.writeHeartbeat(ctx, startTime)
	go d.runMainLoop(ctx)
	if d.kafkaSub != nil {
		go d.consumeMeasurements(ctx)
	}

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := d.api.Stop(shutdownCtx); err != nil {
		logger.Warn("API server did not stop cleanly", "error", err)
	}
	d.analyzer.Performance().LogSummary()
	logger.Info("Graceful shutdown completed")
}

// buildClassifier applies profile overrides and threshold settings
func buildClassifier(cfg *uci.Config, logger *logx.Logger) (*classifier.Classifier, error) {
	path := cfg.ProfilesFile
	if *profilesPath != "" {
		path = *profilesPath
	}

	registry := activity.DefaultRegistry()
	if path != "" {
		profiles, err := activity.LoadProfiles(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
		registry = activity.NewRegistry(profiles...)
		logger.Info("Loaded activity profiles", "path", path, "count", len(profiles))
	}
	return classifier.New(registry, cfg.Thresholds), nil
}

func newDaemon(cfg *uci.Config, logger *logx.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger}

	c, err := buildClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []analyzer.Option
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(cfg.MetricsNamespace)
		opts = append(opts, analyzer.WithMetrics(m))
	}

	if cfg.StoreEnabled {
		if d.results, err = store.Open(cfg.Store, logger); err != nil {
			return nil, err
		}
		opts = append(opts, analyzer.WithStore(d.results))
	}

	if cfg.AuditEnabled {
		if d.audit, err = audit.NewDecisionLogger(cfg.Audit, logger); err != nil {
			d.close()
			return nil, err
		}
		opts = append(opts, analyzer.WithDecisionLog(d.audit))
	}

	if cfg.MQTT.Enabled {
		d.mqtt = mqtt.NewClient(cfg.MQTT, logger)
		if err := d.mqtt.Connect(); err != nil {
			logger.Warn("MQTT connect failed", "error", err, "broker", cfg.MQTT.Broker)
		}
		opts = append(opts, analyzer.WithPublisher(d.mqtt))
	}

	if cfg.Kafka.Enabled {
		d.kafkaPub = kafkabus.NewPublisher(cfg.Kafka, logger)
		opts = append(opts, analyzer.WithPublisher(d.kafkaPub))
		if cfg.KafkaConsume {
			d.kafkaSub = kafkabus.NewConsumer(cfg.Kafka, logger)
		}
	}

	d.analyzer = analyzer.New(c, nil, logger, opts...)

	d.api = api.NewServer(cfg.API, d.analyzer, logger).WithVersion(AppVersion)
	if d.results != nil {
		d.api.WithHistory(d.results)
	}
	if d.audit != nil {
		d.api.WithDecisions(d.audit)
	}
	if m != nil {
		d.api.WithMetrics(m.Handler())
	}

	if cfg.LocalProbe {
		cycle, err := newLocalCycle(context.Background(), cfg, d.analyzer, logger)
		if err != nil {
			logger.Warn("Local measurement disabled", "error", err)
		} else {
			d.cycle = cycle
		}
	}
	return d, nil
}

func newLocalCycle(ctx context.Context, cfg *uci.Config, a *analyzer.Analyzer, logger *logx.Logger) (*analyzer.LocalCycle, error) {
	links := probe.NewLinkReader(nil)
	iface := cfg.Interface
	if iface == "" {
		detected, err := links.DetectStation(ctx)
		if err != nil {
			return nil, err
		}
		iface = detected
		logger.Info("Detected wireless station interface", "interface", iface)
	}

	station := analyzer.Station{
		RoomID:    cfg.RoomID,
		RoomName:  cfg.RoomName,
		Activity:  cfg.Activity,
		Interface: iface,
	}
	return analyzer.NewLocalCycle(a, probe.NewProber(cfg.Probe, logger), links, cfg.WindowSize, station), nil
}

// runOnce performs one local measurement and prints the report
func runOnce(cfg *uci.Config, logger *logx.Logger) int {
	c, err := buildClassifier(cfg, logger)
	if err != nil {
		logger.Error("Failed to build classifier", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cycle, err := newLocalCycle(ctx, cfg, analyzer.New(c, nil, logger), logger)
	if err != nil {
		logger.Error("Failed to set up local measurement", "error", err)
		return 1
	}
	report, err := cycle.Run(ctx)
	if err != nil {
		logger.Error("Measurement failed", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("Failed to encode report", "error", err)
		return 1
	}
	return 0
}

func (d *daemon) runMainLoop(ctx context.Context) {
	var measure <-chan time.Time
	if d.cycle != nil {
		ticker := time.NewTicker(d.cfg.Interval())
		defer ticker.Stop()
		measure = ticker.C
		d.measure(ctx)
	}

	var cleanup <-chan time.Time
	if d.audit != nil {
		ticker := time.NewTicker(d.cfg.AuditCleanupInterval())
		defer ticker.Stop()
		cleanup = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Main loop stopped")
			return
		case <-measure:
			d.measure(ctx)
		case now := <-cleanup:
			removed, err := d.audit.Cleanup(ctx, now)
			if err != nil {
				d.logger.Error("Decision log cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				d.logger.Info("Decision log cleaned up", "removed", removed)
			}
		}
	}
}

func (d *daemon) measure(ctx context.Context) {
	if _, err := d.cycle.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		// not associated is routine for a roaming station
		if errors.Is(err, quality.ErrInvalidInput) {
			d.logger.Debug("Local measurement skipped", "error", err)
			return
		}
		d.logger.Warn("Local measurement failed", "error", err)
	}
}

func (d *daemon) consumeMeasurements(ctx context.Context) {
	err := d.kafkaSub.Run(ctx, func(ctx context.Context, m classifier.Measurement) error {
		_, err := d.analyzer.Analyze(ctx, analyzer.Request{Measurement: m})
		return err
	})
	if err != nil {
		d.logger.Error("Kafka consumer stopped", "error", err)
	}
}

func (d *daemon) close() {
	if d.kafkaSub != nil {
		d.kafkaSub.Close()
	}
	if d.kafkaPub != nil {
		d.kafkaPub.Close()
	}
	if d.mqtt != nil {
		d.mqtt.Close()
	}
	if d.audit != nil {
		d.audit.Close()
	}
	if d.results != nil {
		d.results.Close()
	}
}

// writeHeartbeat writes heartbeat data every 10 seconds
func (d *daemon) writeHeartbeat(ctx context.Context, startTime time.Time) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			room := d.cfg.RoomID
			if room == "" {
				room = d.cfg.RoomName
			}
			heartbeat := HeartbeatData{
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
				UptimeS:    int64(time.Since(startTime).Seconds()),
				Version:    AppVersion,
				Status:     "ok",
				Room:       room,
				MemMB:      float64(memStats.Alloc) / 1024 / 1024,
				Goroutines: runtime.NumGoroutine(),
				DeviceID:   getDeviceID(),
			}
			if level, ok := d.analyzer.LastLevel(room); ok {
				heartbeat.LastOverall = level.String()
				if level <= quality.Bad {
					heartbeat.Status = "degraded"
				}
			}
			if err := writeFileAtomic(heartbeatFile, heartbeat); err != nil {
				d.logger.Error("Failed to write heartbeat file", "error", err, "file", heartbeatFile)
			}
			if d.mqtt != nil {
				status := map[string]interface{}{
					"online":   true,
					"version":  heartbeat.Version,
					"uptime_s": heartbeat.UptimeS,
					"status":   heartbeat.Status,
				}
				if err := d.mqtt.PublishStatus(status); err != nil {
					d.logger.Debug("Failed to publish status", "error", err)
				}
			}
		}
	}
}

func writeFileAtomic(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), AppName+"-heartbeat-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// getDeviceID returns a device identifier for the heartbeat
func getDeviceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "hifiwifi-device"
}
