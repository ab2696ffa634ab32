package uci

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/markus-lassfolk/hifiwifi/pkg/api"
	"github.com/markus-lassfolk/hifiwifi/pkg/audit"
	"github.com/markus-lassfolk/hifiwifi/pkg/kafkabus"
	"github.com/markus-lassfolk/hifiwifi/pkg/mqtt"
	"github.com/markus-lassfolk/hifiwifi/pkg/probe"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/samplestats"
	"github.com/markus-lassfolk/hifiwifi/pkg/store"
)

// DefaultPath is where OpenWrt keeps the package configuration
const DefaultPath = "/etc/config/hifiwifi"

// Default values
const (
	DefaultIntervalS             = 60
	DefaultAuditCleanupIntervalS = 3600
	DefaultMetricsNamespace      = "hifiwifi"
)

// Config represents the hifiwifi configuration
type Config struct {
	// Main configuration
	Enable       bool   `json:"enable"`
	LogLevel     string `json:"log_level"`
	IntervalS    int    `json:"interval_s"`
	ProfilesFile string `json:"profiles_file"`

	// Station: the room this host measures from
	RoomID    string `json:"room_id"`
	RoomName  string `json:"room_name"`
	Activity  string `json:"activity"`
	Interface string `json:"interface"`

	// Local probing
	LocalProbe bool          `json:"local_probe"`
	WindowSize int           `json:"window_size"`
	Probe      *probe.Config `json:"probe"`

	Thresholds quality.Thresholds `json:"thresholds"`

	StoreEnabled bool          `json:"store_enabled"`
	Store        *store.Config `json:"store"`

	AuditEnabled          bool          `json:"audit_enabled"`
	AuditCleanupIntervalS int           `json:"audit_cleanup_interval_s"`
	Audit                 *audit.Config `json:"audit"`

	MQTT *mqtt.Config `json:"mqtt"`

	Kafka        *kafkabus.Config `json:"kafka"`
	KafkaConsume bool             `json:"kafka_consume"`

	MetricsEnabled   bool   `json:"metrics_enabled"`
	MetricsNamespace string `json:"metrics_namespace"`

	API *api.Config `json:"api"`

	parseErrors []string
}

// LoadConfig loads and validates the configuration. The default path is
// read through the uci tool when available; any other path, or a missing
// uci tool, falls back to parsing the file directly.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != DefaultPath {
		return loadConfigFromFile(path)
	}

	cfg, err := NewUCI(nil).LoadConfig(context.Background())
	if err != nil {
		return loadConfigFromFile(path)
	}
	return cfg, nil
}

// loadConfigFromFile loads configuration from a file
func loadConfigFromFile(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := cfg.parseUCI(path); err != nil {
		return nil, fmt.Errorf("failed to parse UCI config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// NewConfig returns a configuration holding only defaults
func NewConfig() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// setDefaults sets default values for the configuration
func (c *Config) setDefaults() {
	c.Enable = true
	c.LogLevel = "info"
	c.IntervalS = DefaultIntervalS
	c.RoomID = "default"
	c.Activity = "general"
	c.LocalProbe = true
	c.WindowSize = samplestats.DefaultWindowSize
	c.Probe = probe.DefaultConfig()
	c.Thresholds = quality.DefaultThresholds()

	c.StoreEnabled = true
	c.Store = store.DefaultConfig()

	c.AuditEnabled = true
	c.AuditCleanupIntervalS = DefaultAuditCleanupIntervalS
	c.Audit = audit.DefaultConfig()

	c.MQTT = mqtt.DefaultConfig()
	c.Kafka = kafkabus.DefaultConfig()

	c.MetricsEnabled = true
	c.MetricsNamespace = DefaultMetricsNamespace

	c.API = api.DefaultConfig()
}

// Interval returns the measurement interval
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalS) * time.Second
}

// AuditCleanupInterval returns how often old decisions are pruned
func (c *Config) AuditCleanupInterval() time.Duration {
	return time.Duration(c.AuditCleanupIntervalS) * time.Second
}

// parseUCI parses a UCI configuration file
func (c *Config) parseUCI(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.parseUCIText(string(data))
}

func (c *Config) parseUCIText(text string) error {
	var sectionType, sectionName string
	listsSeen := make(map[string]bool)

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		keyword, rest := splitWord(line)
		switch keyword {
		case "config":
			sectionType, rest = splitWord(rest)
			sectionName = unquote(rest)
		case "option", "list":
			key, value := splitWord(rest)
			if key == "" {
				return fmt.Errorf("line %d: missing option name", i+1)
			}
			value = unquote(value)
			if keyword == "list" {
				// the first list entry replaces the default
				id := sectionType + "." + key
				c.parseList(sectionType, key, value, !listsSeen[id])
				listsSeen[id] = true
				continue
			}
			c.parseOption(sectionType, sectionName, key, value)
		default:
			return fmt.Errorf("line %d: unexpected %q", i+1, keyword)
		}
	}

	if len(c.parseErrors) > 0 {
		return fmt.Errorf("invalid values: %s", strings.Join(c.parseErrors, "; "))
	}
	return nil
}

// parseOption routes options to the parser for their section type
func (c *Config) parseOption(sectionType, sectionName, option, value string) {
	switch sectionType {
	case "hifiwifi", "":
		c.parseMainOption(option, value)
	case "probe":
		c.parseProbeOption(option, value)
	case "thresholds":
		c.parseThresholdsOption(option, value)
	case "store":
		c.parseStoreOption(option, value)
	case "audit":
		c.parseAuditOption(option, value)
	case "mqtt":
		c.parseMQTTOption(option, value)
	case "kafka":
		c.parseKafkaOption(option, value)
	case "metrics":
		c.parseMetricsOption(option, value)
	case "api":
		c.parseAPIOption(option, value)
	}
}

func (c *Config) parseList(sectionType, option, value string, reset bool) {
	switch {
	case sectionType == "probe" && option == "target":
		if reset {
			c.Probe.Targets = nil
		}
		c.Probe.Targets = append(c.Probe.Targets, value)
	case sectionType == "kafka" && option == "broker":
		if reset {
			c.Kafka.Brokers = nil
		}
		c.Kafka.Brokers = append(c.Kafka.Brokers, value)
	}
}

// parseMainOption parses core daemon options
func (c *Config) parseMainOption(option, value string) {
	switch option {
	case "enable":
		c.Enable = c.parseBool(option, value)
	case "log_level":
		c.LogLevel = value
	case "interval_s":
		c.IntervalS = c.parseInt(option, value)
	case "profiles_file":
		c.ProfilesFile = value
	case "room_id":
		c.RoomID = value
	case "room_name":
		c.RoomName = value
	case "activity":
		c.Activity = strings.ToLower(value)
	case "interface":
		c.Interface = value
	}
}

func (c *Config) parseProbeOption(option, value string) {
	switch option {
	case "enable":
		c.LocalProbe = c.parseBool(option, value)
	case "port":
		c.Probe.Port = c.parseInt(option, value)
	case "timeout_ms":
		c.Probe.Timeout = time.Duration(c.parseInt(option, value)) * time.Millisecond
	case "interval_ms":
		c.Probe.Interval = time.Duration(c.parseInt(option, value)) * time.Millisecond
	case "batch_size":
		c.Probe.BatchSize = c.parseInt(option, value)
	case "window_size":
		c.WindowSize = c.parseInt(option, value)
	case "target":
		// single-valued form of the target list
		c.Probe.Targets = strings.Fields(value)
	}
}

// parseThresholdsOption reads a ladder written best cutoff first,
// e.g. option signal '-30 -50 -65 -80'
func (c *Config) parseThresholdsOption(option, value string) {
	var ladder *quality.Ladder
	switch option {
	case "signal":
		ladder = &c.Thresholds.Signal
	case "latency":
		ladder = &c.Thresholds.Latency
	case "bandwidth":
		ladder = &c.Thresholds.Bandwidth
	case "jitter":
		ladder = &c.Thresholds.Jitter
	case "packet_loss":
		ladder = &c.Thresholds.PacketLoss
	default:
		return
	}

	fields := strings.Fields(value)
	if len(fields) != len(ladder.Cutoffs) {
		c.addParseError(option, value, fmt.Sprintf("want %d cutoffs", len(ladder.Cutoffs)))
		return
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			c.addParseError(option, value, "not a number")
			return
		}
		ladder.Cutoffs[i] = v
	}
}

func (c *Config) parseStoreOption(option, value string) {
	switch option {
	case "enable":
		c.StoreEnabled = c.parseBool(option, value)
	case "path":
		c.Store.Path = value
	case "max_per_room":
		c.Store.MaxPerRoom = c.parseInt(option, value)
	}
}

func (c *Config) parseAuditOption(option, value string) {
	switch option {
	case "enable":
		c.AuditEnabled = c.parseBool(option, value)
	case "path":
		c.Audit.DatabasePath = value
	case "retention_days":
		c.Audit.RetentionDays = c.parseInt(option, value)
	case "max_records":
		c.Audit.MaxRecords = c.parseInt(option, value)
	case "cleanup_interval_s":
		c.AuditCleanupIntervalS = c.parseInt(option, value)
	}
}

func (c *Config) parseMQTTOption(option, value string) {
	switch option {
	case "enable":
		c.MQTT.Enabled = c.parseBool(option, value)
	case "broker":
		c.MQTT.Broker = value
	case "port":
		c.MQTT.Port = c.parseInt(option, value)
	case "client_id":
		c.MQTT.ClientID = value
	case "username":
		c.MQTT.Username = value
	case "password":
		c.MQTT.Password = value
	case "topic_prefix":
		c.MQTT.TopicPrefix = value
	case "qos":
		c.MQTT.QoS = c.parseInt(option, value)
	case "retain":
		c.MQTT.Retain = c.parseBool(option, value)
	case "max_per_sec":
		c.MQTT.MaxPerSec = c.parseInt(option, value)
	}
}

func (c *Config) parseKafkaOption(option, value string) {
	switch option {
	case "enable":
		c.Kafka.Enabled = c.parseBool(option, value)
	case "brokers":
		c.Kafka.Brokers = splitList(value)
	case "reports_topic":
		c.Kafka.ReportsTopic = value
	case "measurements_topic":
		c.Kafka.MeasurementsTopic = value
	case "group_id":
		c.Kafka.GroupID = value
	case "consume":
		c.KafkaConsume = c.parseBool(option, value)
	}
}

func (c *Config) parseMetricsOption(option, value string) {
	switch option {
	case "enable":
		c.MetricsEnabled = c.parseBool(option, value)
	case "namespace":
		c.MetricsNamespace = value
	}
}

func (c *Config) parseAPIOption(option, value string) {
	switch option {
	case "enable":
		c.API.Enabled = c.parseBool(option, value)
	case "host":
		c.API.Host = value
	case "port":
		c.API.Port = c.parseInt(option, value)
	case "auth_key":
		c.API.AuthKey = value
	}
}

func (c *Config) parseBool(option, value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on", "enabled":
		return true
	case "0", "false", "no", "off", "disabled":
		return false
	}
	c.addParseError(option, value, "not a boolean")
	return false
}

func (c *Config) parseInt(option, value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		c.addParseError(option, value, "not an integer")
		return 0
	}
	return n
}

func (c *Config) addParseError(option, value, msg string) {
	c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s=%q: %s", option, value, msg))
}

// validate validates the configuration
func (c *Config) validate() error {
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	if c.IntervalS < 5 || c.IntervalS > 86400 {
		return fmt.Errorf("interval_s must be between 5 and 86400")
	}
	if c.RoomID == "" && c.RoomName == "" {
		return fmt.Errorf("room_id or room_name is required")
	}
	if c.WindowSize < 2 || c.WindowSize > 1000 {
		return fmt.Errorf("window_size must be between 2 and 1000")
	}
	if c.Probe.BatchSize < 1 || c.Probe.BatchSize > 1000 {
		return fmt.Errorf("batch_size must be between 1 and 1000")
	}
	if len(c.Probe.Targets) == 0 {
		return fmt.Errorf("at least one probe target is required")
	}
	if c.Probe.Port < 1 || c.Probe.Port > 65535 {
		return fmt.Errorf("probe port must be between 1 and 65535")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.StoreEnabled && c.Store.MaxPerRoom < 1 {
		return fmt.Errorf("max_per_room must be at least 1")
	}
	if c.AuditEnabled && c.Audit.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("api port must be between 1 and 65535")
	}
	return nil
}

func isValidLogLevel(level string) bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return true
		}
	}
	return false
}

// splitWord returns the first whitespace-separated word and the trimmed rest
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}
