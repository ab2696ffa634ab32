package uci

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

// ConfigValidator reports every problem in a configuration, unlike
// validate() which stops at the first
type ConfigValidator struct {
	logger   *logx.Logger
	registry *activity.Registry
}

// NewConfigValidator creates a new configuration validator. A nil registry
// means the built-in profiles.
func NewConfigValidator(logger *logx.Logger, registry *activity.Registry) *ConfigValidator {
	if registry == nil {
		registry = activity.DefaultRegistry()
	}
	return &ConfigValidator{
		logger:   logger,
		registry: registry,
	}
}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Summary  ValidationSummary   `json:"summary"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Section string `json:"section"`
	Option  string `json:"option"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationWarning represents a configuration validation warning
type ValidationWarning struct {
	Section string `json:"section"`
	Option  string `json:"option"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationSummary provides a summary of validation results
type ValidationSummary struct {
	TotalErrors   int `json:"total_errors"`
	TotalWarnings int `json:"total_warnings"`
	TotalOptions  int `json:"total_options"`
	ValidOptions  int `json:"valid_options"`
}

// ValidateConfiguration validates every section
func (v *ConfigValidator) ValidateConfiguration(config *Config) ValidationResult {
	result := ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	v.validateMainSection(config, &result)
	v.validateProbeSection(config, &result)
	v.validateThresholdsSection(config, &result)
	v.validateStorageSections(config, &result)
	v.validateMQTTSection(config, &result)
	v.validateKafkaSection(config, &result)
	v.validateAPISection(config, &result)

	result.Summary = v.calculateSummary(result)
	result.Valid = len(result.Errors) == 0

	if v.logger != nil {
		v.logger.Debug("Configuration validated",
			"valid", result.Valid,
			"errors", result.Summary.TotalErrors,
			"warnings", result.Summary.TotalWarnings,
		)
	}
	return result
}

func (v *ConfigValidator) validateMainSection(config *Config, result *ValidationResult) {
	section := "main"

	v.validateLogLevel(section, "log_level", config.LogLevel, result)
	v.validateIntegerRange(section, "interval_s", config.IntervalS, 5, 86400, result)

	result.Summary.TotalOptions++
	if config.RoomID == "" && config.RoomName == "" {
		v.addError(result, section, "room_id", "", "room_id or room_name is required")
	} else {
		result.Summary.ValidOptions++
	}

	result.Summary.TotalOptions++
	if !v.registry.Supports(config.Activity) {
		v.addWarning(result, section, "activity", config.Activity,
			fmt.Sprintf("Unknown activity, the %s profile will be used", activity.General))
	}
	result.Summary.ValidOptions++

	if config.ProfilesFile != "" {
		v.validateFilePath(section, "profiles_file", config.ProfilesFile, true, result)
	}

	if config.LocalProbe && config.Interface == "" {
		v.addWarning(result, section, "interface", "", "No interface set, the first managed interface will be used")
	}
}

func (v *ConfigValidator) validateProbeSection(config *Config, result *ValidationResult) {
	section := "probe"

	v.validateIntegerRange(section, "port", config.Probe.Port, 1, 65535, result)
	v.validateIntegerRange(section, "batch_size", config.Probe.BatchSize, 1, 1000, result)
	v.validateIntegerRange(section, "window_size", config.WindowSize, 2, 1000, result)
	v.validateIntegerRange(section, "timeout_ms", int(config.Probe.Timeout.Milliseconds()), 1, 60000, result)

	result.Summary.TotalOptions++
	if len(config.Probe.Targets) == 0 {
		v.addError(result, section, "target", "", "At least one probe target is required")
	} else {
		result.Summary.ValidOptions++
	}
	for _, t := range config.Probe.Targets {
		v.validateHost(section, "target", t, result)
	}

	if config.Probe.BatchSize < 20 {
		v.addWarning(result, section, "batch_size", strconv.Itoa(config.Probe.BatchSize),
			"Batches under 20 probes give a packet loss resolution above 5%")
	}
}

func (v *ConfigValidator) validateThresholdsSection(config *Config, result *ValidationResult) {
	result.Summary.TotalOptions++
	if err := config.Thresholds.Validate(); err != nil {
		v.addError(result, "thresholds", "", "", err.Error())
		return
	}
	result.Summary.ValidOptions++
}

func (v *ConfigValidator) validateStorageSections(config *Config, result *ValidationResult) {
	if config.StoreEnabled {
		v.validateFilePath("store", "path", config.Store.Path, false, result)
		v.validateIntegerRange("store", "max_per_room", config.Store.MaxPerRoom, 1, 100000, result)
	}
	if config.AuditEnabled {
		v.validateFilePath("audit", "path", config.Audit.DatabasePath, false, result)
		v.validateIntegerRange("audit", "retention_days", config.Audit.RetentionDays, 1, 3650, result)
		v.validateIntegerRange("audit", "max_records", config.Audit.MaxRecords, 0, 10000000, result)
		v.validateIntegerRange("audit", "cleanup_interval_s", config.AuditCleanupIntervalS, 60, 604800, result)
	}
}

func (v *ConfigValidator) validateMQTTSection(config *Config, result *ValidationResult) {
	if !config.MQTT.Enabled {
		return
	}
	section := "mqtt"

	result.Summary.TotalOptions++
	if config.MQTT.Broker == "" {
		v.addError(result, section, "broker", "", "Broker is required when MQTT is enabled")
	} else {
		result.Summary.ValidOptions++
		v.validateHost(section, "broker", config.MQTT.Broker, result)
	}
	v.validateIntegerRange(section, "port", config.MQTT.Port, 1, 65535, result)
	v.validateIntegerRange(section, "qos", config.MQTT.QoS, 0, 2, result)
	v.validateMQTTTopic(section, "topic_prefix", config.MQTT.TopicPrefix, result)

	if config.MQTT.Username != "" && config.MQTT.Password == "" {
		v.addWarning(result, section, "password", "", "Username set without a password")
	}
}

func (v *ConfigValidator) validateKafkaSection(config *Config, result *ValidationResult) {
	if !config.Kafka.Enabled {
		return
	}
	section := "kafka"

	result.Summary.TotalOptions++
	if len(config.Kafka.Brokers) == 0 {
		v.addError(result, section, "broker", "", "At least one broker is required when Kafka is enabled")
	} else {
		result.Summary.ValidOptions++
	}
	for _, b := range config.Kafka.Brokers {
		result.Summary.TotalOptions++
		if _, _, err := net.SplitHostPort(b); err != nil {
			v.addError(result, section, "broker", b, "Broker must be host:port")
			continue
		}
		result.Summary.ValidOptions++
	}

	result.Summary.TotalOptions++
	if config.Kafka.ReportsTopic == "" {
		v.addError(result, section, "reports_topic", "", "Reports topic is required")
	} else {
		result.Summary.ValidOptions++
	}
	if config.KafkaConsume && config.Kafka.GroupID == "" {
		v.addError(result, section, "group_id", "", "Group id is required to consume measurements")
	}
}

func (v *ConfigValidator) validateAPISection(config *Config, result *ValidationResult) {
	if !config.API.Enabled {
		return
	}
	section := "api"

	v.validateIntegerRange(section, "port", config.API.Port, 1, 65535, result)
	if config.API.AuthKey == "" && config.API.Host != "localhost" && config.API.Host != "127.0.0.1" {
		v.addWarning(result, section, "auth_key", "", "API listens beyond localhost without an auth key")
	}
}

func (v *ConfigValidator) validateIntegerRange(section, option string, value int, min, max int, result *ValidationResult) {
	result.Summary.TotalOptions++
	if value < min || value > max {
		v.addError(result, section, option, strconv.Itoa(value), fmt.Sprintf("Value must be between %d and %d", min, max))
		return
	}
	result.Summary.ValidOptions++
}

func (v *ConfigValidator) validateLogLevel(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	if !isValidLogLevel(value) {
		v.addError(result, section, option, value, "Log level must be one of [debug info warn error]")
		return
	}
	result.Summary.ValidOptions++
}

// validateFilePath requires an absolute path. mustExist applies to inputs;
// for outputs only a missing directory is reported.
func (v *ConfigValidator) validateFilePath(section, option, value string, mustExist bool, result *ValidationResult) {
	result.Summary.TotalOptions++
	if !filepath.IsAbs(value) {
		v.addError(result, section, option, value, "File path must be absolute")
		return
	}

	if mustExist {
		if _, err := os.Stat(value); err != nil {
			v.addError(result, section, option, value, "File does not exist")
			return
		}
	} else if dir := filepath.Dir(value); !dirExists(dir) {
		v.addWarning(result, section, option, value, fmt.Sprintf("Directory does not exist: %s", dir))
	}
	result.Summary.ValidOptions++
}

func (v *ConfigValidator) validateHost(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	host := value
	if h, _, err := net.SplitHostPort(value); err == nil {
		host = h
	}
	if host == "" || strings.ContainsAny(host, " /") {
		v.addError(result, section, option, value, "Invalid host")
		return
	}
	result.Summary.ValidOptions++
}

func (v *ConfigValidator) validateMQTTTopic(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	if strings.ContainsAny(value, "#+") {
		v.addError(result, section, option, value, "Topic prefix cannot contain MQTT wildcards")
		return
	}
	result.Summary.ValidOptions++
}

func (v *ConfigValidator) addError(result *ValidationResult, section, option, value, msg string) {
	result.Errors = append(result.Errors, ValidationError{Section: section, Option: option, Value: value, Message: msg})
}

func (v *ConfigValidator) addWarning(result *ValidationResult, section, option, value, msg string) {
	result.Warnings = append(result.Warnings, ValidationWarning{Section: section, Option: option, Value: value, Message: msg})
}

func (v *ConfigValidator) calculateSummary(result ValidationResult) ValidationSummary {
	return ValidationSummary{
		TotalErrors:   len(result.Errors),
		TotalWarnings: len(result.Warnings),
		TotalOptions:  result.Summary.TotalOptions,
		ValidOptions:  result.Summary.ValidOptions,
	}
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
