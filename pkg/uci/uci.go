package uci

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

// Package is the UCI package name read by the daemon
const Package = "hifiwifi"

const uciTimeout = 5 * time.Second

var quotedRe = regexp.MustCompile(`'([^']*)'`)

type execFunc func(ctx context.Context, args ...string) (string, error)

// UCI represents a UCI client
type UCI struct {
	logger *logx.Logger
	exec   execFunc
}

// NewUCI creates a new UCI client
func NewUCI(logger *logx.Logger) *UCI {
	u := &UCI{logger: logger}
	u.exec = u.execUCI
	return u
}

// LoadConfig loads the complete configuration from "uci show"
func (u *UCI) LoadConfig(ctx context.Context) (*Config, error) {
	output, err := u.exec(ctx, "-q", "show", Package)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", Package, err)
	}

	cfg := NewConfig()
	if err := cfg.parseShow(output); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// parseShow reads the "pkg.section.option='value'" lines of uci show
func (c *Config) parseShow(output string) error {
	sectionTypes := make(map[string]string)

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		left, right := parts[0], parts[1]
		path := strings.Split(left, ".")

		switch len(path) {
		case 2:
			// section definition: hifiwifi.main=hifiwifi or hifiwifi.@store[0]=store
			sectionTypes[path[1]] = right
		case 3:
			section, option := path[1], path[2]
			sectionType, ok := sectionTypes[section]
			if !ok {
				sectionType = anonymousType(section)
			}

			values := quotedRe.FindAllStringSubmatch(right, -1)
			if isListOption(sectionType, option) && len(values) > 0 {
				for i, v := range values {
					c.parseList(sectionType, option, v[1], i == 0)
				}
				continue
			}
			c.parseOption(sectionType, section, option, unquote(right))
		}
	}

	if len(c.parseErrors) > 0 {
		return fmt.Errorf("invalid values: %s", strings.Join(c.parseErrors, "; "))
	}
	return nil
}

// anonymousType extracts "store" from "@store[0]"
func anonymousType(section string) string {
	if !strings.HasPrefix(section, "@") {
		return ""
	}
	t := strings.TrimPrefix(section, "@")
	if i := strings.Index(t, "["); i != -1 {
		t = t[:i]
	}
	return t
}

func isListOption(sectionType, option string) bool {
	return (sectionType == "probe" && option == "target") || (sectionType == "kafka" && option == "broker")
}

// Export returns the package in "uci export" format
func (u *UCI) Export(ctx context.Context) (string, error) {
	output, err := u.exec(ctx, "export", Package)
	if err != nil {
		return "", fmt.Errorf("failed to export config: %w", err)
	}
	return output, nil
}

// ValidateUCI checks if UCI is available and working
func (u *UCI) ValidateUCI(ctx context.Context) error {
	if _, err := u.exec(ctx, "-q", "show", Package); err != nil {
		return fmt.Errorf("UCI is not available: %w", err)
	}
	return nil
}

// execUCI executes a UCI command
func (u *UCI) execUCI(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uciTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, "uci", args...).Output()
	if err != nil {
		if u.logger != nil {
			u.logger.Debug("UCI command failed", "command", "uci "+strings.Join(args, " "), "error", err)
		}
		return "", fmt.Errorf("uci command failed: %w", err)
	}
	return string(output), nil
}
