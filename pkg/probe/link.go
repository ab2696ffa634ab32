package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/hifiwifi/pkg/recommend"
)

// LinkInfo is the state of the station's association
type LinkInfo struct {
	Interface     string  `json:"interface"`
	Connected     bool    `json:"connected"`
	SSID          string  `json:"ssid,omitempty"`
	BSSID         string  `json:"bssid,omitempty"`
	SignalDBm     int     `json:"signal_dbm"`
	FrequencyMHz  int     `json:"frequency_mhz"`
	TxBitrateMbps float64 `json:"tx_bitrate_mbps"`
	RxBitrateMbps float64 `json:"rx_bitrate_mbps"`
}

// Band returns "5GHz" or "2.4GHz"
func (l LinkInfo) Band() string {
	return recommend.BandFromFrequency(l.FrequencyMHz)
}

// CommandRunner runs an external command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var (
	connectedRe = regexp.MustCompile(`Connected to ([0-9a-fA-F:]{17})`)
	ssidRe      = regexp.MustCompile(`(?m)^\s*SSID:\s*(.+)$`)
	freqRe      = regexp.MustCompile(`(?m)^\s*freq:\s*(\d+)`)
	signalRe    = regexp.MustCompile(`(?m)^\s*signal:\s*(-?\d+)\s*dBm`)
	txRe        = regexp.MustCompile(`(?m)^\s*tx bitrate:\s*([\d.]+)\s*MBit/s`)
	rxRe        = regexp.MustCompile(`(?m)^\s*rx bitrate:\s*([\d.]+)\s*MBit/s`)
	ifaceRe     = regexp.MustCompile(`(?m)^\s*Interface\s+(\S+)`)
	typeRe      = regexp.MustCompile(`(?m)^\s*type\s+(\S+)`)
)

// LinkReader reads link state with the iw tool
type LinkReader struct {
	run CommandRunner
}

// NewLinkReader creates a reader; a nil runner means ExecRunner
func NewLinkReader(run CommandRunner) *LinkReader {
	if run == nil {
		run = ExecRunner
	}
	return &LinkReader{run: run}
}

// Read runs "iw dev <iface> link" and parses the result
func (r *LinkReader) Read(ctx context.Context, iface string) (LinkInfo, error) {
	out, err := r.run(ctx, "iw", "dev", iface, "link")
	if err != nil {
		return LinkInfo{Interface: iface}, fmt.Errorf("failed to read link for %s: %w", iface, err)
	}
	info := ParseIWLink(string(out))
	info.Interface = iface
	return info, nil
}

// DetectStation returns the first managed-mode interface listed by "iw dev"
func (r *LinkReader) DetectStation(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "iw", "dev")
	if err != nil {
		return "", fmt.Errorf("failed to list wireless interfaces: %w", err)
	}

	// each "Interface" line starts a block; its "type" follows later
	blocks := ifaceRe.FindAllStringSubmatchIndex(string(out), -1)
	for i, loc := range blocks {
		end := len(out)
		if i+1 < len(blocks) {
			end = blocks[i+1][0]
		}
		block := string(out[loc[0]:end])
		if m := typeRe.FindStringSubmatch(block); len(m) > 1 && m[1] == "managed" {
			return string(out[loc[2]:loc[3]]), nil
		}
	}
	return "", fmt.Errorf("no managed wireless interface found")
}

// ParseIWLink parses the output of "iw dev <iface> link"
func ParseIWLink(output string) LinkInfo {
	var info LinkInfo
	if strings.Contains(output, "Not connected") {
		return info
	}

	if m := connectedRe.FindStringSubmatch(output); len(m) > 1 {
		info.Connected = true
		info.BSSID = strings.ToLower(m[1])
	}
	if m := ssidRe.FindStringSubmatch(output); len(m) > 1 {
		info.SSID = strings.TrimSpace(m[1])
	}
	if m := freqRe.FindStringSubmatch(output); len(m) > 1 {
		info.FrequencyMHz, _ = strconv.Atoi(m[1])
	}
	if m := signalRe.FindStringSubmatch(output); len(m) > 1 {
		info.SignalDBm, _ = strconv.Atoi(m[1])
	}
	if m := txRe.FindStringSubmatch(output); len(m) > 1 {
		info.TxBitrateMbps, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := rxRe.FindStringSubmatch(output); len(m) > 1 {
		info.RxBitrateMbps, _ = strconv.ParseFloat(m[1], 64)
	}
	return info
}
