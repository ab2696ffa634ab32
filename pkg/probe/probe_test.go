package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/samplestats"
)

const iwLinkOutput = `Connected to AA:BB:CC:DD:EE:FF (on wlan0)
	SSID: Home Net
	freq: 5180.0
	RX: 93416 bytes (617 packets)
	TX: 12345 bytes (99 packets)
	signal: -58 dBm
	rx bitrate: 433.3 MBit/s VHT-MCS 9 80MHz short GI VHT-NSS 1
	tx bitrate: 390.0 MBit/s VHT-MCS 8 80MHz short GI VHT-NSS 1

	bss flags:	short-slot-time
	dtim period:	2
	beacon int:	100
`

const iwDevOutput = `phy#1
	Interface wlan1
		ifindex 6
		type AP
		channel 36 (5180 MHz), width: 80 MHz
phy#0
	Interface wlan0
		ifindex 5
		addr 11:22:33:44:55:66
		type managed
`

func TestParseIWLink(t *testing.T) {
	info := ParseIWLink(iwLinkOutput)
	assert.True(t, info.Connected)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", info.BSSID)
	assert.Equal(t, "Home Net", info.SSID)
	assert.Equal(t, 5180, info.FrequencyMHz)
	assert.Equal(t, -58, info.SignalDBm)
	assert.Equal(t, 390.0, info.TxBitrateMbps)
	assert.Equal(t, 433.3, info.RxBitrateMbps)
	assert.Equal(t, "5GHz", info.Band())
}

func TestParseIWLinkNotConnected(t *testing.T) {
	info := ParseIWLink("Not connected.\n")
	assert.False(t, info.Connected)
	assert.Equal(t, 0, info.SignalDBm)
}

func TestLinkReader(t *testing.T) {
	var gotArgs []string
	r := NewLinkReader(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		if len(args) == 1 {
			return []byte(iwDevOutput), nil
		}
		return []byte(iwLinkOutput), nil
	})

	iface, err := r.DetectStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wlan0", iface)

	info, err := r.Read(context.Background(), "wlan0")
	require.NoError(t, err)
	assert.Equal(t, []string{"iw", "dev", "wlan0", "link"}, gotArgs)
	assert.Equal(t, "wlan0", info.Interface)
	assert.Equal(t, -58, info.SignalDBm)

	failing := NewLinkReader(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("iw: not found")
	})
	_, err = failing.Read(context.Background(), "wlan0")
	assert.Error(t, err)
	_, err = failing.DetectStation(context.Background())
	assert.Error(t, err)
}

type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

func testProber(cfg *Config, dial dialFunc) *Prober {
	p := NewProber(cfg, logx.NewLoggerWithOutput("error", "probe", io.Discard))
	p.dial = dial
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestProberBatch(t *testing.T) {
	var addrs []string
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := &Config{Targets: []string{"a", "b"}, Port: 443, BatchSize: 4, Interval: time.Millisecond}

	p := testProber(cfg, func(_ context.Context, network, addr string) (net.Conn, error) {
		addrs = append(addrs, addr)
		if addr == "b:443" && len(addrs) == 4 {
			return nil, errors.New("timeout")
		}
		clock = clock.Add(12500 * time.Microsecond)
		return fakeConn{}, nil
	})
	p.now = func() time.Time { return clock }

	probes, err := p.Batch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a:443", "b:443", "a:443", "b:443"}, addrs)
	require.Len(t, probes, 4)
	assert.Equal(t, 12.5, probes[0].LatencyMs)
	assert.True(t, probes[3].Failed)

	loss, err := samplestats.PacketLoss(probes)
	require.NoError(t, err)
	assert.Equal(t, 25.0, loss)
}

func TestProberCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testProber(&Config{Targets: []string{"a"}, BatchSize: 5}, func(context.Context, string, string) (net.Conn, error) {
		return fakeConn{}, nil
	})
	probes, err := p.Batch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, probes)
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(3)
	w.Add([]samplestats.Probe{{LatencyMs: 1}, {Failed: true}, {LatencyMs: 2}})
	assert.Equal(t, []float64{1, 2}, w.Values())

	w.Add([]samplestats.Probe{{LatencyMs: 3}, {LatencyMs: 4}})
	assert.Equal(t, []float64{2, 3, 4}, w.Values())
	assert.Equal(t, 3, w.Len())
	assert.Greater(t, w.Jitter(), 0.0)

	assert.Equal(t, samplestats.DefaultWindowSize, NewWindow(0).size)
}
