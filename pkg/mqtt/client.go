package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

const connectWait = 10 * time.Second

// Client publishes room reports and daemon status to an MQTT broker
type Client struct {
	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	connected   atomic.Bool
	lastPublish atomic.Int64

	limiter *RateLimiter
}

// Config holds MQTT configuration
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
	MaxPerSec   int    `json:"max_per_sec"`
}

// DefaultConfig returns default MQTT configuration
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "hifiwifid",
		TopicPrefix: "hifiwifi",
		QoS:         1,
		Retain:      true,
		Enabled:     false,
		MaxPerSec:   10,
	}
}

// NewClient creates a client; Connect must be called before publishing
func NewClient(config *Config, logger *logx.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	maxPerSec := config.MaxPerSec
	if maxPerSec <= 0 {
		maxPerSec = 10
	}
	return &Client{
		logger:  logger,
		config:  config,
		limiter: NewRateLimiter(maxPerSec, time.Second),
	}
}

// Connect establishes the broker connection. It is a no-op when disabled.
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("MQTT client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetWill(c.topic("status"), `{"online":false}`, byte(c.config.QoS), true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	// with connect retry the token only completes once the broker answers
	token := c.client.Connect()
	if !token.WaitTimeout(connectWait) {
		c.logger.Warn("MQTT broker not reachable yet, retrying in background", "broker", c.config.Broker)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	c.logger.Info("MQTT client connected", map[string]interface{}{
		"broker": c.config.Broker,
		"port":   c.config.Port,
	})
	return nil
}

// Close disconnects from the broker
func (c *Client) Close() error {
	if c.client != nil && c.connected.Load() {
		c.client.Disconnect(250)
		c.connected.Store(false)
		c.logger.Info("MQTT client disconnected")
	}
	return nil
}

// Name identifies the sink in logs and metrics
func (c *Client) Name() string {
	return "mqtt"
}

func (c *Client) onConnect(client MQTT.Client) {
	c.connected.Store(true)
	c.logger.Info("MQTT connection established")
	if err := c.PublishStatus(map[string]interface{}{"online": true}); err != nil {
		c.logger.Warn("Failed to publish online status", "error", err)
	}
}

func (c *Client) onConnectionLost(client MQTT.Client, err error) {
	c.connected.Store(false)
	c.logger.Error("MQTT connection lost", map[string]interface{}{
		"error": err.Error(),
	})
}

// topic joins the prefix and the given parts
func (c *Client) topic(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, strings.TrimSuffix(c.config.TopicPrefix, "/"))
	for _, p := range parts {
		// '+' and '#' are wildcards and '/' would add levels
		p = strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(p)
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}

// PublishReport publishes a room report and its recommendation on
// <prefix>/rooms/<room>/report and <prefix>/rooms/<room>/recommendation
func (c *Client) PublishReport(ctx context.Context, report *pkg.RoomReport) error {
	if !c.ready() {
		return nil
	}
	room := report.Room()

	if err := c.publishJSON(c.topic("rooms", room, "report"), report); err != nil {
		return err
	}
	return c.publishJSON(c.topic("rooms", room, "recommendation"), report.Recommendation)
}

// PublishStatus publishes daemon status
func (c *Client) PublishStatus(status map[string]interface{}) error {
	if !c.ready() {
		return nil
	}
	payload := map[string]interface{}{
		"timestamp": time.Now(),
	}
	for k, v := range status {
		payload[k] = v
	}
	return c.publishJSON(c.topic("status"), payload)
}

func (c *Client) ready() bool {
	return c.config.Enabled && c.connected.Load() && c.client != nil
}

func (c *Client) publishJSON(topic string, payload interface{}) error {
	if !c.limiter.Allow() {
		c.logger.Warn("MQTT rate limit exceeded, dropping message", "topic", topic)
		return fmt.Errorf("rate limit exceeded for topic %s", topic)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.lastPublish.Store(time.Now().UnixNano())
	c.logger.Debug("MQTT message published", map[string]interface{}{
		"topic": topic,
		"size":  len(data),
	})
	return nil
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// LastPublish returns the time of the last successful publish
func (c *Client) LastPublish() time.Time {
	n := c.lastPublish.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// RateLimiter allows at most maxMessages per window
type RateLimiter struct {
	mu           sync.Mutex
	windowStart  time.Time
	messageCount int
	maxMessages  int
	windowSize   time.Duration
	now          func() time.Time
}

// NewRateLimiter creates a fixed-window rate limiter
func NewRateLimiter(maxMessages int, window time.Duration) *RateLimiter {
	return &RateLimiter{maxMessages: maxMessages, windowSize: window, now: time.Now}
}

// Allow reports whether another message fits in the current window
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.windowStart) >= rl.windowSize {
		rl.messageCount = 0
		rl.windowStart = now
	}

	if rl.messageCount < rl.maxMessages {
		rl.messageCount++
		return true
	}
	return false
}
