package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/guidoenr/fantasia/internal/override"
)

const (
	DefaultTopic       = "fantasia"
	DefaultStatusEvery = 5 * time.Second
	handoffTimeout     = time.Second
	disconnectQuiesce  = 250
)

// ErrBadPayload is returned for force messages that cannot be decoded.
var ErrBadPayload = errors.New("remote: bad payload")

// Config holds MQTT connection and topic settings.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	Topic       string
	StatusEvery time.Duration
	Log         *log.Logger
}

// ForceRequest is the payload of <topic>/force.
type ForceRequest struct {
	ID      string  `json:"id"`
	Minutes float64 `json:"minutes"`
}

// Bridge subscribes to control topics and publishes status snapshots.
type Bridge struct {
	client mqtt.Client
	cfg    Config
	log    *log.Logger
	cmds   chan<- Command
	board  *Board
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	c.Topic = strings.TrimSuffix(c.Topic, "/")
	if c.ClientID == "" {
		c.ClientID = "fantasia-lobby"
	}
	if c.StatusEvery <= 0 {
		c.StatusEvery = DefaultStatusEvery
	}
	return c
}

// ForceTopic carries {"id","minutes"} force requests.
func (c Config) ForceTopic() string  { return c.Topic + "/force" }
func (c Config) ClearTopic() string  { return c.Topic + "/clear" }
func (c Config) StatusTopic() string { return c.Topic + "/status" }

func newBridge(client mqtt.Client, cfg Config, cmds chan<- Command, board *Board) *Bridge {
	return &Bridge{client: client, cfg: cfg, log: cfg.Log, cmds: cmds, board: board}
}

// Dial connects to the broker and subscribes to the control topics.
func Dial(cfg Config, cmds chan<- Command, board *Board) (*Bridge, error) {
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}

	b := newBridge(nil, cfg, cmds, board)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logf("mqtt connection lost: %v", err)
	})
	// Subscriptions are renewed on every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := b.subscribe(c); err != nil {
			b.logf("mqtt subscribe: %v", err)
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	b.client = client
	b.logf("mqtt connected to %s, topic %s", cfg.Broker, cfg.Topic)
	return b, nil
}

func (b *Bridge) subscribe(c mqtt.Client) error {
	for topic, handler := range map[string]mqtt.MessageHandler{
		b.cfg.ForceTopic(): b.handleForce,
		b.cfg.ClearTopic(): b.handleClear,
	} {
		token := c.Subscribe(topic, 1, handler)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}
	return nil
}

// ParseForce decodes a force payload into a command. A missing or
// non-positive minutes value uses the default override duration.
func ParseForce(payload []byte) (Command, error) {
	var req ForceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return Command{}, fmt.Errorf("%w: missing id", ErrBadPayload)
	}
	d := override.DefaultDuration
	if req.Minutes > 0 {
		d = time.Duration(req.Minutes * float64(time.Minute))
	}
	return Command{Kind: CmdForce, ID: req.ID, Duration: d}, nil
}

func (b *Bridge) handleForce(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseForce(msg.Payload())
	if err != nil {
		b.logf("mqtt %s: %v", msg.Topic(), err)
		return
	}
	b.deliver(cmd)
}

func (b *Bridge) handleClear(_ mqtt.Client, _ mqtt.Message) {
	b.deliver(Command{Kind: CmdClear})
}

func (b *Bridge) deliver(cmd Command) {
	select {
	case b.cmds <- cmd:
	case <-time.After(handoffTimeout):
		b.logf("mqtt: command queue full, dropping %s", cmd.Kind)
	}
}

// Run publishes the board every StatusEvery until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.StatusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.PublishStatus(); err != nil {
				b.logf("mqtt status: %v", err)
			}
		}
	}
}

// PublishStatus sends the current board snapshot once.
func (b *Bridge) PublishStatus() error {
	payload, err := json.Marshal(b.board.Get())
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	token := b.client.Publish(b.cfg.StatusTopic(), 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", b.cfg.StatusTopic(), token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client == nil {
		return
	}
	b.client.Disconnect(disconnectQuiesce)
	b.logf("mqtt disconnected")
}

func (b *Bridge) logf(format string, args ...any) {
	if b.log != nil {
		b.log.Printf(format, args...)
	}
}
