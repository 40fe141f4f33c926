package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as a single-session transport.
//
// A Client represents exactly one broker session: it never reconnects on its
// own. When the session drops, OnConnectionLost fires and the owner dials a
// new Client. This keeps retry policy in one place (the connection manager).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions tracks filters subscribed on this session.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for this session.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on the paho router goroutine and should hand work off
// rather than block.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Will is the last-will message the broker publishes if the session dies.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// DialOptions are per-session settings.
type DialOptions struct {
	// Will is registered with the broker on connect. Optional.
	Will *Will

	// OnConnectionLost is called once if the session drops unexpectedly.
	OnConnectionLost func(err error)
}

// Dial makes one connection attempt to the broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Registers the last will, if any
//  3. Connects once, without paho's own retry or reconnect
//
// Parameters:
//   - ctx: Bounds the attempt together with the connect timeout
//   - cfg: MQTT configuration
//   - opts: Last will and connection-lost callback
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrAuthRejected if the broker refused the credentials or client
//     identity, ErrConnectionFailed otherwise
func Dial(ctx context.Context, cfg config.MQTTConfig, opts DialOptions) (*Client, error) {
	options := buildClientOptions(cfg)
	if opts.Will != nil {
		configureWill(options, *opts.Will)
	}

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	if opts.OnConnectionLost != nil {
		lost := opts.OnConnectionLost
		options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			lost(err)
		})
	}

	c.client = pahomqtt.NewClient(options)
	token := c.client.Connect()

	timeout, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-timeout.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, timeout.Err())
	}

	if err := token.Error(); err != nil {
		return nil, classifyConnectError(token, err)
	}
	return c, nil
}

// Close disconnects from the broker, waiting briefly for in-flight work.
//
// Returns:
//   - error: Always nil; closing an unconnected client is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
