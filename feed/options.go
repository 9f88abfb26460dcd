package feed

import (
	"log/slog"
	"time"

	"github.com/dan246/ff14-tw-market/errors"
	"github.com/dan246/ff14-tw-market/metric"
)

// Option configures a Client using the functional options pattern.
type Option func(*Client) error

// WithDialer replaces the websocket dialer (used by tests).
func WithDialer(d Dialer) Option {
	return func(c *Client) error {
		if d == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithDialer", "nil dialer")
		}
		c.dialer = d
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// WithMetrics wires the core feed metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
// Defaults to 5 seconds.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithReconnectWait", "non-positive wait")
		}
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval sets the keep-alive ping interval. Zero disables
// keep-alive pings. Defaults to 30 seconds.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithPingInterval", "negative interval")
		}
		c.pingInterval = d
		return nil
	}
}

// WithHandshakeTimeout bounds the websocket handshake. Defaults to 10 seconds.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithHandshakeTimeout", "non-positive timeout")
		}
		c.handshakeTimeout = d
		return nil
	}
}

// WithOnConnect registers a callback invoked after each successful connect,
// before subscription replay.
func WithOnConnect(fn func()) Option {
	return func(c *Client) error {
		c.onConnect = fn
		return nil
	}
}

// WithOnDisconnect registers a callback invoked after each connection loss
// with the error that ended the read loop.
func WithOnDisconnect(fn func(error)) Option {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}
