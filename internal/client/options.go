package client

import (
	"net/http"
	"time"

	"go-event-stream/internal/infrastructure/logger"
)

type Option func(*Client)

// WithReconnectDelay sets the constant wait between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithTimeouts builds the HTTP client with the given dial and whole-request
// timeouts. A zero request timeout means no limit.
func WithTimeouts(connect, request time.Duration) Option {
	return func(c *Client) {
		if connect <= 0 {
			connect = DefaultConnectTimeout
		}
		c.http = newHTTPClient(connect, request)
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}
