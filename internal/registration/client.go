// Package registration announces this daemon to a backend control plane
// so remote callers can discover its terminal API. It is reachability
// glue: failures are logged and retried, never allowed to take the
// terminal surface down, and the daemon never manages the tunnel that
// backs the public URL.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/edgeterm/edgeterm/internal/infrastructure/logging"
	"github.com/edgeterm/edgeterm/internal/shared/id"
)

// Config describes how the daemon announces itself.
type Config struct {
	// DeviceID identifies the daemon; generated when empty.
	DeviceID string

	// APIURL is the backend base URL, e.g. https://backend.example.com.
	APIURL string

	// Host and Port locate the daemon's HTTP API on the local network.
	Host string
	Port int

	// PublicHTTPURL is the externally reachable URL (e.g. an ngrok
	// tunnel) the backend should prefer over the local address.
	PublicHTTPURL string

	// Interval between re-announcements. Zero disables the heartbeat.
	Interval time.Duration
}

// ServerInfo is the reachability block of the registration payload.
type ServerInfo struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	PublicHTTPURL string `json:"public_http_url,omitempty"`
}

// payload is the body POSTed to {APIURL}/api/devices.
type payload struct {
	DeviceID   string     `json:"device_id"`
	ServerInfo ServerInfo `json:"server_info"`
}

// Client registers the daemon with the backend and keeps the registration
// fresh on an interval.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
	log  *logging.Logger
}

// New creates a registration client. Transient backend failures are
// retried with backoff before a registration attempt is reported failed.
func New(cfg Config, log *logging.Logger) *Client {
	if cfg.DeviceID == "" {
		cfg.DeviceID = string(id.NewDeviceID())
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil // zap below, not retryablehttp's own logger

	return &Client{
		cfg:  cfg,
		http: rc,
		log:  log,
	}
}

// DeviceID returns the identifier used toward the backend.
func (c *Client) DeviceID() string {
	return c.cfg.DeviceID
}

// Register announces the daemon once.
func (c *Client) Register(ctx context.Context) error {
	body, err := json.Marshal(payload{
		DeviceID: c.cfg.DeviceID,
		ServerInfo: ServerInfo{
			Host:          c.cfg.Host,
			Port:          c.cfg.Port,
			PublicHTTPURL: c.cfg.PublicHTTPURL,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode registration payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/api/devices", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("backend rejected registration: %s", resp.Status)
	}

	c.log.Info("Registered with backend",
		zap.String("device_id", c.cfg.DeviceID),
		zap.String("api_url", c.cfg.APIURL),
		zap.String("public_http_url", c.cfg.PublicHTTPURL),
	)
	return nil
}

// Run registers immediately and then re-announces every Interval until
// the context is canceled. Errors are logged; the loop keeps going so a
// backend outage never outlives the outage itself.
func (c *Client) Run(ctx context.Context) {
	if err := c.Register(ctx); err != nil {
		c.log.Warn("Initial registration failed", zap.Error(err))
	}

	if c.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Register(ctx); err != nil {
				c.log.Warn("Registration heartbeat failed", zap.Error(err))
			}
		}
	}
}
