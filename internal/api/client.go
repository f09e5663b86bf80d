// Package api handles remote server communication: heartbeat reporting and
// identity management via a config.json file.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultInterval is used when the config does not set one.
const DefaultInterval = 60 * time.Second

// Config is the config.json identity structure.
type Config struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Interval int    `json:"heartbeat_interval_sec"`
}

// PlayerStatus is what the player is doing at heartbeat time.
type PlayerStatus struct {
	Items    int    `json:"items"`
	Hidden   int    `json:"hidden"`
	Current  string `json:"current,omitempty"`
	Paused   bool   `json:"paused"`
	Loading  bool   `json:"loading"`
	Changing bool   `json:"changing"`
}

// StatusFunc supplies the player status for a heartbeat.
type StatusFunc func(ctx context.Context) (PlayerStatus, error)

// Heartbeat is the payload sent to the remote server on each tick.
type Heartbeat struct {
	ID        string        `json:"id"`
	Key       string        `json:"key"`
	Name      string        `json:"name,omitempty"`
	Timestamp string        `json:"timestamp"`
	Uptime    float64       `json:"uptime_sec"`
	Version   string        `json:"version"`
	Arch      string        `json:"arch"`
	OS        string        `json:"os"`
	Status    *PlayerStatus `json:"status,omitempty"`
}

// Client manages the heartbeat loop and server communication.
type Client struct {
	mu      sync.RWMutex
	cfg     Config
	cfgPath string
	version string
	startAt time.Time
	httpCli *http.Client
	status  StatusFunc
	log     hclog.Logger
}

// NewClient creates an API client by loading the config from the given path.
// If the file does not exist, the client starts in "unregistered" mode
// and skips heartbeats until configured.
func NewClient(cfgPath, version string, status StatusFunc, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Client{
		cfgPath: cfgPath,
		version: version,
		startAt: time.Now(),
		httpCli: &http.Client{Timeout: 10 * time.Second},
		status:  status,
		log:     logger,
	}

	if err := c.loadConfig(); err != nil {
		logger.Warn("config load failed, running unregistered", "error", err)
	}

	return c
}

func (c *Client) loadConfig() error {
	if c.cfgPath == "" {
		return fmt.Errorf("no config path")
	}
	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if cfg.Interval <= 0 {
		cfg.Interval = int(DefaultInterval / time.Second)
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	c.log.Info("loaded config", "id", cfg.ID, "endpoint", cfg.Endpoint, "interval_sec", cfg.Interval)
	return nil
}

// ReloadConfig re-reads the config from disk. Safe to call at runtime.
func (c *Client) ReloadConfig() error {
	return c.loadConfig()
}

// GetConfig returns the current configuration.
func (c *Client) GetConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Registered reports whether the config has an endpoint and id.
func (c *Client) Registered() bool {
	cfg := c.GetConfig()
	return cfg.Endpoint != "" && cfg.ID != ""
}

// Run sends one heartbeat immediately and then one per interval until ctx
// is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.mu.RLock()
	interval := time.Duration(c.cfg.Interval) * time.Second
	c.mu.RUnlock()
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("heartbeat started", "every", interval)

	c.send(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("heartbeat stopped")
			return
		case <-ticker.C:
			c.send(ctx)
		}
	}
}

func (c *Client) send(ctx context.Context) {
	if err := c.SendHeartbeat(ctx); err != nil {
		c.log.Warn("heartbeat failed", "error", err)
	}
}

// SendHeartbeat builds and POSTs one heartbeat to the configured endpoint.
// An unregistered client does nothing.
func (c *Client) SendHeartbeat(ctx context.Context) error {
	cfg := c.GetConfig()
	if cfg.Endpoint == "" || cfg.ID == "" {
		c.log.Debug("heartbeat skipped: missing endpoint or id")
		return nil
	}

	hb := Heartbeat{
		ID:        cfg.ID,
		Key:       cfg.Key,
		Name:      cfg.Name,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(c.startAt).Seconds(),
		Version:   c.version,
		Arch:      runtime.GOARCH,
		OS:        runtime.GOOS,
	}
	if c.status != nil {
		st, err := c.status(ctx)
		if err != nil {
			c.log.Debug("status unavailable", "error", err)
		} else {
			hb.Status = &st
		}
	}

	body, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	url := fmt.Sprintf("%s/heartbeat", cfg.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("post heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat response: %d", resp.StatusCode)
	}

	c.log.Debug("heartbeat sent", "status", resp.StatusCode)
	return nil
}
