package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Meter         MeterConfig     `yaml:"meter"`
	API           APIConfig       `yaml:"api,omitempty"`
	Intervals     IntervalsConfig `yaml:"intervals,omitempty"`
	SnapshotFile  string          `yaml:"snapshot_file,omitempty"` // fallback: meter_data.json
	MQTT          MQTTConfig      `yaml:"mqtt,omitempty"`
	HomeAssistant HAConfig        `yaml:"home_assistant,omitempty"`
	LogFile       string          `yaml:"log_file,omitempty"`
}

// MeterConfig describes the prepaid meter page to scrape
type MeterConfig struct {
	URL             string `yaml:"url"`
	ID              string `yaml:"id,omitempty"`
	UserAgent       string `yaml:"user_agent,omitempty"`
	BrowserFallback bool   `yaml:"browser_fallback,omitempty"` // render with chromedp when blocked
}

// APIConfig holds the HTTP server and remote data source settings
type APIConfig struct {
	Listen  string `yaml:"listen,omitempty"`   // e.g., ":8080"
	BaseURL string `yaml:"base_url,omitempty"` // remote backend for the resolver, e.g., "http://localhost:8080"
}

// IntervalsConfig holds task periods
type IntervalsConfig struct {
	Scrape       time.Duration `yaml:"scrape,omitempty"`
	Tick         time.Duration `yaml:"tick,omitempty"`
	Clock        time.Duration `yaml:"clock,omitempty"`
	Stats        time.Duration `yaml:"stats,omitempty"`
	ChartRefresh time.Duration `yaml:"chart_refresh,omitempty"`
	FlapCheck    time.Duration `yaml:"flap_check,omitempty"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://homeassistant.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.meter_remaining_balance"
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// DefaultUserAgent is the WeChat mobile browser the meter page expects
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 MicroMessenger/8.0.0"

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// GetScrapeInterval returns how often the meter page is polled (default 2m)
func (c *Config) GetScrapeInterval() time.Duration {
	return orDefault(c.Intervals.Scrape, 2*time.Minute)
}

// GetTickInterval returns the simulator tick period (default 2s)
func (c *Config) GetTickInterval() time.Duration {
	return orDefault(c.Intervals.Tick, 2*time.Second)
}

// GetClockInterval returns the clock refresh period (default 1s)
func (c *Config) GetClockInterval() time.Duration {
	return orDefault(c.Intervals.Clock, time.Second)
}

// GetStatsInterval returns the daily stats refresh period (default 60s)
func (c *Config) GetStatsInterval() time.Duration {
	return orDefault(c.Intervals.Stats, time.Minute)
}

// GetChartRefreshInterval returns the hourly chart refresh period (default 30s)
func (c *Config) GetChartRefreshInterval() time.Duration {
	return orDefault(c.Intervals.ChartRefresh, 30*time.Second)
}

// GetFlapCheckInterval returns the connectivity check period (default 10s)
func (c *Config) GetFlapCheckInterval() time.Duration {
	return orDefault(c.Intervals.FlapCheck, 10*time.Second)
}

// GetListen returns the HTTP listen address
func (c *Config) GetListen() string {
	if c.API.Listen == "" {
		return ":8080"
	}
	return c.API.Listen
}

// GetBaseURL returns the remote backend URL, falling back to the local listener
func (c *Config) GetBaseURL() string {
	if c.API.BaseURL != "" {
		return c.API.BaseURL
	}
	listen := c.GetListen()
	if listen[0] == ':' {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

// GetSnapshotFile returns the path of the static snapshot document
func (c *Config) GetSnapshotFile() string {
	if c.SnapshotFile == "" {
		return "meter_data.json"
	}
	return c.SnapshotFile
}

// GetUserAgent returns the configured user agent or the WeChat default
func (c *Config) GetUserAgent() string {
	if c.Meter.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.Meter.UserAgent
}

// GetTopicPrefix returns the MQTT topic prefix
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "meterwatch"
	}
	return c.MQTT.TopicPrefix
}
