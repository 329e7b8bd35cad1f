// Package config loads the gateway daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/CreatorDev/creator-wifire-app-sub001/connmgr"
	"github.com/CreatorDev/creator-wifire-app-sub001/scheduler"
	"github.com/CreatorDev/creator-wifire-app-sub001/threadpool"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Connections ConnectionsConfig `yaml:"connections"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	ThreadPool  ThreadPoolConfig  `yaml:"threadpool"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	Endpoints   []EndpointConfig  `yaml:"endpoints"`
}

type ConnectionsConfig struct {
	MaxConnections    int           `yaml:"max_connections"`
	ReceiveBufferSize int           `yaml:"receive_buffer_size"`
	OverflowIncrement int           `yaml:"overflow_increment"`
	MaxOverflow       int           `yaml:"max_overflow"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	SendRetryInterval time.Duration `yaml:"send_retry_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReadPollTimeout   time.Duration `yaml:"read_poll_timeout"`
	DNSAttempts       int           `yaml:"dns_attempts"`
}

type SchedulerConfig struct {
	MaxSleep time.Duration `yaml:"max_sleep"`
}

type ThreadPoolConfig struct {
	Min         int           `yaml:"min"`
	Max         int           `yaml:"max"`
	Priority    int           `yaml:"priority"`
	StackSize   int           `yaml:"stack_size"`
	QueueSize   int           `yaml:"queue_size"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// EndpointConfig is a server the daemon polls with a request every Interval.
type EndpointConfig struct {
	Name            string               `yaml:"name"`
	Host            string               `yaml:"host"`
	Port            uint16               `yaml:"port"`
	TLS             bool                 `yaml:"tls"`
	KeepAlive       bool                 `yaml:"keep_alive"`
	Trust           transport.TrustFiles `yaml:"trust"`
	Method          string               `yaml:"method"`
	Path            string               `yaml:"path"`
	Interval        time.Duration        `yaml:"interval"`
	ResponseTimeout time.Duration        `yaml:"response_timeout"`
}

func Default() *Config {
	cm := connmgr.DefaultConfig()
	return &Config{
		Connections: ConnectionsConfig{
			MaxConnections:    cm.MaxConnections,
			ReceiveBufferSize: cm.ReceiveBufferSize,
			OverflowIncrement: cm.OverflowIncrement,
			MaxOverflow:       cm.MaxOverflow,
			ConnectTimeout:    cm.ConnectTimeout,
			HandshakeTimeout:  cm.HandshakeTimeout,
			SendTimeout:       cm.SendTimeout,
			SendRetryInterval: cm.SendRetryInterval,
			PollInterval:      cm.PollInterval,
			ReadPollTimeout:   cm.ReadPollTimeout,
			DNSAttempts:       cm.DNSAttempts,
		},
		Scheduler: SchedulerConfig{MaxSleep: scheduler.DefaultMaxSleep},
		ThreadPool: ThreadPoolConfig{
			Min:         1,
			Max:         4,
			QueueSize:   threadpool.DefaultQueueSize,
			IdleTimeout: threadpool.DefaultIdleTimeout,
		},
		Metrics: MetricsConfig{Listen: ":9100", Path: "/metrics"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path from fs over the defaults and validates the result.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for i := range cfg.Endpoints {
		cfg.Endpoints[i].setDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *EndpointConfig) setDefaults() {
	if e.Method == "" {
		e.Method = "GET"
	}
	if e.Path == "" {
		e.Path = "/"
	}
	if e.Port == 0 {
		e.Port = 80
		if e.TLS {
			e.Port = 443
		}
	}
	if e.Name == "" {
		e.Name = transport.HostAddr(e.Host, e.Port)
	}
}

func (c *Config) Validate() error {
	var errs []error

	cc := c.Connections
	if cc.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("connections.max_connections must be at least 1, got %d", cc.MaxConnections))
	}
	if cc.ReceiveBufferSize < 64 {
		errs = append(errs, fmt.Errorf("connections.receive_buffer_size must be at least 64, got %d", cc.ReceiveBufferSize))
	}
	if cc.MaxOverflow < cc.OverflowIncrement {
		errs = append(errs, fmt.Errorf("connections.max_overflow %d is below overflow_increment %d", cc.MaxOverflow, cc.OverflowIncrement))
	}
	if c.ThreadPool.Max != 0 && c.ThreadPool.Max < c.ThreadPool.Min {
		errs = append(errs, fmt.Errorf("threadpool.max %d is below min %d", c.ThreadPool.Max, c.ThreadPool.Min))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if len(c.Endpoints) > cc.MaxConnections {
		errs = append(errs, fmt.Errorf("%d endpoints configured but only %d connections allowed", len(c.Endpoints), cc.MaxConnections))
	}
	for i, e := range c.Endpoints {
		if e.Host == "" {
			errs = append(errs, fmt.Errorf("endpoints[%d].host is required", i))
		}
		if e.Interval < 0 || e.ResponseTimeout < 0 {
			errs = append(errs, fmt.Errorf("endpoints[%d] durations must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c *Config) ConnMgr() connmgr.Config {
	cc := c.Connections
	cfg := connmgr.DefaultConfig()
	cfg.MaxConnections = cc.MaxConnections
	cfg.ReceiveBufferSize = cc.ReceiveBufferSize
	cfg.OverflowIncrement = cc.OverflowIncrement
	cfg.MaxOverflow = cc.MaxOverflow
	cfg.ConnectTimeout = cc.ConnectTimeout
	cfg.HandshakeTimeout = cc.HandshakeTimeout
	cfg.SendTimeout = cc.SendTimeout
	cfg.SendRetryInterval = cc.SendRetryInterval
	cfg.PollInterval = cc.PollInterval
	cfg.ReadPollTimeout = cc.ReadPollTimeout
	cfg.DNSAttempts = cc.DNSAttempts
	return cfg
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{MaxSleep: c.Scheduler.MaxSleep}
}

func (c *Config) ThreadPoolConfig() threadpool.Config {
	tp := c.ThreadPool
	return threadpool.Config{
		Min:         tp.Min,
		Max:         tp.Max,
		Priority:    tp.Priority,
		StackSize:   tp.StackSize,
		QueueSize:   tp.QueueSize,
		IdleTimeout: tp.IdleTimeout,
	}
}
