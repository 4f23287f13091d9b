// Package config loads the server configuration from an optional YAML file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMonitorPort   = 11105
	DefaultPlayerPort    = 11106
	DefaultSize          = 100.0
	DefaultFrames        = 20
	DefaultIterations    = 10
	DefaultMaxConnsPerIP = 5
	DefaultMaxTotalConns = 1000
	DefaultSendBuffer    = 256
	DefaultRadarRange    = 30.0
)

// Config is the full server configuration. Zero values are filled in by
// ApplyDefaults.
type Config struct {
	PlayerPort  int    `yaml:"player_port"`
	MonitorPort int    `yaml:"monitor_port"`
	HTTPAddr    string `yaml:"http_addr"`

	XSize              float64 `yaml:"xsize"`
	YSize              float64 `yaml:"ysize"`
	Frames             int     `yaml:"frames"`
	VelocityIterations int     `yaml:"velocity_iterations"`
	PositionIterations int     `yaml:"position_iterations"`
	RadarRange         float64 `yaml:"radar_range"`
	WrapStaticBodies   *bool   `yaml:"wrap_static_bodies"`
	Seed               int64   `yaml:"seed"`
	MapFile            string  `yaml:"map_file"`

	Database  string `yaml:"database"`
	Recording string `yaml:"recording"`

	MonitorPasswordHash string `yaml:"monitor_password_hash"`
	JWTSecret           string `yaml:"jwt_secret"`

	LogLevel      string `yaml:"log_level"`
	MaxConnsPerIP int    `yaml:"max_conns_per_ip"`
	MaxTotalConns int    `yaml:"max_total_conns"`
	SendBuffer    int    `yaml:"send_buffer"`
}

// Load reads path, or SPACECRAFT_CONFIG when path is empty. With neither
// set it returns a default config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SPACECRAFT_CONFIG")
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields: config value, then environment, then
// the built-in default.
func (c *Config) ApplyDefaults() {
	c.PlayerPort = portWithEnvFallback(c.PlayerPort, "SPACECRAFT_PLAYER_PORT", DefaultPlayerPort)
	c.MonitorPort = portWithEnvFallback(c.MonitorPort, "SPACECRAFT_MONITOR_PORT", DefaultMonitorPort)

	if c.XSize == 0 {
		c.XSize = DefaultSize
	}
	if c.YSize == 0 {
		c.YSize = DefaultSize
	}
	if c.Frames == 0 {
		c.Frames = DefaultFrames
	}
	if c.VelocityIterations == 0 {
		c.VelocityIterations = DefaultIterations
	}
	if c.PositionIterations == 0 {
		c.PositionIterations = DefaultIterations
	}
	if c.RadarRange == 0 {
		c.RadarRange = DefaultRadarRange
	}
	if c.WrapStaticBodies == nil {
		wrap := true
		c.WrapStaticBodies = &wrap
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxConnsPerIP == 0 {
		c.MaxConnsPerIP = DefaultMaxConnsPerIP
	}
	if c.MaxTotalConns == 0 {
		c.MaxTotalConns = DefaultMaxTotalConns
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = DefaultSendBuffer
	}
}

// portWithEnvFallback resolves a port: config -> env -> default.
func portWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if v := os.Getenv(envVar); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.XSize <= 0 || c.YSize <= 0 {
		return errors.Errorf("world size must be positive, got %vx%v", c.XSize, c.YSize)
	}
	if c.Frames <= 0 {
		return errors.Errorf("frames must be positive, got %d", c.Frames)
	}
	if c.VelocityIterations <= 0 || c.PositionIterations <= 0 {
		return errors.New("solver iterations must be positive")
	}
	if c.RadarRange <= 0 {
		return errors.Errorf("radar_range must be positive, got %v", c.RadarRange)
	}
	for name, port := range map[string]int{"player_port": c.PlayerPort, "monitor_port": c.MonitorPort} {
		if port <= 0 || port > 65535 {
			return errors.Errorf("%s out of range: %d", name, port)
		}
	}
	if c.PlayerPort == c.MonitorPort {
		return errors.Errorf("player and monitor ports collide on %d", c.PlayerPort)
	}
	if c.MaxConnsPerIP < 0 || c.MaxTotalConns < 0 || c.SendBuffer < 0 {
		return errors.New("connection limits must not be negative")
	}
	return nil
}

// TickPeriod is the wall-clock time between ticks.
func (c *Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.Frames)
}

// WrapStatic reports whether static bodies take part in wraparound.
func (c *Config) WrapStatic() bool {
	return c.WrapStaticBodies == nil || *c.WrapStaticBodies
}
