package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zde37/chordring/pkg/hash"
)

// Config holds all configuration for a Chord node
type Config struct {
	// Node identification. NodeID overrides the id derived from Host:Port
	// (decimal or 0x-prefixed hex).
	NodeID string `yaml:"node_id"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	// HTTP admin API, 0 disables it
	HTTPPort int `yaml:"http_port"`

	// Bootstrap peer (host:port). Empty means found a new ring.
	Bootstrap    string `yaml:"bootstrap"`
	JoinAttempts uint   `yaml:"join_attempts"`

	// Chord parameters
	M                        int           `yaml:"m"`                          // Identifier space size in bits
	SuccessorListSize        int           `yaml:"successor_list_size"`        // r
	StabilizeInterval        time.Duration `yaml:"stabilize_interval"`         // successor verification
	FixFingersInterval       time.Duration `yaml:"fix_fingers_interval"`       // one finger per tick
	ReconcileInterval        time.Duration `yaml:"reconcile_interval"`         // successor list repair
	CheckPredecessorInterval time.Duration `yaml:"check_predecessor_interval"` // predecessor liveness
	RPCTimeout               time.Duration `yaml:"rpc_timeout"`
	MaxHops                  int           `yaml:"max_hops"` // 0 means M

	// Logging
	LogLevel  string `yaml:"log_level"`  // trace, debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogFile   string `yaml:"log_file"`   // rotated file output when set
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:                     "127.0.0.1",
		Port:                     8440,
		HTTPPort:                 8080,
		JoinAttempts:             1,
		M:                        hash.DefaultBits,
		SuccessorListSize:        3,
		StabilizeInterval:        1 * time.Second,
		FixFingersInterval:       500 * time.Millisecond,
		ReconcileInterval:        2 * time.Second,
		CheckPredecessorInterval: 2 * time.Second,
		RPCTimeout:               5 * time.Second,
		LogLevel:                 "info",
		LogFormat:                "console",
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.M <= 0 || c.M > hash.MaxBits {
		return fmt.Errorf("M must be between 1 and %d, got %d", hash.MaxBits, c.M)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SuccessorListSize < 1 {
		return fmt.Errorf("successor list size must be at least 1, got %d", c.SuccessorListSize)
	}
	if c.MaxHops < 0 {
		return fmt.Errorf("max hops cannot be negative, got %d", c.MaxHops)
	}
	for name, d := range map[string]time.Duration{
		"stabilize interval":         c.StabilizeInterval,
		"fix fingers interval":       c.FixFingersInterval,
		"reconcile interval":         c.ReconcileInterval,
		"check predecessor interval": c.CheckPredecessorInterval,
		"rpc timeout":                c.RPCTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Bootstrap != "" {
		if _, _, err := net.SplitHostPort(c.Bootstrap); err != nil {
			return fmt.Errorf("invalid bootstrap address %q: %w", c.Bootstrap, err)
		}
	}
	if _, _, err := c.ExplicitID(); err != nil {
		return err
	}
	return nil
}

// Space returns the identifier space described by M.
func (c *Config) Space() (hash.Space, error) {
	return hash.NewSpace(c.M)
}

// HopLimit returns the routing hop cap.
func (c *Config) HopLimit() int {
	if c.MaxHops > 0 {
		return c.MaxHops
	}
	return c.M
}

// ExplicitID parses NodeID. ok is false when no explicit id is configured.
func (c *Config) ExplicitID() (id hash.ID, ok bool, err error) {
	if c.NodeID == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(c.NodeID, 0, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid node id %q: %w", c.NodeID, err)
	}
	if c.M < hash.MaxBits && v>>uint(c.M) != 0 {
		return 0, false, fmt.Errorf("node id %q does not fit in %d bits", c.NodeID, c.M)
	}
	return hash.ID(v), true, nil
}

// Address returns the gRPC listen address in "host:port" format.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
