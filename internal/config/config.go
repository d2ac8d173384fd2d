package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	BackendAuto = "auto"
	BackendHost = "host"
)

const (
	defaultMemoryBytes    int64 = 1 << 30
	defaultMaxCachedBytes int64 = 256 << 20
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"logger"`
	Device struct {
		Backend      string `yaml:"backend"`
		MemoryBytes  int64  `yaml:"memoryBytes"`
		ComputeUnits int    `yaml:"computeUnits"`
	} `yaml:"device"`
	Buffers struct {
		Memoize        bool  `yaml:"memoize"`
		MaxCachedBytes int64 `yaml:"maxCachedBytes"`
	} `yaml:"buffers"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.Buffers.Memoize = true
	cfg.applyDefaults()
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = "info"
	}
	if c.Device.Backend == "" {
		c.Device.Backend = BackendAuto
	}
	if c.Device.MemoryBytes == 0 {
		c.Device.MemoryBytes = defaultMemoryBytes
	}
	if c.Buffers.MaxCachedBytes == 0 {
		c.Buffers.MaxCachedBytes = defaultMaxCachedBytes
	}
}

// Validate rejects settings the runtime cannot honour.
func (c *Config) Validate() error {
	switch c.Device.Backend {
	case BackendAuto, BackendHost:
	default:
		return fmt.Errorf("unknown device backend %q (expected %s or %s)", c.Device.Backend, BackendAuto, BackendHost)
	}
	if c.Device.MemoryBytes < 0 {
		return fmt.Errorf("device.memoryBytes must not be negative, got %d", c.Device.MemoryBytes)
	}
	if c.Device.ComputeUnits < 0 {
		return fmt.Errorf("device.computeUnits must not be negative, got %d", c.Device.ComputeUnits)
	}
	if c.Buffers.MaxCachedBytes < 0 {
		return fmt.Errorf("buffers.maxCachedBytes must not be negative, got %d", c.Buffers.MaxCachedBytes)
	}
	return nil
}
