package zstream

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied by LoadPoolConfig.
const (
	EnvBufferCapacityBytes = "ZSTREAM_BUFFER_CAPACITY_BYTES"
	EnvMaxPooledBuffers    = "ZSTREAM_MAX_POOLED_BUFFERS"
)

const (
	defaultBufferCapacity   = block4k
	defaultMaxPooledBuffers = 1024
)

// PoolConfig sizes a BufferPool.
type PoolConfig struct {
	// BufferCapacityBytes is the size of each pooled region.
	BufferCapacityBytes int `yaml:"bufferCapacityBytes"`
	// MaxPooledBuffers caps the arena; borrows beyond it are ephemeral.
	MaxPooledBuffers int `yaml:"maxPooledBuffers"`
}

// DefaultPoolConfig returns the sizing used by DefaultBufferPool.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		BufferCapacityBytes: defaultBufferCapacity,
		MaxPooledBuffers:    defaultMaxPooledBuffers,
	}
}

// Validate checks the sizing.
func (c PoolConfig) Validate() error {
	if c.BufferCapacityBytes <= 0 || c.BufferCapacityBytes > mallocMax {
		return fmt.Errorf("%w: bufferCapacityBytes must be in (0, %d], got %d",
			ErrInvalidArgument, mallocMax, c.BufferCapacityBytes)
	}
	if c.MaxPooledBuffers < 0 {
		return fmt.Errorf("%w: maxPooledBuffers must not be negative, got %d",
			ErrInvalidArgument, c.MaxPooledBuffers)
	}
	return nil
}

// ParsePoolConfig decodes YAML on top of the defaults. Keys absent from data
// keep their default value.
func ParsePoolConfig(data []byte) (PoolConfig, error) {
	cfg := DefaultPoolConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse pool config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadPoolConfig reads a YAML file (when path is not empty) and then applies
// environment overrides. Priority: defaults, file, environment.
func LoadPoolConfig(path string) (PoolConfig, error) {
	cfg := DefaultPoolConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read pool config: %w", err)
		}
		if cfg, err = ParsePoolConfig(data); err != nil {
			return cfg, err
		}
	}
	if err := applyPoolEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyPoolEnv(cfg *PoolConfig) error {
	overrides := []struct {
		key string
		dst *int
	}{
		{EnvBufferCapacityBytes, &cfg.BufferCapacityBytes},
		{EnvMaxPooledBuffers, &cfg.MaxPooledBuffers},
	}
	for _, o := range overrides {
		v, ok := os.LookupEnv(o.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidArgument, o.key, v, err)
		}
		*o.dst = n
	}
	return nil
}
