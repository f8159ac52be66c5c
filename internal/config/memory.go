package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for minimal containers
)

// MemoryConfig configures the per-user context store.
type MemoryConfig struct {
	// Backend: sqlite (single process) or redis (shared)
	Driver string `yaml:"driver"`

	// sqlite
	DatabasePath string `yaml:"database_path"`

	// redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	RedisTTL      string `yaml:"redis_ttl"` // empty keeps records forever

	// Conversation expiry
	SessionTTL string `yaml:"session_ttl"`

	// Per-file truncation when session files are assembled into a prompt
	FileContextLimit int `yaml:"file_context_limit"`

	// Clock used for the system prompt and stored timestamps
	Timezone      string `yaml:"timezone"`
	TimezoneLabel string `yaml:"timezone_label"`
}

// Location resolves the configured timezone.
func (m MemoryConfig) Location() (*time.Location, error) {
	if m.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid memory.timezone %q: %w", m.Timezone, err)
	}
	return loc, nil
}

// GetRedisTTL returns the record TTL, or zero for none.
func (m MemoryConfig) GetRedisTTL() time.Duration {
	if m.RedisTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(m.RedisTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
