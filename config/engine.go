package config

import (
	"fmt"
	"time"
)

// EngineConfig drives the periodic evaluation loop.
type EngineConfig struct {
	// TickIntervalSeconds is the period between evaluations in `run` mode.
	TickIntervalSeconds int `json:"tick_interval_seconds"`
	// DryRun builds commands without contacting any controller.
	DryRun bool `json:"dry_run"`
	// Timezone is used for rooms without a valid timezone. When empty the
	// location of the evaluation instant applies.
	Timezone    string `json:"timezone"`
	Parallelism int    `json:"parallelism"`
}

func (c *EngineConfig) SetDefaults() {
	if c.TickIntervalSeconds == 0 {
		c.TickIntervalSeconds = 60
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
}

func (c EngineConfig) Validate() error {
	if c.TickIntervalSeconds <= 0 {
		return fmt.Errorf("tick_interval_seconds must be positive")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

// TickInterval returns the tick period.
func (c EngineConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// Location resolves Timezone. It returns nil when no zone is configured.
func (c EngineConfig) Location() *time.Location {
	if c.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// RateLimitConfig bounds commands per controller.
type RateLimitConfig struct {
	MaxPerWindow           int `json:"max_per_window"`
	WindowSeconds          int `json:"window_seconds"`
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds"`
}

func (c *RateLimitConfig) SetDefaults() {
	if c.MaxPerWindow == 0 {
		c.MaxPerWindow = 10
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
	if c.CleanupIntervalSeconds == 0 {
		c.CleanupIntervalSeconds = 300
	}
}

func (c RateLimitConfig) Validate() error {
	if c.MaxPerWindow <= 0 || c.WindowSeconds <= 0 || c.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("max_per_window, window_seconds and cleanup_interval_seconds must be positive")
	}
	return nil
}

// RetryConfig controls the executor retry loop.
type RetryConfig struct {
	MaxAttempts        int `json:"max_attempts"`
	BackoffBaseSeconds int `json:"backoff_base_seconds"`
}

func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBaseSeconds == 0 {
		c.BackoffBaseSeconds = 2
	}
}

func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.BackoffBaseSeconds < 0 {
		return fmt.Errorf("backoff_base_seconds must not be negative")
	}
	return nil
}

// StoreConfig locates the schedule database.
type StoreConfig struct {
	Path string `json:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "enviroflow.db"
	}
}

func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
