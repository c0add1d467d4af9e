// Package timeouts provides centralized timeout values for handler and
// worker operations.
//
// Handlers derive their context with context.WithTimeout from one of these
// values so every engine call is bounded the same way. Values can be
// changed at startup with Configure; otherwise the defaults apply.
//
// Guidelines:
//   - Ping: health checks and store connectivity
//   - Read: capacity, lock status, listings
//   - Write: any mutating engine operation (assign, confirm, move, unlock...)
//   - Sweep: one pass of a background worker
package timeouts

import (
	"sync"
	"time"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing  = 2 * time.Second
	DefaultRead  = 5 * time.Second
	DefaultWrite = 10 * time.Second
	DefaultSweep = 30 * time.Second
)

var mu sync.RWMutex

var (
	ping  = DefaultPing
	read  = DefaultRead
	write = DefaultWrite
	sweep = DefaultSweep
)

func get(v *time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return *v
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(&ping) }

// Read returns the timeout for read-only engine calls.
func Read() time.Duration { return get(&read) }

// Write returns the timeout for mutating engine calls. Writes may retry on
// contention, so this is the longest request-scoped value.
func Write() time.Duration { return get(&write) }

// Sweep returns the timeout for one background worker pass.
func Sweep() time.Duration { return get(&sweep) }

// Config holds timeout configuration values.
// Zero values are ignored (current values are kept).
type Config struct {
	Ping  time.Duration
	Read  time.Duration
	Write time.Duration
	Sweep time.Duration
}

// Configure sets custom timeout values. Call during startup before handlers
// are registered.
//
// Example:
//
//	timeouts.Configure(timeouts.Config{Write: 20 * time.Second})
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Read > 0 {
		read = cfg.Read
	}
	if cfg.Write > 0 {
		write = cfg.Write
	}
	if cfg.Sweep > 0 {
		sweep = cfg.Sweep
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	read = DefaultRead
	write = DefaultWrite
	sweep = DefaultSweep
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Read: read, Write: write, Sweep: sweep}
}
