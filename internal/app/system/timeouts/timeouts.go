// internal/app/system/timeouts/timeouts.go

// Package timeouts holds the context deadlines handlers put on database
// work. Every handler pulls from the same five tiers so a slow Mongo
// deployment is tuned in one place instead of per call site.
//
// Tier guide:
//   - Ping: connectivity checks (/health, the startup ping)
//   - Short: single-document reads (account by email, settings fetch)
//   - Medium: paged lists and ordinary writes
//   - Long: multi-collection work (subtree moves, report rollups, CSV export)
//   - Batch: patient roster imports and other bulk upserts
package timeouts

import (
	"os"
	"sync"
	"time"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultBatch  = 60 * time.Second
)

var (
	mu     sync.RWMutex
	ping   = DefaultPing
	short  = DefaultShort
	medium = DefaultMedium
	long   = DefaultLong
	batch  = DefaultBatch
)

// Ping returns the deadline for connectivity checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the deadline for single-document lookups.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Medium returns the deadline for paged lists and ordinary writes.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Long returns the deadline for work spanning several collections.
func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return long
}

// Batch returns the deadline for bulk imports.
func Batch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return batch
}

// Config carries overrides for Configure. Zero values keep the current
// setting.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Batch  time.Duration
}

// Configure applies the non-zero values in cfg. Call during startup,
// before handlers run.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	for _, o := range []struct {
		val time.Duration
		dst *time.Duration
	}{
		{cfg.Ping, &ping},
		{cfg.Short, &short},
		{cfg.Medium, &medium},
		{cfg.Long, &long},
		{cfg.Batch, &batch},
	} {
		if o.val > 0 {
			*o.dst = o.val
		}
	}
}

// ConfigureFromEnv applies IVRHUB_TIMEOUT_* overrides (PING, SHORT,
// MEDIUM, LONG, BATCH), each a Go duration string like "500ms" or "2m".
// Unset or unparsable variables keep the current value. Returns how many
// tiers were overridden.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for _, o := range []struct {
		env string
		dst *time.Duration
	}{
		{"IVRHUB_TIMEOUT_PING", &ping},
		{"IVRHUB_TIMEOUT_SHORT", &short},
		{"IVRHUB_TIMEOUT_MEDIUM", &medium},
		{"IVRHUB_TIMEOUT_LONG", &long},
		{"IVRHUB_TIMEOUT_BATCH", &batch},
	} {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*o.dst = d
			n++
		}
	}
	return n
}

// Reset restores the defaults. Tests use it to undo Configure.
func Reset() {
	Configure(Config{DefaultPing, DefaultShort, DefaultMedium, DefaultLong, DefaultBatch})
}
