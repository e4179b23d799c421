// Package alert tracks per-symbol, per-direction alert cooldowns.
package alert

import (
	"sync"
	"time"

	"dcaAlertBot/internal/domain"
)

// DefaultCooldown is the default window for both directions.
const DefaultCooldown = 3600 * time.Second

// Config holds the cooldown windows. Zero values select DefaultCooldown.
type Config struct {
	BuyCooldown  time.Duration
	SellCooldown time.Duration
}

type key struct {
	symbol    string
	direction domain.Direction
}

// Gate suppresses repeated alerts of the same direction for the same symbol.
// State lives for the process lifetime only.
type Gate struct {
	cooldowns map[domain.Direction]time.Duration

	mu        sync.Mutex
	lastFired map[key]time.Time
}

// NewGate creates an empty gate.
func NewGate(cfg Config) *Gate {
	if cfg.BuyCooldown <= 0 {
		cfg.BuyCooldown = DefaultCooldown
	}
	if cfg.SellCooldown <= 0 {
		cfg.SellCooldown = DefaultCooldown
	}
	return &Gate{
		cooldowns: map[domain.Direction]time.Duration{
			domain.Buy:  cfg.BuyCooldown,
			domain.Sell: cfg.SellCooldown,
		},
		lastFired: make(map[key]time.Time),
	}
}

// Cooldown returns the window configured for direction.
func (g *Gate) Cooldown(direction domain.Direction) time.Duration {
	if c, ok := g.cooldowns[direction]; ok {
		return c
	}
	return DefaultCooldown
}

// ShouldFire reports whether an alert for (symbol, direction) may be sent at now.
// It is true when nothing was recorded yet, or when the whole seconds elapsed
// since the last record exceed the cooldown. A now before the record counts
// as inside the window.
func (g *Gate) ShouldFire(symbol string, direction domain.Direction, now time.Time) bool {
	g.mu.Lock()
	last, ok := g.lastFired[key{symbol, direction}]
	g.mu.Unlock()
	if !ok {
		return true
	}

	elapsed := int64(now.Sub(last) / time.Second)
	if elapsed < 0 {
		return false
	}
	return elapsed > int64(g.Cooldown(direction)/time.Second)
}

// RecordFired stores now as the last dispatch time for (symbol, direction).
// The stored time never moves backwards.
func (g *Gate) RecordFired(symbol string, direction domain.Direction, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key{symbol, direction}
	if last, ok := g.lastFired[k]; ok && now.Before(last) {
		return
	}
	g.lastFired[k] = now
}

// LastFired returns the last recorded dispatch time, if any.
func (g *Gate) LastFired(symbol string, direction domain.Direction) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastFired[key{symbol, direction}]
	return t, ok
}
