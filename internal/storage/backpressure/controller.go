// Package backpressure watches the tail ring and classifies how far behind
// the sealer is. The manager consults the level on every append: warning
// pauses compaction, critical forces an early seal, emergency sheds
// incoming snapshots rather than risk the ring overflowing.
package backpressure

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpgtop/rpgtop/internal/storage/buffer"
	"github.com/rpgtop/rpgtop/internal/storage/config"
)

// Level represents the current backpressure level.
type Level int

const (
	// LevelNormal - system operating normally.
	LevelNormal Level = iota

	// LevelWarning - elevated load, pause non-critical operations.
	LevelWarning

	// LevelCritical - high load, seal early to drain the ring.
	LevelCritical

	// LevelEmergency - overload, drop snapshots to protect the host.
	LevelEmergency
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Controller manages backpressure based on tail ring utilization.
//
// Escalation is immediate: a ring past a threshold raises the level on the
// next Check. De-escalation is damped twice, by the hysteresis band below
// each threshold and by a cooldown since the last level change, so a ring
// oscillating around a threshold does not flap the level.
type Controller struct {
	mu sync.RWMutex

	cfg  config.BackpressureConfig
	ring *buffer.Ring

	level      atomic.Int32
	lastLevel  Level
	lastChange time.Time

	stats statsCounters

	onLevelChange func(old, new Level)
}

type statsCounters struct {
	levelChanges   int64
	warningCount   int64
	criticalCount  int64
	emergencyCount int64
	dropped        int64
}

// New creates a backpressure controller over the given ring.
func New(cfg config.BackpressureConfig, ring *buffer.Ring) *Controller {
	return &Controller{
		cfg:        cfg,
		ring:       ring,
		lastChange: time.Now(),
	}
}

// SetOnLevelChange sets the callback for level changes. The callback runs
// under the controller lock; keep it short.
func (c *Controller) SetOnLevelChange(fn func(old, new Level)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLevelChange = fn
}

// Check evaluates ring usage and updates the level. The manager calls this
// on every append.
func (c *Controller) Check() Level {
	if !c.cfg.Enabled {
		return LevelNormal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	usage := c.ring.UsageRatio()
	newLevel := c.determineLevel(usage)
	if newLevel == c.lastLevel {
		return newLevel
	}

	now := time.Now()
	if newLevel < c.lastLevel && now.Sub(c.lastChange) < c.cfg.Recovery.Cooldown {
		// Hold the higher level until the cooldown passes. Escalation
		// is never held.
		return c.lastLevel
	}

	c.setLevel(newLevel, now)
	return newLevel
}

// determineLevel maps usage to a level, applying hysteresis on the way
// down: a level is only left once usage falls a full hysteresis band below
// the threshold that entered it, one level per check.
func (c *Controller) determineLevel(usage float64) Level {
	thresholds := c.cfg.Thresholds
	hysteresis := c.cfg.Recovery.Hysteresis

	if usage >= thresholds.Emergency {
		return LevelEmergency
	}
	if usage >= thresholds.Critical {
		return LevelCritical
	}
	if usage >= thresholds.Warning {
		return LevelWarning
	}

	switch c.lastLevel {
	case LevelEmergency:
		if usage < thresholds.Emergency-hysteresis {
			return LevelCritical
		}
		return LevelEmergency
	case LevelCritical:
		if usage < thresholds.Critical-hysteresis {
			return LevelWarning
		}
		return LevelCritical
	case LevelWarning:
		if usage < thresholds.Warning-hysteresis {
			return LevelNormal
		}
		return LevelWarning
	default:
		return LevelNormal
	}
}

// setLevel updates the current level and fires the callback. Caller holds
// the lock.
func (c *Controller) setLevel(newLevel Level, now time.Time) {
	oldLevel := c.lastLevel
	c.lastLevel = newLevel
	c.lastChange = now
	c.level.Store(int32(newLevel))
	c.stats.levelChanges++

	switch newLevel {
	case LevelWarning:
		c.stats.warningCount++
	case LevelCritical:
		c.stats.criticalCount++
	case LevelEmergency:
		c.stats.emergencyCount++
	}

	if c.onLevelChange != nil {
		c.onLevelChange(oldLevel, newLevel)
	}
}

// CurrentLevel returns the current backpressure level without re-evaluating
// ring usage.
func (c *Controller) CurrentLevel() Level {
	return Level(c.level.Load())
}

// ShouldDrop returns true if incoming snapshots should be dropped.
func (c *Controller) ShouldDrop() bool {
	return c.CurrentLevel() == LevelEmergency
}

// ShouldForceSeal returns true if the manager should seal ahead of
// schedule to drain the ring.
func (c *Controller) ShouldForceSeal() bool {
	return c.CurrentLevel() >= LevelCritical
}

// ShouldPauseCompaction returns true if compaction should be paused.
func (c *Controller) ShouldPauseCompaction() bool {
	return c.CurrentLevel() >= LevelWarning
}

// RecordDrop records that a snapshot was dropped.
func (c *Controller) RecordDrop() {
	c.mu.Lock()
	c.stats.dropped++
	c.mu.Unlock()
}

// IsEnabled returns whether backpressure is enabled.
func (c *Controller) IsEnabled() bool {
	return c.cfg.Enabled
}

// Stats holds controller statistics.
type Stats struct {
	CurrentLevel     Level
	LevelChanges     int64
	WarningCount     int64
	CriticalCount    int64
	EmergencyCount   int64
	SnapshotsDropped int64
	RingUsage        float64
}

// Stats returns current statistics.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		CurrentLevel:     c.CurrentLevel(),
		LevelChanges:     c.stats.levelChanges,
		WarningCount:     c.stats.warningCount,
		CriticalCount:    c.stats.criticalCount,
		EmergencyCount:   c.stats.emergencyCount,
		SnapshotsDropped: c.stats.dropped,
		RingUsage:        c.ring.UsageRatio(),
	}
}
