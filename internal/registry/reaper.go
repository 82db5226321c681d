package registry

import "time"

// ReaperConfig configures stale-driver demotion and eviction. A zero
// OfflineAfter disables the reaper entirely, so drivers that stop
// reporting stay at their last known position indefinitely.
type ReaperConfig struct {
	// OfflineAfter is how long a driver may go without an accepted event
	// before it is marked offline.
	OfflineAfter time.Duration

	// EvictAfter is how long a driver stays offline before it is removed
	// from the registry. Zero keeps offline drivers forever.
	EvictAfter time.Duration

	// SweepInterval is how often the owning pipeline calls Sweep.
	// Default: 30 seconds.
	SweepInterval time.Duration
}

// Enabled reports whether the reaper should run at all.
func (c ReaperConfig) Enabled() bool {
	return c.OfflineAfter > 0
}

// Interval returns SweepInterval or its default.
func (c ReaperConfig) Interval() time.Duration {
	if c.SweepInterval > 0 {
		return c.SweepInterval
	}
	return 30 * time.Second
}

// SweepResult lists the drivers a sweep touched.
type SweepResult struct {
	Offline []string
	Evicted []string
}

// Changed reports whether the sweep mutated the registry.
func (s SweepResult) Changed() bool {
	return len(s.Offline) > 0 || len(s.Evicted) > 0
}

// Sweep marks idle drivers offline and evicts drivers that have been
// offline longer than EvictAfter. Idleness is measured against lastUpdated.
func (r *Registry) Sweep(now time.Time, cfg ReaperConfig) SweepResult {
	var res SweepResult
	if !cfg.Enabled() {
		return res
	}

	for _, id := range append([]string(nil), r.order...) {
		d := r.drivers[id]
		idle := now.Sub(d.LastUpdated)
		switch {
		case d.Offline:
			if cfg.EvictAfter > 0 && idle > cfg.OfflineAfter+cfg.EvictAfter {
				r.remove(id)
				res.Evicted = append(res.Evicted, id)
			}
		case idle > cfg.OfflineAfter:
			d.Offline = true
			res.Offline = append(res.Offline, id)
		}
	}

	if res.Changed() {
		r.dirty = true
	}
	return res
}
