package pipeline

import "time"

// StartReaper launches the stale-driver sweep loop when the reaper is
// enabled. Close stops it.
func (p *Pipeline) StartReaper() {
	if !p.reaper.Enabled() {
		return
	}
	p.mu.Lock()
	if p.closed || p.reaperStop != nil {
		p.mu.Unlock()
		return
	}
	p.reaperStop = make(chan struct{})
	p.reaperDone = make(chan struct{})
	stop, done := p.reaperStop, p.reaperDone
	p.mu.Unlock()

	go p.reapLoop(stop, done)
	p.logger.Info("reaper started",
		"offline_after", p.reaper.OfflineAfter,
		"evict_after", p.reaper.EvictAfter,
		"sweep_interval", p.reaper.Interval())
}

func (p *Pipeline) stopReaper() {
	p.mu.Lock()
	stop, done := p.reaperStop, p.reaperDone
	p.reaperStop, p.reaperDone = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (p *Pipeline) reapLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.reaper.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Sweep(p.now())
		}
	}
}
