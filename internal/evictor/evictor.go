// evictor.go — Evictor: the periodic two-phase memory sweeper. Grounded
// on the teacher's internal/ttl package
// intent (periodic reclaim driven by a ticker and now()-relative cutoffs)
// — its implementation file wasn't present in this retrieval, only
// ttl_test.go, so the sweep-loop shape below follows the nearby
// internal/session TTL-cleanup idiom instead: a ticker-driven loop taking
// one lock per item, never holding a lock across the whole sweep.
package evictor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warpfusion/warpfusion/internal/registry"
)

// MemoryPolicy selects which window the memory phase sheds from first
// when global usage exceeds the cap.
type MemoryPolicy uint8

const (
	// TimeFirst prefers the window holding the oldest retained batch.
	TimeFirst MemoryPolicy = iota
	// MemoryFirst prefers the window using the most bytes.
	MemoryFirst
)

// Config configures a sweep loop.
type Config struct {
	Interval      time.Duration // default 30s
	MaxTotalBytes int64
	Policy        MemoryPolicy
}

// DefaultInterval is the sweep period used when Config.Interval is zero.
const DefaultInterval = 30 * time.Second

// Evictor periodically runs the time phase and memory phase over every
// window in a Registry.
type Evictor struct {
	reg *registry.Registry
	cfg Config
	log *zap.Logger
}

// New constructs an Evictor bound to a Registry.
func New(reg *registry.Registry, cfg Config, log *zap.Logger) *Evictor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Evictor{reg: reg, cfg: cfg, log: log.Named("evictor")}
}

// Run blocks, sweeping on cfg.Interval until ctx is cancelled. The evictor
// is one of the two tasks that observes the global cancel token.
func (e *Evictor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(time.Now().UnixNano())
		}
	}
}

// Sweep runs one time phase followed by one memory phase. Exported
// directly so tests and the supervisor can drive sweeps deterministically
// without waiting on a ticker.
func (e *Evictor) Sweep(nowNS int64) {
	e.timePhase(nowNS)
	e.memoryPhase()
}

func (e *Evictor) timePhase(nowNS int64) {
	for _, name := range e.reg.WindowNames() {
		w, ok := e.reg.GetWindow(name)
		if !ok {
			continue
		}
		freedBytes, freedCount := w.EvictExpired(nowNS)
		if freedCount > 0 {
			e.log.Debug("time-phase eviction",
				zap.String("window", name),
				zap.Int64("freed_bytes", freedBytes),
				zap.Int("freed_batches", freedCount),
			)
		}
	}
}

// memoryPhase sheds oldest batches, window by window per e.cfg.Policy,
// until global usage is under the cap or no window has anything left to
// shed. Memory pressure must never block appends: EvictOldest takes a
// window's writer only for the duration of popping one batch.
func (e *Evictor) memoryPhase() {
	if e.cfg.MaxTotalBytes <= 0 {
		return
	}

	for e.totalUsage() > e.cfg.MaxTotalBytes {
		name, ok := e.selectVictim()
		if !ok {
			return // no window has batches left to shed
		}
		w, ok := e.reg.GetWindow(name)
		if !ok {
			return
		}
		freed, ok := w.EvictOldest()
		if !ok {
			return
		}
		e.log.Debug("memory-phase eviction", zap.String("window", name), zap.Int64("freed_bytes", freed))
	}
}

func (e *Evictor) totalUsage() int64 {
	var total int64
	for _, name := range e.reg.WindowNames() {
		if w, ok := e.reg.GetWindow(name); ok {
			total += w.MemoryUsage()
		}
	}
	return total
}

// selectVictim picks the window the configured policy prefers, breaking
// ties by the window's definition-order name (lexicographic over
// insertion order is not guaranteed, so this ties on the registry's
// deterministic WindowNames order instead — an explicit choice recorded
// in DESIGN.md).
func (e *Evictor) selectVictim() (string, bool) {
	var best string
	haveBest := false
	var bestOldest int64
	var bestBytes int64

	for _, name := range e.reg.WindowNames() {
		w, ok := e.reg.GetWindow(name)
		if !ok {
			continue
		}
		if w.BatchCount() == 0 {
			continue
		}

		switch e.cfg.Policy {
		case TimeFirst:
			oldest, ok := w.OldestEventNS()
			if !ok {
				continue
			}
			if !haveBest || oldest < bestOldest {
				best, bestOldest, haveBest = name, oldest, true
			}
		case MemoryFirst:
			usage := w.MemoryUsage()
			if !haveBest || usage > bestBytes {
				best, bestBytes, haveBest = name, usage, true
			}
		}
	}
	return best, haveBest
}
