package dollcache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	st "github.com/yourorg/dollcache/store"
)

const (
	// minTTL is the hard floor on computed expirations. No jitter draw may
	// push an entry into expiring immediately or in the past.
	minTTL = time.Second

	defaultJitterRange  = time.Second
	defaultHistoryLimit = 4096
	defaultBucketWidth  = time.Second
)

// TTLOptimizer computes deliberately perturbed ("jittered") expirations so
// that entries written together do not all expire together. Every computation
// feeds a process-local stats accumulator used by the analysis and chart
// operations; losing the accumulator loses observability only, never cache
// state.
type TTLOptimizer struct {
	store st.Store
	log   Logger
	hooks Hooks

	mu          sync.Mutex
	jitterRange time.Duration
	prevention  bool

	stats       *ttlStats
	bucketWidth time.Duration
}

// TTLOptions tune the optimizer. The zero value of each field selects a
// default.
type TTLOptions struct {
	Logger Logger
	Hooks  Hooks

	// JitterRange is the half-width of the uniform jitter window. 0 => 1s.
	JitterRange time.Duration

	// DisableClusteringPrevention starts the optimizer with jitter off.
	DisableClusteringPrevention bool

	// HistoryLimit bounds the recorded expiration timestamps. 0 => 4096.
	HistoryLimit int

	// BucketWidth is the histogram window used by the analysis. 0 => 1s.
	BucketWidth time.Duration
}

func NewTTLOptimizer(s st.Store, opts TTLOptions) (*TTLOptimizer, error) {
	if s == nil {
		return nil, st.ErrNilStore
	}
	return &TTLOptimizer{
		store:       s,
		log:         coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:       coalesce[Hooks](opts.Hooks, NopHooks{}),
		jitterRange: coalesce(opts.JitterRange, defaultJitterRange),
		prevention:  !opts.DisableClusteringPrevention,
		stats:       newTTLStats(coalesce(opts.HistoryLimit, defaultHistoryLimit)),
		bucketWidth: coalesce(opts.BucketWidth, defaultBucketWidth),
	}, nil
}

// DistributedTTL computes the expiration for base. With prevention on, a
// uniform offset in [-JitterRange, +JitterRange] is added; the result never
// drops below one second regardless of the draw. With prevention off, base is
// returned exactly (zero variance - deterministic for testing). Non-positive
// bases clamp to the floor; the writing APIs reject them before reaching
// here.
func (o *TTLOptimizer) DistributedTTL(base time.Duration) time.Duration {
	o.mu.Lock()
	prevention, jr := o.prevention, o.jitterRange
	o.mu.Unlock()

	ttl := base
	var jitter time.Duration
	if prevention && jr > 0 {
		// uniform draw over [-jr, +jr], millisecond granularity
		jrMs := jr.Milliseconds()
		jitter = time.Duration(rand.Int64N(2*jrMs+1)-jrMs) * time.Millisecond
		ttl += jitter
	}
	if ttl < minTTL {
		ttl = minTTL
	}

	o.stats.record(jitter, jitter != 0, time.Now().Add(ttl))
	return ttl
}

// SetWithDistributedTTL serializes value as JSON and writes it with a
// jittered expiration. When override is non-nil it replaces the configured
// prevention flag for this one call only; the configured default is restored
// on every exit path. Returns whether the write succeeded.
func (o *TTLOptimizer) SetWithDistributedTTL(ctx context.Context, key string, value any, base time.Duration, override *bool) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if base <= 0 {
		return false, fmt.Errorf("set %q: %w", key, ErrNonPositiveTTL)
	}

	if override != nil {
		o.mu.Lock()
		prev := o.prevention
		o.prevention = *override
		o.mu.Unlock()
		defer func() {
			o.mu.Lock()
			o.prevention = prev
			o.mu.Unlock()
		}()
	}

	b, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("set %q: encode: %w", key, err)
	}
	ttl := o.DistributedTTL(base)
	if err := o.store.Set(ctx, key, b, ttl); err != nil {
		return false, fmt.Errorf("set %q: %w", key, err)
	}
	return true, nil
}

// ConfigureJitter sets the jitter half-width. Negative input clamps to 0.
func (o *TTLOptimizer) ConfigureJitter(d time.Duration) {
	if d < 0 {
		d = 0
	}
	o.mu.Lock()
	o.jitterRange = d
	o.mu.Unlock()
	o.log.Debug("jitter range configured", Fields{"range": d})
}

// ToggleClusteringPrevention flips the prevention flag and returns the new
// state.
func (o *TTLOptimizer) ToggleClusteringPrevention() bool {
	o.mu.Lock()
	o.prevention = !o.prevention
	state := o.prevention
	o.mu.Unlock()
	return state
}

// ClusteringPreventionEnabled reports the current prevention flag.
func (o *TTLOptimizer) ClusteringPreventionEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prevention
}

// ResetStats clears the accumulator and history buffer.
func (o *TTLOptimizer) ResetStats() {
	o.stats.reset()
}

// Stats returns a snapshot of the accumulator.
func (o *TTLOptimizer) Stats() TTLStats {
	return o.stats.snapshot()
}
