package dollcache

import (
	"context"
	"time"

	c "github.com/yourorg/dollcache/codec"
	st "github.com/yourorg/dollcache/store"
)

// Engine is the hierarchical ("nested doll") cache: composite entries
// assembled from independently cached fragments, a dependency graph between
// them, and invalidation that removes only what a change actually affects.
// V is the caller's value type; serialization is handled by a pluggable
// Codec[V].
type Engine[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Primitive entry operations.
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// RegisterDependency records that parent was assembled from child.
	// Idempotent: re-registering an existing edge changes nothing.
	RegisterDependency(ctx context.Context, parent, child string) error

	// Invalidate deletes key and cascades through every composite that
	// depends on it, directly or transitively. Returns the keys whose entries
	// were actually deleted, each at most once, the origin first. Absent keys
	// are a no-op, not an error.
	Invalidate(ctx context.Context, key string) ([]string, error)

	// GetOrAssemble is the read-through path: on hit the composite is
	// returned as-is; on miss the plan's fragments are resolved (cached
	// fragments reused, missing ones fetched), dependency edges registered,
	// and the merged composite stored under key.
	GetOrAssemble(ctx context.Context, key string, plan Plan[V]) (V, error)

	// GraphInfo summarizes the dependency graph. Scans the keyspace; demo
	// and tooling paths only.
	GraphInfo(ctx context.Context) (*GraphInfo, error)

	// CompareWithFlatCaching benchmarks fragment-reuse assembly against a
	// naive single-key cache of the same logical request. Demo only.
	CompareWithFlatCaching(ctx context.Context, key string, plan Plan[V]) (*FlatComparison, error)
}

// Fragment names one independently cacheable constituent of a composite and
// how to fetch it when it is not already cached.
type Fragment[V any] struct {
	Key   string
	Fetch func(ctx context.Context) (V, error)
}

// Plan describes how to assemble a composite: which fragments compose it and
// how to merge them. The surrounding service supplies it; the engine only
// requires the fixed signatures.
type Plan[V any] struct {
	Fragments []Fragment[V]
	Merge     func(parts map[string]V) (V, error)
}

// GraphInfo is introspection output for tooling.
type GraphInfo struct {
	TotalDependencies int
	TotalCacheKeys    int
	RootKeys          []string // composites nothing depends on
	LeafKeys          []string // fragments that depend on nothing
}

// StrategyResult is one side of a flat-vs-nested benchmark run.
type StrategyResult struct {
	Strategy        string
	Elapsed         time.Duration
	FragmentFetches int
}

// FlatComparison contrasts nested-doll assembly with flat caching for the
// same logical request.
type FlatComparison struct {
	Nested StrategyResult
	Flat   StrategyResult
}

// Options tune the engine. Only Namespace, Store and Codec are required;
// others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions, e.g. "flight", "manifest"
	Store     st.Store
	Codec     c.Codec[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// TTL, when set, de-clusters the expirations of entries the engine
	// writes. Orthogonal to correctness.
	TTL *TTLOptimizer

	// Locks, when set, single-flights composite assembly through the lock
	// manager so concurrent misses rebuild once.
	Locks *LockManager

	DefaultTTL time.Duration // entries; 0 => 10m
	LockTTL    time.Duration // assembly locks; 0 => 30s
	Disabled   bool          // default false (enabled)
}

func New[V any](opts Options[V]) (Engine[V], error) {
	return newEngine[V](opts)
}
