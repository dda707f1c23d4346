// Package dollcache implements the coordination core of a Redis-backed
// caching toolkit: a distributed lock manager with stampede prevention, a TTL
// distribution optimizer that de-clusters expirations, and a hierarchical
// ("nested doll") cache engine with dependency tracking and cascading
// invalidation.
//
// Components:
//   - store.Store: Redis-compatible key-value store with TTLs, atomic
//     set-if-not-exists and compare-and-delete, and set-valued entries.
//   - codec.Codec[V]: (de)serializes V <-> []byte.
//   - LockManager: mutual exclusion across processes sharing one store, plus
//     GetOrRebuild, the stampede-prevention read path.
//   - TTLOptimizer: jittered expirations and clustering analysis.
//   - Engine[V]: composite entries assembled from independently cached
//     fragments, with selective and cascading invalidation.
//
// Keys:
//
//	entry:<ns>:<key>         - cache entries
//	lock:<resource>          - lock tokens
//	deps:<ns>:parents:<key>  - reverse dependency index (child -> parents)
//	deps:<ns>:children:<key> - forward dependency index (parent -> children)
//
// All coordination state lives in the store, so the design holds across
// multiple processes. In-process accumulators (TTL stats) are observability
// only; losing them never loses consistency.
package dollcache
