package dollcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yourorg/dollcache/internal/util"
)

func (e *engine[V]) RegisterDependency(ctx context.Context, parent, child string) error {
	if !e.enabled {
		return nil
	}
	if parent == "" || child == "" {
		return ErrEmptyKey
	}
	if parent == child {
		return fmt.Errorf("dollcache: key %q cannot depend on itself", parent)
	}
	// Forward and reverse index entries are store-side sets, so duplicate
	// registration is naturally idempotent.
	if err := e.store.AddToSet(ctx, e.childrenKey(parent), child); err != nil {
		return fmt.Errorf("register dependency %q -> %q: %w", parent, child, err)
	}
	if err := e.store.AddToSet(ctx, e.parentsKey(child), parent); err != nil {
		return fmt.Errorf("register dependency %q -> %q: %w", parent, child, err)
	}
	return nil
}

// Invalidate deletes key's entry and walks the reverse index breadth-first,
// deleting every composite that depends on it. The visited set guards against
// cycles mistakenly registered in the graph; each key is processed at most
// once no matter how many paths reach it. Deleting a parent also tears down
// its child edges, so the reverse index only ever names parents whose
// composite may still exist.
func (e *engine[V]) Invalidate(ctx context.Context, key string) ([]string, error) {
	if !e.enabled {
		return nil, nil
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	var (
		deleted []string
		visited = map[string]bool{}
		queue   = []string{key}
	)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if visited[k] {
			continue
		}
		visited[k] = true

		n, err := e.store.Delete(ctx, e.entryKey(k))
		if err != nil {
			return deleted, &CascadeError{Origin: key, Key: k, Deleted: deleted, Err: err}
		}
		if n > 0 {
			deleted = append(deleted, k)
		}

		// Snapshot of parents registered before this step; edges registered
		// concurrently are best-effort (a recreated stale composite would be
		// re-invalidated by its own later call).
		parents, err := e.store.SetMembers(ctx, e.parentsKey(k))
		if err != nil {
			return deleted, &CascadeError{Origin: key, Key: k, Deleted: deleted, Err: err}
		}
		queue = append(queue, parents...)

		// k's composite is gone; its edges to children no longer hold.
		children, err := e.store.SetMembers(ctx, e.childrenKey(k))
		if err != nil {
			return deleted, &CascadeError{Origin: key, Key: k, Deleted: deleted, Err: err}
		}
		for _, child := range children {
			if err := e.store.RemoveFromSet(ctx, e.parentsKey(child), k); err != nil {
				e.log.Warn("edge cleanup failed", Fields{"parent": k, "child": child, "err": err})
			}
		}
		if len(children) > 0 {
			if _, err := e.store.Delete(ctx, e.childrenKey(k)); err != nil {
				e.log.Warn("edge cleanup failed", Fields{"parent": k, "err": err})
			}
		}
	}

	if len(deleted) > 0 {
		e.hooks.CascadeInvalidated(key, len(deleted))
		e.log.Debug("cascade complete", Fields{"origin": key, "deleted": len(deleted)})
	}
	return deleted, nil
}

func (e *engine[V]) GraphInfo(ctx context.Context) (*GraphInfo, error) {
	if !e.enabled {
		return &GraphInfo{}, nil
	}

	childrenPrefix := "deps:" + e.ns + ":children:"
	parentsPrefix := "deps:" + e.ns + ":parents:"

	childrenSets, err := e.store.Keys(ctx, childrenPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("graph info: %w", err)
	}
	parentsSets, err := e.store.Keys(ctx, parentsPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("graph info: %w", err)
	}
	entries, err := e.store.Keys(ctx, "entry:"+e.ns+":*")
	if err != nil {
		return nil, fmt.Errorf("graph info: %w", err)
	}

	hasChildren := map[string]bool{} // appears as a parent of something
	hasParents := map[string]bool{}  // appears as a child of something

	info := &GraphInfo{TotalCacheKeys: len(entries)}
	for _, sk := range childrenSets {
		k := strings.TrimPrefix(sk, childrenPrefix)
		members, err := e.store.SetMembers(ctx, sk)
		if err != nil {
			return nil, fmt.Errorf("graph info: %w", err)
		}
		if len(members) == 0 {
			continue
		}
		hasChildren[k] = true
		info.TotalDependencies += len(members)
	}
	for _, sk := range parentsSets {
		k := strings.TrimPrefix(sk, parentsPrefix)
		members, err := e.store.SetMembers(ctx, sk)
		if err != nil {
			return nil, fmt.Errorf("graph info: %w", err)
		}
		if len(members) > 0 {
			hasParents[k] = true
		}
	}

	for k := range hasChildren {
		if !hasParents[k] {
			info.RootKeys = append(info.RootKeys, k)
		}
	}
	for k := range hasParents {
		if !hasChildren[k] {
			info.LeafKeys = append(info.LeafKeys, k)
		}
	}
	sort.Strings(info.RootKeys)
	sort.Strings(info.LeafKeys)
	return info, nil
}

// CompareWithFlatCaching runs the same logical request through nested-doll
// assembly and through a naive one-key-per-request cache, reporting elapsed
// time and fragment fetches for each. The flat key hashes the fragment set so
// repeated runs with the same plan hit the same flat entry.
func (e *engine[V]) CompareWithFlatCaching(ctx context.Context, key string, plan Plan[V]) (*FlatComparison, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	var nestedFetches int
	counted := countingPlan(plan, &nestedFetches)
	start := time.Now()
	if _, err := e.GetOrAssemble(ctx, key, counted); err != nil {
		return nil, err
	}
	nested := StrategyResult{
		Strategy:        "nested",
		Elapsed:         time.Since(start),
		FragmentFetches: nestedFetches,
	}

	fragKeys := make([]string, len(plan.Fragments))
	for i, f := range plan.Fragments {
		fragKeys[i] = f.Key
	}
	flatKey := util.CompositeKey("flat:"+e.ns, fragKeys)

	var flatFetches int
	start = time.Now()
	if _, ok, err := e.Get(ctx, flatKey); err != nil {
		return nil, err
	} else if !ok {
		// flat caching cannot reuse fragments: every one is fetched
		parts := make(map[string]V, len(plan.Fragments))
		for _, f := range plan.Fragments {
			v, ferr := f.Fetch(ctx)
			if ferr != nil {
				return nil, fmt.Errorf("flat comparison: fragment %q: %w", f.Key, ferr)
			}
			flatFetches++
			parts[f.Key] = v
		}
		v, merr := plan.Merge(parts)
		if merr != nil {
			return nil, fmt.Errorf("flat comparison: merge: %w", merr)
		}
		if serr := e.Set(ctx, flatKey, v, e.defaultTTL); serr != nil {
			e.log.Warn("flat entry could not be cached", Fields{"key": flatKey, "err": serr})
		}
	}
	flat := StrategyResult{
		Strategy:        "flat",
		Elapsed:         time.Since(start),
		FragmentFetches: flatFetches,
	}

	return &FlatComparison{Nested: nested, Flat: flat}, nil
}

func countingPlan[V any](plan Plan[V], counter *int) Plan[V] {
	out := Plan[V]{Merge: plan.Merge, Fragments: make([]Fragment[V], len(plan.Fragments))}
	for i, f := range plan.Fragments {
		fetch := f.Fetch
		out.Fragments[i] = Fragment[V]{
			Key: f.Key,
			Fetch: func(ctx context.Context) (V, error) {
				*counter++
				return fetch(ctx)
			},
		}
	}
	return out
}

func (e *engine[V]) parentsKey(key string) string  { return util.ParentsKey(e.ns, key) }
func (e *engine[V]) childrenKey(key string) string { return util.ChildrenKey(e.ns, key) }
