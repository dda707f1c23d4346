package util

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// EntryKey namespaces a cache entry key.
func EntryKey(ns, key string) string { return "entry:" + ns + ":" + key }

// LockKey is the reserved namespace for lock tokens. Locks are not
// namespaced per cache: a resource is one resource no matter who rebuilds it.
func LockKey(resource string) string { return "lock:" + resource }

// ParentsKey names the reverse dependency index: the set of parents that
// depend on key.
func ParentsKey(ns, key string) string { return "deps:" + ns + ":parents:" + key }

// ChildrenKey names the forward dependency index: the set of children key was
// assembled from.
func ChildrenKey(ns, key string) string { return "deps:" + ns + ":children:" + key }

// CompositeKey returns a deterministic key over a set of member keys with a
// short hash, independent of member order.
func CompositeKey(prefix string, keys []string) string {
	s := make([]string, len(keys))
	copy(s, keys)
	sort.Strings(s)
	joined := strings.Join(s, ",")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%s:%x", prefix, sum)[:len(prefix)+1+16] // prefix + ":" + first 16 hex chars
}
