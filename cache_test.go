package dollcache

import (
	"context"
	"sort"
	"testing"
	"time"

	c "github.com/yourorg/dollcache/codec"
	"github.com/yourorg/dollcache/store/memory"
)

type manifest struct {
	Flight string   `json:"flight"`
	Seats  []string `json:"seats"`
}

func newTestEngine(t *testing.T, ns string, mem *memory.Memory, optsOpt func(*Options[manifest])) Engine[manifest] {
	t.Helper()
	opts := Options[manifest]{
		Namespace: ns,
		Store:     mem,
		Codec:     c.JSON[manifest]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	e, err := New[manifest](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func seatPlan(fetched map[string]int, keys ...string) Plan[manifest] {
	frags := make([]Fragment[manifest], len(keys))
	for i, k := range keys {
		k := k
		frags[i] = Fragment[manifest]{
			Key: k,
			Fetch: func(context.Context) (manifest, error) {
				if fetched != nil {
					fetched[k]++
				}
				return manifest{Flight: k, Seats: []string{"s-" + k}}, nil
			},
		}
	}
	return Plan[manifest]{
		Fragments: frags,
		Merge: func(parts map[string]manifest) (manifest, error) {
			out := manifest{Flight: "merged"}
			pk := make([]string, 0, len(parts))
			for k := range parts {
				pk = append(pk, k)
			}
			sort.Strings(pk)
			for _, k := range pk {
				out.Seats = append(out.Seats, parts[k].Seats...)
			}
			return out, nil
		},
	}
}

func sorted(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func TestEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if _, ok, err := e.Get(ctx, "f1"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	v := manifest{Flight: "F1", Seats: []string{"12A"}}
	if err := e.Set(ctx, "f1", v, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := e.Get(ctx, "f1")
	if err != nil || !ok {
		t.Fatalf("Get after set: ok=%v err=%v", ok, err)
	}
	if got.Flight != v.Flight || len(got.Seats) != 1 || got.Seats[0] != "12A" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEngineSelfHealsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	e := newTestEngine(t, "flight", mem, nil)

	if err := mem.Set(ctx, "entry:flight:bad", []byte("{not json"), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := e.Get(ctx, "bad"); err != nil || ok {
		t.Fatalf("corrupt entry should read as a miss, got ok=%v err=%v", ok, err)
	}
	// the corrupt bytes must be gone
	if _, ok, _ := mem.Get(ctx, "entry:flight:bad"); ok {
		t.Fatal("corrupt entry was not deleted")
	}
}

func TestCascadingInvalidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if err := e.Set(ctx, "passenger:P5", manifest{Flight: "p"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Set(ctx, "manifest:F1", manifest{Flight: "m"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterDependency(ctx, "manifest:F1", "passenger:P5"); err != nil {
		t.Fatalf("RegisterDependency: %v", err)
	}

	deleted, err := e.Invalidate(ctx, "passenger:P5")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	want := []string{"manifest:F1", "passenger:P5"}
	if got := sorted(deleted); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("deleted = %v, want both of %v", deleted, want)
	}
	if _, ok, _ := e.Get(ctx, "manifest:F1"); ok {
		t.Fatal("parent still cached after cascade")
	}
}

func TestSelectiveInvalidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	for _, k := range []string{"p1", "p2", "c1", "c2"} {
		if err := e.Set(ctx, k, manifest{Flight: k}, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.RegisterDependency(ctx, "p1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterDependency(ctx, "p2", "c2"); err != nil {
		t.Fatal(err)
	}

	deleted, err := e.Invalidate(ctx, "c1")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	for _, k := range deleted {
		if k == "p2" || k == "c2" {
			t.Fatalf("unrelated key %q was invalidated", k)
		}
	}
	if _, ok, _ := e.Get(ctx, "p2"); !ok {
		t.Fatal("unrelated composite p2 lost its entry")
	}
	if _, ok, _ := e.Get(ctx, "p1"); ok {
		t.Fatal("dependent composite p1 survived")
	}
}

func TestInvalidateDiamondNoDuplicates(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	// top depends on mid1 and mid2; both depend on base. Invalidating base
	// reaches top via two paths.
	for _, k := range []string{"top", "mid1", "mid2", "base"} {
		if err := e.Set(ctx, k, manifest{Flight: k}, 0); err != nil {
			t.Fatal(err)
		}
	}
	for _, edge := range [][2]string{{"top", "mid1"}, {"top", "mid2"}, {"mid1", "base"}, {"mid2", "base"}} {
		if err := e.RegisterDependency(ctx, edge[0], edge[1]); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := e.Invalidate(ctx, "base")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	seen := map[string]int{}
	for _, k := range deleted {
		seen[k]++
	}
	for k, n := range seen {
		if n > 1 {
			t.Fatalf("key %q deleted %d times", k, n)
		}
	}
	if len(deleted) != 4 {
		t.Fatalf("deleted = %v, want all 4 keys exactly once", deleted)
	}
}

func TestInvalidateAbsentKeyIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	for i := 0; i < 2; i++ {
		deleted, err := e.Invalidate(ctx, "never-cached")
		if err != nil {
			t.Fatalf("Invalidate #%d: %v", i+1, err)
		}
		if len(deleted) != 0 {
			t.Fatalf("Invalidate #%d deleted %v, want empty", i+1, deleted)
		}
	}
}

func TestInvalidateLeafWithNoParents(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if err := e.Set(ctx, "lone", manifest{Flight: "lone"}, 0); err != nil {
		t.Fatal(err)
	}
	deleted, err := e.Invalidate(ctx, "lone")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "lone" {
		t.Fatalf("deleted = %v, want [lone]", deleted)
	}
}

func TestRegisterDependencyIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	for i := 0; i < 3; i++ {
		if err := e.RegisterDependency(ctx, "parent", "child"); err != nil {
			t.Fatalf("RegisterDependency #%d: %v", i+1, err)
		}
	}
	info, err := e.GraphInfo(ctx)
	if err != nil {
		t.Fatalf("GraphInfo: %v", err)
	}
	if info.TotalDependencies != 1 {
		t.Fatalf("TotalDependencies = %d, want 1", info.TotalDependencies)
	}
}

func TestRegisterDependencyValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if err := e.RegisterDependency(ctx, "", "c"); err == nil {
		t.Fatal("empty parent accepted")
	}
	if err := e.RegisterDependency(ctx, "p", ""); err == nil {
		t.Fatal("empty child accepted")
	}
	if err := e.RegisterDependency(ctx, "p", "p"); err == nil {
		t.Fatal("self-dependency accepted")
	}
}

func TestInvalidateSurvivesCycles(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if err := e.Set(ctx, "a", manifest{Flight: "a"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Set(ctx, "b", manifest{Flight: "b"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterDependency(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterDependency(ctx, "b", "a"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	var deleted []string
	var err error
	go func() {
		deleted, err = e.Invalidate(ctx, "a")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic graph hung the cascade")
	}
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted = %v, want both keys once", deleted)
	}
}

func TestGetOrAssemblePartialHit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if err := e.Set(ctx, "fragA", manifest{Flight: "fragA", Seats: []string{"cached-A"}}, 0); err != nil {
		t.Fatal(err)
	}

	fetched := map[string]int{}
	v, err := e.GetOrAssemble(ctx, "combo", seatPlan(fetched, "fragA", "fragB"))
	if err != nil {
		t.Fatalf("GetOrAssemble: %v", err)
	}
	if fetched["fragA"] != 0 {
		t.Fatalf("cached fragment was refetched %d times", fetched["fragA"])
	}
	if fetched["fragB"] != 1 {
		t.Fatalf("missing fragment fetched %d times, want 1", fetched["fragB"])
	}
	if len(v.Seats) != 2 {
		t.Fatalf("merged composite = %+v", v)
	}
}

func TestGetOrAssembleHitSkipsPlan(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	fetched := map[string]int{}
	if _, err := e.GetOrAssemble(ctx, "combo", seatPlan(fetched, "x", "y")); err != nil {
		t.Fatal(err)
	}
	before := fetched["x"] + fetched["y"]

	if _, err := e.GetOrAssemble(ctx, "combo", seatPlan(fetched, "x", "y")); err != nil {
		t.Fatal(err)
	}
	if after := fetched["x"] + fetched["y"]; after != before {
		t.Fatalf("cache hit still ran fetches: %d -> %d", before, after)
	}
}

func TestGetOrAssembleRegistersDependencies(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if _, err := e.GetOrAssemble(ctx, "combo", seatPlan(nil, "x", "y")); err != nil {
		t.Fatal(err)
	}
	deleted, err := e.Invalidate(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	got := sorted(deleted)
	if len(got) != 2 || got[0] != "combo" || got[1] != "x" {
		t.Fatalf("invalidating a fragment deleted %v, want [combo x]", deleted)
	}
}

func TestGetOrAssembleValidatesPlan(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	if _, err := e.GetOrAssemble(ctx, "k", Plan[manifest]{}); err != ErrNilMerge {
		t.Fatalf("err = %v, want ErrNilMerge", err)
	}
	p := seatPlan(nil, "x")
	p.Fragments[0].Fetch = nil
	if _, err := e.GetOrAssemble(ctx, "k", p); err != ErrNilFetch {
		t.Fatalf("err = %v, want ErrNilFetch", err)
	}
}

func TestGraphInfoRootsAndLeaves(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	// root -> mid -> leaf
	if err := e.RegisterDependency(ctx, "root", "mid"); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterDependency(ctx, "mid", "leaf"); err != nil {
		t.Fatal(err)
	}

	info, err := e.GraphInfo(ctx)
	if err != nil {
		t.Fatalf("GraphInfo: %v", err)
	}
	if info.TotalDependencies != 2 {
		t.Fatalf("TotalDependencies = %d, want 2", info.TotalDependencies)
	}
	if len(info.RootKeys) != 1 || info.RootKeys[0] != "root" {
		t.Fatalf("RootKeys = %v", info.RootKeys)
	}
	if len(info.LeafKeys) != 1 || info.LeafKeys[0] != "leaf" {
		t.Fatalf("LeafKeys = %v", info.LeafKeys)
	}
}

func TestCompareWithFlatCaching(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), nil)

	// Warm one fragment so the nested strategy can reuse it.
	if err := e.Set(ctx, "fragA", manifest{Flight: "fragA"}, 0); err != nil {
		t.Fatal(err)
	}

	cmp, err := e.CompareWithFlatCaching(ctx, "combo", seatPlan(nil, "fragA", "fragB"))
	if err != nil {
		t.Fatalf("CompareWithFlatCaching: %v", err)
	}
	if cmp.Nested.FragmentFetches != 1 {
		t.Fatalf("nested fetches = %d, want 1 (fragA was cached)", cmp.Nested.FragmentFetches)
	}
	if cmp.Flat.FragmentFetches != 2 {
		t.Fatalf("flat fetches = %d, want 2 (no fragment reuse)", cmp.Flat.FragmentFetches)
	}
}

func TestGetOrAssembleSingleFlight(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	locks, err := NewLockManager(mem, LockOptions{})
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, "flight", mem, func(o *Options[manifest]) { o.Locks = locks })

	fetched := map[string]int{}
	v, err := e.GetOrAssemble(ctx, "combo", seatPlan(fetched, "x", "y"))
	if err != nil {
		t.Fatalf("GetOrAssemble: %v", err)
	}
	if len(v.Seats) != 2 {
		t.Fatalf("composite = %+v", v)
	}
	if fetched["x"] != 1 || fetched["y"] != 1 {
		t.Fatalf("fetch counts = %v", fetched)
	}

	// second call is a plain hit; the assembly lock is long gone
	if _, err := e.GetOrAssemble(ctx, "combo", seatPlan(fetched, "x", "y")); err != nil {
		t.Fatal(err)
	}
	if fetched["x"] != 1 || fetched["y"] != 1 {
		t.Fatalf("hit refetched fragments: %v", fetched)
	}
	if h, err := locks.Acquire(ctx, "entry:flight:combo", time.Second); err != nil || h == nil {
		t.Fatalf("assembly lock still held: h=%v err=%v", h, err)
	}
}

func TestDisabledEngine(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "flight", memory.New(), func(o *Options[manifest]) { o.Disabled = true })

	if e.Enabled() {
		t.Fatal("engine reports enabled")
	}
	if err := e.Set(ctx, "k", manifest{}, 0); err != nil {
		t.Fatalf("disabled Set: %v", err)
	}
	if _, ok, err := e.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("disabled Get: ok=%v err=%v", ok, err)
	}
	fetched := map[string]int{}
	if _, err := e.GetOrAssemble(ctx, "combo", seatPlan(fetched, "x")); err != nil {
		t.Fatalf("disabled GetOrAssemble: %v", err)
	}
	if fetched["x"] != 1 {
		t.Fatalf("disabled engine should pass through to fetch, got %d", fetched["x"])
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New[manifest](Options[manifest]{Store: memory.New(), Codec: c.JSON[manifest]{}}); err == nil {
		t.Fatal("missing namespace accepted")
	}
	if _, err := New[manifest](Options[manifest]{Namespace: "x", Codec: c.JSON[manifest]{}}); err == nil {
		t.Fatal("missing store accepted")
	}
	if _, err := New[manifest](Options[manifest]{Namespace: "x", Store: memory.New()}); err == nil {
		t.Fatal("missing codec accepted")
	}
}
