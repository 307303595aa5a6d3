package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/store"
)

// workstation wraps a store and its sync engine against a shared remote.
type workstation struct {
	id     string
	store  *store.Store
	engine *Engine
}

func newWorkstation(t *testing.T, id, remote string) *workstation {
	t.Helper()
	return newWorkstationAt(t, t.TempDir(), id, remote)
}

func newWorkstationAt(t *testing.T, root, id, remote string) *workstation {
	t.Helper()
	require.NoError(t, os.MkdirAll(config.CachePath(root), 0755))

	st, err := store.Open(root, store.Options{Workstation: id})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng, err := New(st, NewDirTransport(remote), nil)
	require.NoError(t, err)
	return &workstation{id: id, store: st, engine: eng}
}

func (w *workstation) sync(t *testing.T, opts Options) *Result {
	t.Helper()
	res, err := w.engine.Sync(context.Background(), opts)
	require.NoError(t, err)
	return res
}

func TestSyncPropagatesEntries(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)

	id, err := a.store.Put(&entry.Entry{
		Category:   entry.CategoryDecisions,
		Title:      "use jsonl logs",
		Body:       "append-only and git friendly",
		Confidence: entry.ConfidenceHigh,
		Origin:     entry.OriginManual,
	})
	require.NoError(t, err)

	pushRes := a.sync(t, Options{})
	assert.Equal(t, 1, pushRes.Pushed)

	pullRes := b.sync(t, Options{})
	assert.Equal(t, 1, pullRes.Pulled)
	assert.Equal(t, 1, pullRes.Applied)

	got, ok := b.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "use jsonl logs", got.Title)
	assert.Equal(t, entry.ConfidenceHigh, got.Confidence)
}

func TestSyncIsIdempotent(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)

	_, err := a.store.Put(&entry.Entry{
		Category: entry.CategoryAPI, Title: "idempotent sync",
		Confidence: entry.ConfidenceMedium, Origin: entry.OriginManual,
	})
	require.NoError(t, err)

	a.sync(t, Options{})
	b.sync(t, Options{})
	before := b.store.OpCount()

	res := b.sync(t, Options{})
	assert.Zero(t, res.Applied, "re-sync must apply nothing new")
	assert.Equal(t, before, b.store.OpCount())
}

// seedSharedEntry creates an entry on a, syncs it to b, and returns its id.
func seedSharedEntry(t *testing.T, a, b *workstation) string {
	t.Helper()
	id, err := a.store.Put(&entry.Entry{
		Category:   entry.CategoryArchitecture,
		Title:      "shared entry",
		Body:       "original body",
		Confidence: entry.ConfidenceMedium,
		Tags:       []string{"shared"},
		Origin:     entry.OriginManual,
	})
	require.NoError(t, err)
	a.sync(t, Options{})
	b.sync(t, Options{})
	return id
}

func editTags(t *testing.T, w *workstation, id string, tags ...string) {
	t.Helper()
	e, ok := w.store.Get(id)
	require.True(t, ok)
	e.Tags = append(e.Tags, tags...)
	_, err := w.store.Put(e)
	require.NoError(t, err)
}

func TestConcurrentTagEditsMergeToUnion(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b)

	editTags(t, a, id, "alpha")
	editTags(t, b, id, "beta")

	b.sync(t, Options{}) // pushes b's edit; a's edit not pushed yet
	resA := a.sync(t, Options{Strategy: StrategyMerge})
	assert.Equal(t, 1, resA.Merged, "exactly one conflict resolved")
	resB := b.sync(t, Options{})
	assert.Zero(t, resB.Merged, "b adopts a's merge instead of re-merging")

	for _, w := range []*workstation{a, b} {
		got, ok := w.store.Get(id)
		require.True(t, ok, w.id)
		assert.Equal(t, []string{"alpha", "beta", "shared"}, got.Tags, w.id)
		assert.False(t, got.NeedsReview, "identical bodies need no review")
	}

	// Exactly one merge op exists across both logs.
	mergeOps := 0
	opsA, err := a.store.AllOps()
	require.NoError(t, err)
	for _, op := range opsA {
		if op.Kind == store.OpMerge {
			mergeOps++
		}
	}
	assert.Equal(t, 1, mergeOps)
}

func TestDivergentBodiesGetConflictMarkers(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b)

	ea, _ := a.store.Get(id)
	ea.Body = "body from a"
	_, err := a.store.Put(ea)
	require.NoError(t, err)

	eb, _ := b.store.Get(id)
	eb.Body = "body from b"
	_, err = b.store.Put(eb)
	require.NoError(t, err)

	a.sync(t, Options{})
	b.sync(t, Options{Strategy: StrategyMerge})
	a.sync(t, Options{})

	for _, w := range []*workstation{a, b} {
		got, ok := w.store.Get(id)
		require.True(t, ok)
		assert.True(t, got.NeedsReview, "%s: divergent bodies must flag review", w.id)
		assert.Contains(t, got.Body, "<<<<<<< ws-a")
		assert.Contains(t, got.Body, "body from a")
		assert.Contains(t, got.Body, "body from b")
		assert.Contains(t, got.Body, ">>>>>>> ws-b")
	}
}

func TestMergeIsCommutative(t *testing.T) {
	// Both sides resolve the same divergence independently, then exchange
	// their merge ops: content must converge without further conflicts.
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b)

	editTags(t, a, id, "alpha")
	editTags(t, b, id, "beta")

	// Push both edits, then let each side merge on its own before it can
	// see the other's merge op.
	a.sync(t, Options{PushOnly: true})
	b.sync(t, Options{PushOnly: true})
	resA := a.sync(t, Options{PullOnly: true, Strategy: StrategyMerge})
	resB := b.sync(t, Options{PullOnly: true, Strategy: StrategyMerge})
	assert.Equal(t, 1, resA.Merged)
	assert.Equal(t, 1, resB.Merged)

	// Exchange the two merge ops. They carry identical content, so each
	// side records the other's as history and both settle on the same head.
	a.sync(t, Options{})
	b.sync(t, Options{})
	a.sync(t, Options{})

	ga, ok := a.store.Get(id)
	require.True(t, ok)
	gb, ok := b.store.Get(id)
	require.True(t, ok)
	assert.True(t, ga.Equal(gb), "states must converge: %+v vs %+v", ga, gb)
	assert.Equal(t, []string{"alpha", "beta", "shared"}, ga.Tags)
	assert.Equal(t, ga.Clock, gb.Clock, "both sides settle on the same head revision")
}

func TestEditAfterIndependentMergesAppliesCleanly(t *testing.T) {
	// After both sides merge the same divergence independently and exchange
	// the two byte-equal merge ops, one side's log ends with the
	// clock-losing merge. An edit built on the settled winner must still
	// apply cleanly on that side.
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b)

	editTags(t, a, id, "alpha")
	editTags(t, b, id, "beta")
	a.sync(t, Options{PushOnly: true})
	b.sync(t, Options{PushOnly: true})
	a.sync(t, Options{PullOnly: true, Strategy: StrategyMerge})
	b.sync(t, Options{PullOnly: true, Strategy: StrategyMerge})
	a.sync(t, Options{})
	b.sync(t, Options{}) // b's log now ends with a's losing merge op
	a.sync(t, Options{})

	ea := mustGet(t, a.store, id)
	ea.Body = "edited after the merge settled"
	_, err := a.store.Put(ea)
	require.NoError(t, err)
	a.sync(t, Options{})

	res := b.sync(t, Options{Strategy: StrategyMerge})
	assert.Zero(t, res.Merged, "a causally ordered edit must not be treated as a conflict")

	got := mustGet(t, b.store, id)
	assert.Equal(t, "edited after the merge settled", got.Body)
	assert.False(t, got.NeedsReview)
	assert.NotContains(t, got.Body, "<<<<<<<")
}

func TestMergeTakesMaxConfidence(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b) // seeded at medium confidence

	ea := mustGet(t, a.store, id)
	ea.Confidence = entry.ConfidenceHigh
	_, err := a.store.Put(ea)
	require.NoError(t, err)

	editTags(t, b, id, "beta")

	a.sync(t, Options{})
	b.sync(t, Options{Strategy: StrategyMerge})
	a.sync(t, Options{})

	for _, w := range []*workstation{a, b} {
		got := mustGet(t, w.store, id)
		assert.Equal(t, entry.ConfidenceHigh, got.Confidence,
			"%s: merging concurrent edits must keep the highest confidence", w.id)
	}
}

func TestTheirsStrategyKeepsLocalOpInLog(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b)

	ea, _ := a.store.Get(id)
	ea.Body = "remote wins"
	_, err := a.store.Put(ea)
	require.NoError(t, err)

	eb, _ := b.store.Get(id)
	eb.Body = "local body"
	_, err = b.store.Put(eb)
	require.NoError(t, err)
	localClock := mustGet(t, b.store, id).Clock

	a.sync(t, Options{})
	b.sync(t, Options{Strategy: StrategyTheirs})

	got := mustGet(t, b.store, id)
	assert.Equal(t, "remote wins", got.Body, "theirs strategy adopts the remote version")

	// The superseded local op stays in the log; the merge op lists it as a
	// parent.
	ops, err := b.store.AllOps()
	require.NoError(t, err)
	var localOpFound, supersededByMerge bool
	for _, op := range ops {
		if op.Clock.Equal(localClock) {
			localOpFound = true
		}
		if op.Kind == store.OpMerge {
			for _, p := range op.Parents {
				if p.Equal(localClock) {
					supersededByMerge = true
				}
			}
		}
	}
	assert.True(t, localOpFound, "local op must remain in the log")
	assert.True(t, supersededByMerge, "merge op must record the local op as a parent")
}

func TestInteractiveUnresolvedExitsWithConflictList(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)
	id := seedSharedEntry(t, a, b)

	ea, _ := a.store.Get(id)
	ea.Body = "a's version"
	_, err := a.store.Put(ea)
	require.NoError(t, err)

	eb, _ := b.store.Get(id)
	eb.Body = "b's version"
	_, err = b.store.Put(eb)
	require.NoError(t, err)

	a.sync(t, Options{})

	beforeOps := b.store.OpCount()
	res, err := b.engine.Sync(context.Background(), Options{Strategy: StrategyInteractive})
	require.ErrorIs(t, err, ErrConflictUnresolved)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, id, res.Conflicts[0].EntryID)
	assert.Equal(t, "ws-a", res.Conflicts[0].Peer)

	// Nothing applied, state unchanged, high-water mark not advanced.
	got := mustGet(t, b.store, id)
	assert.Equal(t, "b's version", got.Body)

	// Resolving by id settles it on the next run.
	res2, err := b.engine.Sync(context.Background(), Options{
		Strategy:    StrategyInteractive,
		Resolutions: map[string]Choice{id: ChooseOurs},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Merged)
	got = mustGet(t, b.store, id)
	assert.Equal(t, "b's version", got.Body, "ours choice keeps the local content")
	assert.Greater(t, b.store.OpCount(), beforeOps)
}

func TestInterruptedPullResumesFromHighWaterMark(t *testing.T) {
	remote := t.TempDir()
	a := newWorkstation(t, "ws-a", remote)
	b := newWorkstation(t, "ws-b", remote)

	for i := 0; i < 3; i++ {
		_, err := a.store.Put(&entry.Entry{
			Category: entry.CategoryDomain, Title: "entry",
			Confidence: entry.ConfidenceMedium, Origin: entry.OriginManual,
		})
		require.NoError(t, err)
	}
	a.sync(t, Options{})
	b.sync(t, Options{})

	// More ops arrive; the next pull fetches only the unseen suffix.
	_, err := a.store.Put(&entry.Entry{
		Category: entry.CategoryDomain, Title: "late entry",
		Confidence: entry.ConfidenceMedium, Origin: entry.OriginManual,
	})
	require.NoError(t, err)
	a.sync(t, Options{})

	res := b.sync(t, Options{})
	assert.Equal(t, 1, res.Pulled, "only the suffix past the high-water mark is fetched")
}

func TestClockSkewGuard(t *testing.T) {
	remote := t.TempDir()
	b := newWorkstation(t, "ws-b", remote)

	// Plant a remote log whose counter jumps far beyond the skew limit.
	e := &entry.Entry{
		ID: entry.NewID(), Category: entry.CategoryDomain, Title: "skewed",
		Confidence: entry.ConfidenceMedium, Origin: entry.OriginManual,
	}
	skewed := store.Op{
		Kind:    store.OpInsert,
		EntryID: e.ID,
		Clock:   entry.Clock{Workstation: "ws-evil", Counter: 10_000_000},
		Payload: e,
	}
	dt := NewDirTransport(remote)
	require.NoError(t, dt.Append(context.Background(), "ws-evil", []store.Op{skewed}))

	_, err := b.engine.Sync(context.Background(), Options{})
	require.ErrorIs(t, err, ErrClockSkew)
	assert.Zero(t, b.store.Len(), "skewed ops must not be applied")
}

func TestFirstPullOfLongHistoryWithinSkewLimit(t *testing.T) {
	// A fresh workstation joining a remote whose log counters run far past
	// the skew limit must still complete its first pull: each op only steps
	// the counter a little, and the receive rule tracks the running max.
	remote := t.TempDir()

	var ops []store.Op
	for i := 1; i <= 6; i++ {
		e := &entry.Entry{
			ID:         entry.NewID(),
			Category:   entry.CategoryDomain,
			Title:      fmt.Sprintf("entry %d", i),
			Confidence: entry.ConfidenceMedium,
			Origin:     entry.OriginManual,
		}
		ops = append(ops, store.Op{
			Kind:    store.OpInsert,
			EntryID: e.ID,
			Clock:   entry.Clock{Workstation: "ws-far", Counter: uint64(i)},
			Payload: e,
		})
	}
	dt := NewDirTransport(remote)
	require.NoError(t, dt.Append(context.Background(), "ws-far", ops))

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(config.CachePath(root), 0755))
	require.NoError(t, os.WriteFile(config.ConfigPath(root),
		[]byte("clock_skew_limit: 2\n"), 0644))
	fresh := newWorkstationAt(t, root, "ws-new", remote)

	res := fresh.sync(t, Options{})
	assert.Equal(t, 6, res.Applied)
	assert.Equal(t, 6, fresh.store.Len())
}

func TestStatePersistsAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-state.json")

	st, err := LoadState(path)
	require.NoError(t, err)
	st.Applied["ws-x"] = 7
	st.Pushed = 3
	require.NoError(t, st.Save())

	st2, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, 7, st2.Applied["ws-x"])
	assert.Equal(t, 3, st2.Pushed)
}

func mustGet(t *testing.T, st *store.Store, id string) *entry.Entry {
	t.Helper()
	e, ok := st.Get(id)
	require.True(t, ok)
	return e
}
