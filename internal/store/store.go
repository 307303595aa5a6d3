// Package store implements the append-only, causally ordered entry store.
//
// The operation log (.lore/oplog.jsonl) is the single source of truth;
// current state is derived by replay. A SQLite snapshot absorbs the log
// prefix so open only re-parses the tail, and the tail is what sync
// exchanges between workstations.
package store

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/entry"
)

// ApplyHook is invoked synchronously after a batch of operations commits,
// while the writer lock is still held. The indexer registers one so store
// and index never disagree.
type ApplyHook func(ops []Op)

// Store is a handle on one lore repository. Multiple independent stores
// may be open in one process; there is no global instance.
type Store struct {
	root        string
	cfg         *config.Config
	workstation string
	log         *zap.Logger

	lock *FileLock // nil when opened read-only

	mu           sync.RWMutex
	entries      map[string]*entry.Entry
	tailOps      []Op // ops not yet absorbed by the snapshot
	snapshotOps  int  // op count absorbed by the snapshot
	snapshotSize int64
	counter      uint64 // highest logical counter seen anywhere
	hooks        []ApplyHook
}

// Options configures Open.
type Options struct {
	// ReadOnly skips the writer lock; mutations return ErrReadOnly.
	ReadOnly bool
	// Workstation overrides the machine's workstation id (tests).
	Workstation string
	// Logger defaults to a nop logger.
	Logger *zap.Logger
	// FullReplay ignores the snapshot and replays the whole log
	// (used by rebuild after corruption repair).
	FullReplay bool
}

// Open opens the store rooted at root, acquiring the writer lock unless
// opts.ReadOnly is set. The caller must Close the returned handle.
func Open(root string, opts Options) (*Store, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	ws := opts.Workstation
	if ws == "" {
		ws, err = config.WorkstationID()
		if err != nil {
			return nil, fmt.Errorf("resolving workstation id: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		root:        root,
		cfg:         cfg,
		workstation: ws,
		log:         logger,
		entries:     make(map[string]*entry.Entry),
	}

	if !opts.ReadOnly {
		lock, err := AcquireLock(config.LockPath(root))
		if err != nil {
			return nil, err
		}
		s.lock = lock
	}

	if err := s.load(opts.FullReplay); err != nil {
		if s.lock != nil {
			s.lock.Release()
		}
		return nil, err
	}

	return s, nil
}

// load restores state from the snapshot plus the log tail, falling back to
// a full replay when the snapshot is missing or no longer matches the log.
func (s *Store) load(fullReplay bool) error {
	logPath := config.OpLogPath(s.root)

	if !fullReplay {
		entries, meta, err := loadSnapshot(config.SnapshotPath(s.root))
		if err != nil {
			s.log.Warn("snapshot unreadable, replaying full log", zap.Error(err))
		} else if entries != nil {
			prefixHash, herr := HashFilePrefix(logPath, meta.AppliedBytes)
			if herr == nil && prefixHash == meta.LogHash {
				tail, _, terr := ReadOpsFrom(logPath, meta.AppliedBytes)
				if terr != nil {
					return terr
				}
				s.entries = entries
				s.snapshotOps = meta.AppliedOps
				s.snapshotSize = meta.AppliedBytes
				s.counter = meta.MaxCounter
				for i := range tail {
					s.applyLocked(&tail[i])
				}
				s.tailOps = tail
				return nil
			}
			s.log.Warn("snapshot does not match log, replaying full log")
		}
	}

	ops, _, err := ReadOpsFrom(logPath, 0)
	if err != nil {
		return err
	}
	s.entries = make(map[string]*entry.Entry)
	s.snapshotOps = 0
	s.snapshotSize = 0
	s.counter = 0
	for i := range ops {
		s.applyLocked(&ops[i])
	}
	s.tailOps = ops
	return nil
}

// Close releases the writer lock. Reads against a closed handle still see
// the last committed state, matching the file on disk.
func (s *Store) Close() error {
	if s.lock != nil {
		return s.lock.Release()
	}
	return nil
}

// Root returns the repository root path.
func (s *Store) Root() string { return s.root }

// Config returns the repository configuration loaded at open.
func (s *Store) Config() *config.Config { return s.cfg }

// Workstation returns the id stamped onto clocks produced by this handle.
func (s *Store) Workstation() string { return s.workstation }

// AddApplyHook registers a hook called synchronously after each committed
// batch. Hooks also run during Open replay via ReplayInto.
func (s *Store) AddApplyHook(h ApplyHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// NextClock advances the local Lamport counter and returns a fresh clock.
func (s *Store) NextClock() entry.Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextClockLocked()
}

func (s *Store) nextClockLocked() entry.Clock {
	s.counter++
	return entry.Clock{Workstation: s.workstation, Counter: s.counter}
}

// ObserveCounter applies the Lamport receive rule for a counter seen in a
// remote op, so clocks issued later dominate everything already seen.
func (s *Store) ObserveCounter(c uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c > s.counter {
		s.counter = c
	}
}

// Counter returns the highest logical counter seen so far.
func (s *Store) Counter() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter
}

// Get returns the current version of an entry, tombstoned or not.
func (s *Store) Get(id string) (*entry.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Filter selects entries for List. Zero values mean "no constraint".
type Filter struct {
	Categories        []entry.Category
	Confidences       []entry.Confidence
	Tags              []string
	UpdatedAfter      time.Time
	UpdatedBefore     time.Time
	IncludeTombstoned bool
}

// Match reports whether an entry passes the filter.
func (f *Filter) Match(e *entry.Entry) bool {
	if e.Tombstoned && !f.IncludeTombstoned {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if len(f.Confidences) > 0 && !containsConfidence(f.Confidences, e.Confidence) {
		return false
	}
	if !f.UpdatedAfter.IsZero() && e.UpdatedAt.Before(f.UpdatedAfter) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && e.UpdatedAt.After(f.UpdatedBefore) {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, tag := range e.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// List returns a point-in-time copy of all entries passing the filter.
// Concurrent writers never mutate returned entries.
func (s *Store) List(f Filter) []*entry.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entry.Entry
	for _, e := range s.entries {
		if f.Match(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Len returns the number of live (non-tombstoned) entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.Tombstoned {
			n++
		}
	}
	return n
}

// Put writes a user-driven insert or edit. A zero ID means insert; the
// assigned id is returned. This is the only path that may lower an entry's
// confidence, since it represents an explicit user action.
func (s *Store) Put(e *entry.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.prepareLocked(e, true)
	if err != nil {
		return "", err
	}
	if err := s.commitLocked([]Op{*op}); err != nil {
		return "", err
	}
	return op.EntryID, nil
}

// PutBatch writes a set of automated inserts/updates as one atomic batch:
// either every entry commits or none do. Automated writes never lower an
// existing entry's confidence; the stored level is kept instead.
func (s *Store) PutBatch(entries []*entry.Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]Op, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		op, err := s.prepareLocked(e, false)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
		ids = append(ids, op.EntryID)
	}
	if err := s.commitLocked(ops); err != nil {
		return nil, err
	}
	return ids, nil
}

// Touch bumps an entry's updated_at without changing its content. Used by
// idempotent re-extraction to record that a source still mentions it.
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[id]
	if !ok || prev.Tombstoned {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e := prev.Clone()
	now := time.Now().UTC()
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
	clock := s.nextClockLocked()
	op := Op{
		Kind:      OpUpdate,
		EntryID:   id,
		Clock:     clock,
		Parent:    prev.Clock,
		Timestamp: now,
		Payload:   e,
	}
	op.Payload.Clock = clock
	return s.commitLocked([]Op{op})
}

// Delete writes a tombstone for the entry. The record stays in the log so
// the deletion propagates through sync.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if prev.Tombstoned {
		return nil
	}

	e := prev.Clone()
	e.Tombstoned = true
	now := time.Now().UTC()
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
	clock := s.nextClockLocked()
	e.Clock = clock
	op := Op{
		Kind:      OpTombstone,
		EntryID:   id,
		Clock:     clock,
		Parent:    prev.Clock,
		Timestamp: now,
		Payload:   e,
	}
	return s.commitLocked([]Op{op})
}

// AppendOps appends pre-built operations (remote ops and synthetic merges
// from sync) as one atomic batch and applies them to state. The caller is
// responsible for ordering them causally.
func (s *Store) AppendOps(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return err
		}
	}
	return s.commitLocked(ops)
}

// prepareLocked normalizes an entry and builds its op. userEdit permits
// confidence downgrades; automated paths clamp to the stored level.
func (s *Store) prepareLocked(e *entry.Entry, userEdit bool) (*Op, error) {
	if s.lock == nil {
		return nil, ErrReadOnly
	}

	e = e.Clone()
	now := time.Now().UTC()

	kind := OpInsert
	var parent entry.Clock
	if e.ID == "" {
		e.ID = entry.NewID()
		e.CreatedAt = now
	} else if prev, ok := s.entries[e.ID]; ok {
		kind = OpUpdate
		parent = prev.Clock
		e.CreatedAt = prev.CreatedAt
		if !userEdit && e.Confidence.Rank() < prev.Confidence.Rank() {
			e.Confidence = prev.Confidence
		}
		if prev.UpdatedAt.After(now) {
			// Wall clocks moved backwards; keep updated_at monotonic.
			now = prev.UpdatedAt
		}
	} else {
		e.CreatedAt = now
	}

	e.UpdatedAt = now
	if e.Origin == "" {
		e.Origin = entry.OriginManual
	}
	e.NormalizeTags()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	clock := s.nextClockLocked()
	e.Clock = clock

	return &Op{
		Kind:      kind,
		EntryID:   e.ID,
		Clock:     clock,
		Parent:    parent,
		Timestamp: now,
		Payload:   e,
	}, nil
}

// commitLocked durably appends a batch and applies it to in-memory state.
// The file write happens first; if it fails, state is untouched.
func (s *Store) commitLocked(ops []Op) error {
	if s.lock == nil {
		return ErrReadOnly
	}

	if err := AppendOps(config.OpLogPath(s.root), ops); err != nil {
		return err
	}

	for i := range ops {
		s.applyLocked(&ops[i])
	}
	s.tailOps = append(s.tailOps, ops...)

	for _, h := range s.hooks {
		h(ops)
	}

	s.log.Debug("committed ops", zap.Int("count", len(ops)))
	return nil
}

// applyLocked folds one op into current state.
func (s *Store) applyLocked(op *Op) {
	e := op.Payload.Clone()
	e.Clock = op.Clock
	if op.Kind == OpTombstone {
		e.Tombstoned = true
	}

	if prev, ok := s.entries[e.ID]; ok {
		if e.Clock.Less(prev.Clock) {
			// A concurrent op that lost to the current revision. Causal
			// successors always carry greater clocks, so keeping the higher
			// clock makes replay independent of append order. The counter
			// still advances below.
			if op.Clock.Counter > s.counter {
				s.counter = op.Clock.Counter
			}
			return
		}
		// updated_at never decreases for a given id.
		if e.UpdatedAt.Before(prev.UpdatedAt) {
			e.UpdatedAt = prev.UpdatedAt
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = prev.CreatedAt
		}
	}

	s.entries[e.ID] = e
	if op.Clock.Counter > s.counter {
		s.counter = op.Clock.Counter
	}
}

// OpCount returns the total number of ops in the log.
func (s *Store) OpCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotOps + len(s.tailOps)
}

// TailLen returns the number of ops not yet absorbed by the snapshot.
func (s *Store) TailLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tailOps)
}

// AllOps reads the complete op log from disk, including the compacted
// prefix. Sync uses this to serve peers that are further behind than the
// local snapshot.
func (s *Store) AllOps() ([]Op, error) {
	return ReadOps(config.OpLogPath(s.root))
}

// OpsSince returns ops at log positions >= n. Positions within the
// in-memory tail are served without touching the absorbed prefix.
func (s *Store) OpsSince(n int) ([]Op, error) {
	s.mu.RLock()
	snapOps := s.snapshotOps
	var tail []Op
	if n >= snapOps {
		k := n - snapOps
		if k > len(s.tailOps) {
			k = len(s.tailOps)
		}
		tail = append([]Op(nil), s.tailOps[k:]...)
	}
	s.mu.RUnlock()

	if n >= snapOps {
		return tail, nil
	}

	all, err := s.AllOps()
	if err != nil {
		return nil, err
	}
	if n > len(all) {
		n = len(all)
	}
	return all[n:], nil
}

// Compact materializes current state into the SQLite snapshot so future
// opens replay only ops appended afterwards. Advisory: skipping it never
// affects correctness, only open cost.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return ErrReadOnly
	}

	logPath := config.OpLogPath(s.root)
	size, err := fileSize(logPath)
	if err != nil {
		return err
	}
	hash, err := HashFilePrefix(logPath, size)
	if err != nil {
		return err
	}

	meta := snapshotMeta{
		AppliedOps:   s.snapshotOps + len(s.tailOps),
		AppliedBytes: size,
		LogHash:      hash,
		MaxCounter:   s.counter,
		CompactedAt:  time.Now().UTC(),
	}
	if err := writeSnapshot(config.SnapshotPath(s.root), s.entries, meta); err != nil {
		return err
	}

	s.snapshotOps = meta.AppliedOps
	s.snapshotSize = size
	s.tailOps = nil
	s.log.Info("compacted store",
		zap.Int("ops", meta.AppliedOps), zap.Int("entries", len(s.entries)))
	return nil
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat op log: %w", err)
	}
	return st.Size(), nil
}

func containsCategory(set []entry.Category, c entry.Category) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}

func containsConfidence(set []entry.Confidence, c entry.Confidence) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}
