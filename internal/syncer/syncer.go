// Package syncer reconciles operation logs across workstations.
//
// Each workstation pushes its authored ops to logs/<workstation>.jsonl on
// a shared remote and pulls the unseen suffix of every peer's log.
// Concurrent edits to the same entry are resolved by a pluggable
// strategy, and every resolution appends a synthetic merge op whose clock
// dominates both parents, so both sides converge to the same state no
// matter which pulled first.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/store"
)

// Strategy selects how concurrent divergent ops on one entry resolve.
type Strategy string

const (
	StrategyMerge       Strategy = "merge"
	StrategyTheirs      Strategy = "theirs"
	StrategyOurs        Strategy = "ours"
	StrategyInteractive Strategy = "interactive"
)

// ParseStrategy validates a strategy name from the CLI.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMerge, StrategyTheirs, StrategyOurs, StrategyInteractive:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q (want merge, theirs, ours, or interactive)", s)
}

// Choice is an interactive per-conflict resolution.
type Choice string

const (
	ChooseOurs   Choice = "ours"
	ChooseTheirs Choice = "theirs"
	ChooseMerge  Choice = "merge"
)

// Options configures one sync invocation.
type Options struct {
	Strategy Strategy
	PullOnly bool
	PushOnly bool
	// Resolutions maps entry id to a choice for the interactive strategy.
	// A conflicted id with no resolution stays unresolved.
	Resolutions map[string]Choice
}

// Conflict is one pair of concurrent divergent ops on the same entry.
type Conflict struct {
	EntryID string   `json:"entry_id"`
	Peer    string   `json:"peer"`
	Ours    store.Op `json:"ours"`
	Theirs  store.Op `json:"theirs"`
}

// Result summarizes one sync invocation. Conflicts holds only unresolved
// conflicts; resolved ones are counted in Merged.
type Result struct {
	Peers     []string   `json:"peers"`
	Pulled    int        `json:"pulled"`  // remote ops fetched
	Applied   int        `json:"applied"` // ops appended to the local log
	Merged    int        `json:"merged"`  // conflicts resolved
	Pushed    int        `json:"pushed"`  // local ops appended to the remote
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Retry/backoff parameters for transient transport failures.
const (
	maxAttempts = 3
	backoffBase = 250 * time.Millisecond
)

// Engine performs sync runs against one store and one transport.
type Engine struct {
	store   *store.Store
	state   *State
	t       Transport
	cfg     *config.Config
	log     *zap.Logger
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
}

// New builds a sync engine. State is loaded from the store's
// sync-state.json.
func New(st *store.Store, t Transport, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	state, err := LoadState(config.SyncStatePath(st.Root()))
	if err != nil {
		return nil, err
	}
	return &Engine{
		store: st,
		state: state,
		t:     t,
		cfg:   st.Config(),
		log:   logger,
		// Remote round-trips are capped; local dir transports are fast
		// enough that the limiter never bites.
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		sleep:   sleepCtx,
	}, nil
}

// Sync pulls unseen peer ops, resolves conflicts per the strategy, then
// pushes locally-authored ops. Unresolved conflicts are returned in the
// result alongside ErrConflictUnresolved.
func (e *Engine) Sync(ctx context.Context, opts Options) (*Result, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyMerge
	}
	res := &Result{}

	if !opts.PushOnly {
		if err := e.pull(ctx, opts, res); err != nil {
			return res, err
		}
	}
	if !opts.PullOnly {
		if err := e.push(ctx, res); err != nil {
			return res, err
		}
	}
	if len(res.Conflicts) > 0 {
		return res, fmt.Errorf("%w: %d conflicts need manual resolution", ErrConflictUnresolved, len(res.Conflicts))
	}
	return res, nil
}

// pull fetches and applies each peer's unseen log suffix. Each peer's
// batch applies atomically; a peer with unresolved conflicts is skipped
// whole, so its high-water mark does not advance and the next sync
// retries it.
func (e *Engine) pull(ctx context.Context, opts Options, res *Result) error {
	var peers []string
	err := e.withRetry(ctx, "list workstations", func() error {
		var lerr error
		peers, lerr = e.t.Workstations(ctx)
		return lerr
	})
	if err != nil {
		return err
	}

	heads, seen, err := e.localHistory()
	if err != nil {
		return err
	}

	local := e.store.Workstation()
	for _, peer := range peers {
		if peer == local {
			continue
		}
		res.Peers = append(res.Peers, peer)

		since := e.state.Applied[peer]
		var ops []store.Op
		err := e.withRetry(ctx, "fetch "+peer, func() error {
			var ferr error
			ops, ferr = e.t.Fetch(ctx, peer, since)
			return ferr
		})
		if err != nil {
			return err
		}
		res.Pulled += len(ops)
		if len(ops) == 0 {
			continue
		}

		plan, err := e.planBatch(opts, heads, seen, peer, ops)
		if err != nil {
			return err
		}
		if len(plan.conflicts) > 0 {
			res.Conflicts = append(res.Conflicts, plan.conflicts...)
			e.log.Warn("peer batch deferred on unresolved conflicts",
				zap.String("peer", peer), zap.Int("conflicts", len(plan.conflicts)))
			continue
		}

		if err := e.store.AppendOps(plan.batch); err != nil {
			return err
		}
		heads, seen = plan.heads, plan.seen
		res.Applied += len(plan.batch)
		res.Merged += plan.merged

		e.state.Applied[peer] = since + len(ops)
		if err := e.state.Save(); err != nil {
			return err
		}
		e.log.Info("applied peer ops", zap.String("peer", peer),
			zap.Int("fetched", len(ops)), zap.Int("applied", len(plan.batch)))
	}
	return nil
}

// batchPlan is the outcome of classifying one peer's fetched ops. heads
// and seen are the caller's maps advanced past the batch; the caller
// adopts them only when the batch actually applies.
type batchPlan struct {
	batch     []store.Op
	conflicts []Conflict
	merged    int
	heads     map[string]store.Op
	seen      map[string]bool
}

// planBatch orders a peer's ops into the batch to append locally,
// resolving conflicts per the strategy. It returns the unresolved
// conflicts instead of a batch when any conflict lacks a resolution.
func (e *Engine) planBatch(opts Options, baseHeads map[string]store.Op, baseSeen map[string]bool, peer string, ops []store.Op) (*batchPlan, error) {
	plan := &batchPlan{
		heads: make(map[string]store.Op, len(baseHeads)),
		seen:  make(map[string]bool, len(baseSeen)),
	}
	for k, v := range baseHeads {
		plan.heads[k] = v
	}
	for k := range baseSeen {
		plan.seen[k] = true
	}

	// Clocks referenced as parents later in this same batch: a conflict
	// whose local head is among them was already resolved on the peer, and
	// the resolving merge op is on its way.
	parentRefs := make(map[string]bool)
	for i := range ops {
		if !ops[i].Parent.Zero() {
			parentRefs[ops[i].Parent.String()] = true
		}
		for _, p := range ops[i].Parents {
			parentRefs[p.String()] = true
		}
	}

	// Lamport receive rule during planning: the store counter only advances
	// once the batch applies, so bound each op against a running max. A
	// fresh workstation pulling a long history is then limited by per-op
	// jumps, not by the final counter of the whole log.
	maxCounter := e.store.Counter()

	for i := range ops {
		op := ops[i]

		if op.Clock.Counter > maxCounter+e.cfg.ClockSkewLimit {
			return nil, fmt.Errorf("%w: op %s from %s jumps counter to %d",
				ErrClockSkew, op.EntryID, peer, op.Clock.Counter)
		}
		if op.Clock.Counter > maxCounter {
			maxCounter = op.Clock.Counter
		}

		if plan.seen[op.Clock.String()] {
			continue // already applied on an earlier sync
		}
		plan.seen[op.Clock.String()] = true

		head, exists := plan.heads[op.EntryID]
		switch {
		case !exists || op.Supersedes(&head):
			plan.batch = append(plan.batch, op)
			plan.heads[op.EntryID] = op

		case head.Supersedes(&op) || head.Clock.Equal(op.Clock):
			// Stale: local state is already past it. Keep it out of the log.

		case head.Payload != nil && op.Payload != nil && head.Payload.Equal(op.Payload):
			// Concurrent but byte-equal content (both sides computed the
			// same merge independently). Record it and pick a winner by
			// clock order so every workstation converges on the same head.
			plan.batch = append(plan.batch, op)
			if head.Clock.Less(op.Clock) {
				plan.heads[op.EntryID] = op
			}

		case parentRefs[head.Clock.String()]:
			// The peer already resolved this divergence; apply the op as
			// history and let the upcoming merge op settle the head.
			plan.batch = append(plan.batch, op)

		default:
			// Concurrent divergence: exactly one conflict per pair.
			choice, ok := e.resolve(opts, op.EntryID)
			if !ok {
				plan.conflicts = append(plan.conflicts, Conflict{
					EntryID: op.EntryID, Peer: peer, Ours: head, Theirs: op,
				})
				continue
			}
			mergeOp := e.buildMergeOp(choice, head, op)
			plan.batch = append(plan.batch, op, *mergeOp)
			plan.heads[op.EntryID] = *mergeOp
			plan.seen[mergeOp.Clock.String()] = true
			plan.merged++
		}
	}
	return plan, nil
}

// resolve maps a conflicted entry to a resolution choice, or reports that
// none is available.
func (e *Engine) resolve(opts Options, entryID string) (Choice, bool) {
	switch opts.Strategy {
	case StrategyMerge:
		return ChooseMerge, true
	case StrategyTheirs:
		return ChooseTheirs, true
	case StrategyOurs:
		return ChooseOurs, true
	case StrategyInteractive:
		c, ok := opts.Resolutions[entryID]
		return c, ok
	}
	return "", false
}

// buildMergeOp appends the Lamport receive rule for the incoming clock,
// then issues a fresh clock that dominates both parents and wraps the
// resolved payload in a merge op.
func (e *Engine) buildMergeOp(choice Choice, ours, theirs store.Op) *store.Op {
	e.store.ObserveCounter(theirs.Clock.Counter)
	e.store.ObserveCounter(ours.Clock.Counter)
	clock := e.store.NextClock()

	var payload *entry.Entry
	switch choice {
	case ChooseOurs:
		payload = ours.Payload.Clone()
	case ChooseTheirs:
		payload = theirs.Payload.Clone()
	default:
		payload = mergeEntries(ours.Payload, theirs.Payload)
	}
	payload.Clock = clock
	payload.Origin = entry.OriginSync

	return &store.Op{
		Kind:      store.OpMerge,
		EntryID:   ours.EntryID,
		Clock:     clock,
		Parent:    ours.Clock,
		Parents:   []entry.Clock{ours.Clock, theirs.Clock},
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// push appends the unseen suffix of locally-authored ops to this
// workstation's remote log.
func (e *Engine) push(ctx context.Context, res *Result) error {
	local := e.store.Workstation()

	all, err := e.store.AllOps()
	if err != nil {
		return err
	}
	var authored []store.Op
	for _, op := range all {
		if op.Clock.Workstation == local {
			authored = append(authored, op)
		}
	}

	var remote int
	err = e.withRetry(ctx, "count "+local, func() error {
		var cerr error
		remote, cerr = e.t.Count(ctx, local)
		return cerr
	})
	if err != nil {
		return err
	}
	if remote > len(authored) {
		return fmt.Errorf("remote log for %s has %d ops, local only %d", local, remote, len(authored))
	}

	suffix := authored[remote:]
	if len(suffix) == 0 {
		return nil
	}
	err = e.withRetry(ctx, "push "+local, func() error {
		return e.t.Append(ctx, local, suffix)
	})
	if err != nil {
		return err
	}

	res.Pushed = len(suffix)
	e.state.Pushed = len(authored)
	if err := e.state.Save(); err != nil {
		return err
	}
	e.log.Info("pushed ops", zap.Int("count", len(suffix)))
	return nil
}

// localHistory replays the local log into per-entry heads and a set of
// every clock already present, for duplicate and staleness checks.
func (e *Engine) localHistory() (map[string]store.Op, map[string]bool, error) {
	all, err := e.store.AllOps()
	if err != nil {
		return nil, nil, err
	}
	heads := make(map[string]store.Op)
	seen := make(map[string]bool, len(all))
	for _, op := range all {
		// The head is the revision with the greatest clock, matching how
		// state replay settles concurrent ops. Log position is not enough:
		// after two workstations exchange independently-computed merges,
		// the log can end with the clock-losing one.
		if head, ok := heads[op.EntryID]; !ok || head.Clock.Less(op.Clock) {
			heads[op.EntryID] = op
		}
		seen[op.Clock.String()] = true
	}
	return heads, seen, nil
}

// withRetry runs fn up to maxAttempts times, backing off exponentially on
// transient transport failures. Other errors surface immediately.
func (e *Engine) withRetry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lerr := e.limiter.Wait(ctx); lerr != nil {
			return lerr
		}
		err = fn()
		if err == nil || !errors.Is(err, ErrNetwork) {
			return err
		}
		delay := backoffBase << attempt
		e.log.Warn("transport failure, retrying",
			zap.String("op", what), zap.Duration("backoff", delay), zap.Error(err))
		if serr := e.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
