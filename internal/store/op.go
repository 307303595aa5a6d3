package store

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lorekeep/lore/internal/entry"
)

// OpKind identifies the type of an operation record.
type OpKind string

// Operation kinds. Merge is a synthetic operation appended by sync after
// resolving a conflict; its clock dominates both parents.
const (
	OpInsert    OpKind = "insert"
	OpUpdate    OpKind = "update"
	OpTombstone OpKind = "tombstone"
	OpMerge     OpKind = "merge"
)

// Op is a single record in the append-only operation log. Every op carries
// the full entry payload, so current state is derived purely by replay.
//
// Parent is the clock of the entry revision the op was built on (zero for
// inserts). Two ops on the same id are concurrent when neither is the
// direct successor of the other's revision.
type Op struct {
	Kind      OpKind        `json:"op"`
	EntryID   string        `json:"entry_id"`
	Clock     entry.Clock   `json:"clock"`
	Parent    entry.Clock   `json:"parent"`
	Parents   []entry.Clock `json:"parents,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   *entry.Entry  `json:"payload"`
}

// Validate checks structural validity of an op record.
func (o *Op) Validate() error {
	switch o.Kind {
	case OpInsert, OpUpdate, OpTombstone, OpMerge:
	default:
		return fmt.Errorf("unknown op kind %q", o.Kind)
	}
	if o.EntryID == "" {
		return fmt.Errorf("op has empty entry_id")
	}
	if o.Clock.Zero() {
		return fmt.Errorf("op on %s has zero clock", o.EntryID)
	}
	if o.Payload == nil {
		return fmt.Errorf("op %s on %s has no payload", o.Kind, o.EntryID)
	}
	if o.Payload.ID != o.EntryID {
		return fmt.Errorf("op entry_id %s does not match payload id %s", o.EntryID, o.Payload.ID)
	}
	return nil
}

// Supersedes reports whether o is the direct causal successor of other:
// same entry, built on the revision other produced.
func (o *Op) Supersedes(other *Op) bool {
	if o.EntryID != other.EntryID {
		return false
	}
	if o.Parent.Equal(other.Clock) {
		return true
	}
	for _, p := range o.Parents {
		if p.Equal(other.Clock) {
			return true
		}
	}
	// Ops from one workstation are totally ordered by counter.
	return o.Clock.Workstation == other.Clock.Workstation &&
		other.Clock.Counter < o.Clock.Counter
}

// Concurrent reports whether two ops on the same entry are causally
// unordered: neither supersedes the other.
func Concurrent(a, b *Op) bool {
	return a.EntryID == b.EntryID &&
		!a.Clock.Equal(b.Clock) &&
		!a.Supersedes(b) && !b.Supersedes(a)
}

// MaxOpLineCapacity is the maximum buffer size for reading log lines
// (1MB per line).
const MaxOpLineCapacity = 1024 * 1024

// ReadOps reads all operations from a JSONL log file. A missing file
// returns an empty log. Unparseable lines wrap ErrCorruption with the
// line number so the record can be inspected by hand.
func ReadOps(path string) ([]Op, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening op log: %w", err)
	}
	defer f.Close()

	var ops []Op
	scanner := bufio.NewScanner(f)
	buf := make([]byte, MaxOpLineCapacity)
	scanner.Buffer(buf, MaxOpLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruption, lineNum, err)
		}
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruption, lineNum, err)
		}
		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading op log: %w", err)
	}

	return ops, nil
}

// AppendOps appends operations to the log as a single atomic batch: the
// encoded lines are written in one syscall and synced before returning, so
// a crash leaves either all records or none durably appended.
func AppendOps(path string, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	var buf []byte
	for i := range ops {
		data, err := json.Marshal(&ops[i])
		if err != nil {
			return fmt.Errorf("encoding op %d: %w", i, err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening op log for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("appending ops: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing op log: %w", err)
	}

	return nil
}

// ReadOpsFrom reads operations starting at a byte offset into the log,
// returning the parsed tail, the op count of the tail, and the total bytes
// consumed from the offset. The offset must fall on a line boundary (it
// always does: snapshots record offsets after whole batches).
func ReadOpsFrom(path string, offset int64) ([]Op, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if offset > 0 {
				return nil, 0, fmt.Errorf("%w: log shorter than snapshot offset", ErrCorruption)
			}
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening op log: %w", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, 0, fmt.Errorf("seeking op log: %w", err)
		}
	}

	var ops []Op
	var consumed int64
	scanner := bufio.NewScanner(f)
	buf := make([]byte, MaxOpLineCapacity)
	scanner.Buffer(buf, MaxOpLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		consumed += int64(len(line)) + 1
		if len(line) == 0 {
			continue
		}

		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			return nil, 0, fmt.Errorf("%w: tail line %d: %v", ErrCorruption, lineNum, err)
		}
		if err := op.Validate(); err != nil {
			return nil, 0, fmt.Errorf("%w: tail line %d: %v", ErrCorruption, lineNum, err)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading op log: %w", err)
	}

	return ops, consumed, nil
}

// HashFilePrefix fingerprints the first n raw bytes of the log. Used to
// detect a rewritten log underneath a snapshot without re-parsing the
// absorbed prefix.
func HashFilePrefix(path string, n int64) (string, error) {
	if n == 0 {
		return emptyHash(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening op log: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, n); err != nil {
		return "", fmt.Errorf("hashing op log prefix: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func emptyHash() string {
	h := sha256.New()
	return hex.EncodeToString(h.Sum(nil))
}
