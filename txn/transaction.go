// Package txn implements the transaction registry and the two-phase,
// wound-wait lock manager. Grounded on
// storage_engine/transaction_manager for the Begin/Commit/Abort registry
// shape, and on leftmike-maho's engine/service.LockService for the
// mutex-guarded queue-of-waiters pattern the lock manager itself uses.
package txn

import (
	"sync"

	"coredb/types"
)

// IsolationLevel controls which locks a read needs to take and which
// unlocks move a transaction from GROWING to SHRINKING.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// State is a transaction's position in the strict two-phase-locking state
// machine: GROWING may acquire and release locks, SHRINKING may only
// release, and COMMITTED/ABORTED are terminal.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IndexWriteType classifies one entry in a transaction's index-write-set,
// the undo-log bookkeeping mutating operators need to invert their index
// changes on rollback.
type IndexWriteType int

const (
	WriteInsert IndexWriteType = iota
	WriteDelete
	WriteUpdate
)

// IndexWriteRecord carries enough information to invert one index change
// made by a mutating operator: which table/key, what the tuple looked
// like before and after, and which kind of change it was.
type IndexWriteRecord struct {
	Type   IndexWriteType
	Table  string
	RID    types.RID
	OldTup types.Row
	NewTup types.Row
}

// Transaction is the unit the lock manager and executors coordinate
// around. Lower ID means older, per the wound-wait protocol.
type Transaction struct {
	mu             sync.Mutex
	ID             int64
	Isolation      IsolationLevel
	state          State
	sharedLocks    map[types.RID]struct{}
	exclusiveLocks map[types.RID]struct{}
	indexWrites    []IndexWriteRecord
}

func newTransaction(id int64, isolation IsolationLevel) *Transaction {
	return &Transaction{
		ID:             id,
		Isolation:      isolation,
		state:          Growing,
		sharedLocks:    make(map[types.RID]struct{}),
		exclusiveLocks: make(map[types.RID]struct{}),
	}
}

// AppendIndexWrite records one index change so it can be inverted if the
// transaction aborts.
func (t *Transaction) AppendIndexWrite(rec IndexWriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexWrites = append(t.indexWrites, rec)
}

// IndexWrites returns the transaction's index-write-set in the order the
// changes were made.
func (t *Transaction) IndexWrites() []IndexWriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IndexWriteRecord, len(t.indexWrites))
	copy(out, t.indexWrites)
	return out
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// HoldsShared/HoldsExclusive are read-only probes used by the executors to
// decide whether an upgrade is needed instead of a fresh exclusive request.
func (t *Transaction) HoldsShared(rid types.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

func (t *Transaction) HoldsExclusive(rid types.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLocks[rid]
	return ok
}

func (t *Transaction) lockCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sharedLocks) + len(t.exclusiveLocks)
}

func (t *Transaction) addShared(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks[rid] = struct{}{}
}

func (t *Transaction) addExclusive(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLocks[rid] = struct{}{}
	delete(t.sharedLocks, rid)
}

func (t *Transaction) removeAll(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	delete(t.exclusiveLocks, rid)
}

func (t *Transaction) releaseShared(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
}

func (t *Transaction) releaseExclusive(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.exclusiveLocks, rid)
}
