package txn

import (
	"fmt"
	"sync"
)

// Manager is a process-wide registry of transactions keyed by ID. The lock
// manager stores txn IDs, never transaction pointers, and resolves through
// Manager.Get when it needs to inspect or mutate a transaction's state —
// avoiding an owning cycle, the same indirection BusTub's
// TransactionManager::GetTransaction(id) uses.
type Manager struct {
	mu     sync.Mutex
	nextID int64
	active map[int64]*Transaction
}

func NewManager() *Manager {
	return &Manager{
		nextID: 1,
		active: make(map[int64]*Transaction),
	}
}

// Begin starts a new transaction and registers it. Transaction IDs
// increase monotonically: a lower ID is strictly older, which is the
// ordering the wound-wait protocol relies on.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	t := newTransaction(id, isolation)
	m.active[id] = t
	return t
}

// Get resolves a txn ID to its Transaction, or nil if it is not (or no
// longer) active.
func (m *Manager) Get(id int64) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// Commit marks txn committed and drops it from the active registry. The
// caller (transaction manager's owner, outside this core) is responsible
// for having released all locks first.
func (m *Manager) Commit(txn *Transaction) error {
	if txn.State() == Aborted {
		return fmt.Errorf("txn: %d was already aborted, cannot commit", txn.ID)
	}
	txn.setState(Committed)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, txn.ID)
	return nil
}

// Abort marks txn aborted and drops it from the active registry. Safe to
// call on a transaction the lock manager already wounded (idempotent).
func (m *Manager) Abort(txn *Transaction) {
	txn.setState(Aborted)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, txn.ID)
}
