package txn

import (
	"testing"
	"time"

	"coredb/types"
)

func rid(page uint32) types.RID {
	return types.RID{PageID: page, Slot: 0}
}

func TestLockManager_SharedSharedCompatible(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)
	r := rid(1)

	t1 := mgr.Begin(RepeatableRead)
	t2 := mgr.Begin(RepeatableRead)

	if !lm.LockShared(t1, r) {
		t.Fatalf("t1 shared lock should succeed")
	}
	if !lm.LockShared(t2, r) {
		t.Fatalf("t2 shared lock should succeed (S/S compatible)")
	}
}

func TestLockManager_S2WoundWaitOlderWins(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)
	r := rid(1)

	elder := mgr.Begin(RepeatableRead)   // older: lower txn ID
	younger := mgr.Begin(RepeatableRead) // younger: higher txn ID

	// Younger acquires first, then elder's request wounds it.
	if !lm.LockExclusive(younger, r) {
		t.Fatalf("younger's exclusive lock should succeed")
	}

	if !lm.LockExclusive(elder, r) {
		t.Fatalf("elder's exclusive request should succeed by wounding younger")
	}
	if younger.State() != Aborted {
		t.Fatalf("younger should have been wounded, state = %v", younger.State())
	}
}

func TestLockManager_WoundWaitReverseOrderBlocksThenGrants(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)
	r := rid(1)

	older := mgr.Begin(RepeatableRead) // id 1
	younger := mgr.Begin(RepeatableRead) // id 2

	if !lm.LockExclusive(older, r) {
		t.Fatalf("older exclusive lock should succeed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- lm.LockExclusive(younger, r)
	}()

	select {
	case <-done:
		t.Fatalf("younger's request should block while older (lower id) holds the lock")
	case <-time.After(100 * time.Millisecond):
	}

	if !lm.Unlock(older, r) {
		t.Fatalf("unlock should succeed")
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("younger's request should grant after older releases")
		}
	case <-time.After(time.Second):
		t.Fatalf("younger's request never granted after older released")
	}
}

func TestLockManager_S3UpgradeContention(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)
	r := rid(1)

	t2 := mgr.Begin(RepeatableRead)
	t3 := mgr.Begin(RepeatableRead)

	if !lm.LockShared(t2, r) || !lm.LockShared(t3, r) {
		t.Fatalf("both shared locks should succeed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- lm.LockUpgrade(t2, r)
	}()

	select {
	case <-done:
		t.Fatalf("upgrade should block while t3 still holds a shared lock")
	case <-time.After(100 * time.Millisecond):
	}

	if !lm.Unlock(t3, r) {
		t.Fatalf("t3 unlock should succeed")
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("upgrade should grant once t3 releases")
		}
	case <-time.After(time.Second):
		t.Fatalf("upgrade never granted after t3 released")
	}
	if !t2.HoldsExclusive(r) {
		t.Fatalf("t2 should hold exclusive after upgrade")
	}
}

func TestLockManager_S3SecondUpgraderAborts(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)
	r := rid(1)

	t2 := mgr.Begin(RepeatableRead)
	t3 := mgr.Begin(RepeatableRead)

	if !lm.LockShared(t2, r) || !lm.LockShared(t3, r) {
		t.Fatalf("both shared locks should succeed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- lm.LockUpgrade(t2, r)
	}()
	time.Sleep(50 * time.Millisecond)

	if lm.LockUpgrade(t3, r) {
		t.Fatalf("second upgrader should be rejected")
	}
	if t3.State() != Aborted {
		t.Fatalf("second upgrader should be aborted, got %v", t3.State())
	}

	if !lm.Unlock(t3, r) {
		// The rejected upgrade leaves t3's granted shared request in the
		// queue, so this Unlock releases it; that release is what lets
		// t2's pending upgrade grant and the receive below return.
	}
	<-done
}

func TestLockManager_StrictTwoPhaseLocking(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)

	txn := mgr.Begin(RepeatableRead)
	r1, r2 := rid(1), rid(2)

	if !lm.LockExclusive(txn, r1) {
		t.Fatalf("first exclusive lock should succeed")
	}
	if !lm.Unlock(txn, r1) {
		t.Fatalf("unlock should succeed")
	}
	if txn.State() != Shrinking {
		t.Fatalf("REPEATABLE_READ unlock should enter SHRINKING, got %v", txn.State())
	}

	if lm.LockExclusive(txn, r2) {
		t.Fatalf("acquiring a new lock while SHRINKING must fail")
	}
	if txn.State() != Aborted {
		t.Fatalf("violating 2PL should abort the transaction, got %v", txn.State())
	}
}

func TestLockManager_ReadUncommittedRejectsShared(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)

	txn := mgr.Begin(ReadUncommitted)
	if lm.LockShared(txn, rid(1)) {
		t.Fatalf("READ_UNCOMMITTED must reject shared locks")
	}
	if txn.State() != Aborted {
		t.Fatalf("expected ABORTED, got %v", txn.State())
	}
}

func TestLockManager_ReadCommittedSharedDropWithoutShrinking(t *testing.T) {
	mgr := NewManager()
	lm := NewLockManager(mgr)
	r := rid(1)

	txn := mgr.Begin(ReadCommitted)
	if !lm.LockShared(txn, r) {
		t.Fatalf("shared lock should succeed under READ_COMMITTED")
	}
	if !lm.Unlock(txn, r) {
		t.Fatalf("unlock should succeed")
	}
	if txn.State() != Growing {
		t.Fatalf("dropping a shared lock under READ_COMMITTED must not leave GROWING, got %v", txn.State())
	}

	if !lm.LockExclusive(txn, rid(2)) {
		t.Fatalf("txn should still be able to acquire locks while GROWING")
	}
	if !lm.Unlock(txn, rid(2)) {
		t.Fatalf("unlock should succeed")
	}
	if txn.State() != Shrinking {
		t.Fatalf("releasing an exclusive lock under READ_COMMITTED must enter SHRINKING, got %v", txn.State())
	}
}
