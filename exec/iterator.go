// Package exec implements a Volcano-style pull iterator framework:
// every operator exposes Init/Next and is demand-driven by its parent.
// Grounded on BusTub's execution/*_executor.cpp family
// (SeqScan/Insert/Update/Delete/NestedLoopJoin/HashJoin/Aggregation/
// Distinct), reworked around this core's catalog/heap/hash/txn packages
// in place of BusTub's own.
package exec

import (
	"coredb/catalog"
	"coredb/txn"
	"coredb/types"
)

// Context bundles the collaborators every executor needs: the catalog to
// resolve tables, the lock manager to acquire record locks, and the
// transaction on whose behalf the plan runs.
type Context struct {
	Catalog *catalog.Catalog
	Locks   *txn.LockManager
	Txn     *txn.Transaction
}

// Iterator is the Volcano pull-operator contract: Init resets iteration
// state, Next produces the next tuple or reports end-of-input.
type Iterator interface {
	Init() error
	Next() (types.RowWithRID, bool, error)
}

// IndexWriteType and IndexWriteRecord live on txn.Transaction — aliased
// here so the mutating operators below can refer to them without every
// call site spelling out the txn package name.
type IndexWriteType = txn.IndexWriteType

const (
	WriteInsert = txn.WriteInsert
	WriteDelete = txn.WriteDelete
	WriteUpdate = txn.WriteUpdate
)

type IndexWriteRecord = txn.IndexWriteRecord

// acquireForMutation takes the lock a mutating operator needs on rid: an
// exclusive lock from scratch, or an upgrade if ctx.Txn already holds a
// shared lock there.
func acquireForMutation(ctx *Context, rid types.RID) bool {
	if ctx.Txn.HoldsExclusive(rid) {
		return true
	}
	if ctx.Txn.HoldsShared(rid) {
		return ctx.Locks.LockUpgrade(ctx.Txn, rid)
	}
	return ctx.Locks.LockExclusive(ctx.Txn, rid)
}
