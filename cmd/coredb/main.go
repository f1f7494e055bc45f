// coredb seeds a fresh database, runs a short executor workload against
// it, and prints a diagnostic summary of the resulting buffer pool.
// Run: go run ./cmd/coredb
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"coredb/catalog"
	"coredb/exec"
	"coredb/storage/buffer"
	"coredb/storage/disk"
	"coredb/txn"
	"coredb/types"
)

func main() {
	dbRoot := flag.String("db", "databases/coredb", "database root directory")
	poolSize := flag.Int("pool", 64, "buffer pool frame count")
	flag.Parse()

	if err := os.MkdirAll(*dbRoot, 0755); err != nil {
		log.Fatalf("coredb: creating db root: %v", err)
	}

	diskMgr := disk.NewManager()
	pool := buffer.NewPool(*poolSize, diskMgr)
	cat := catalog.New(*dbRoot, pool, diskMgr)
	txnMgr := txn.NewManager()
	lockMgr := txn.NewLockManager(txnMgr)

	if err := seed(cat, txnMgr, lockMgr); err != nil {
		log.Fatalf("coredb: seed workload failed: %v", err)
	}

	fmt.Println(pool.Stats())
}

func seed(cat *catalog.Catalog, txnMgr *txn.Manager, lockMgr *txn.LockManager) error {
	schema := types.TableSchema{
		TableName: "students",
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INT", IsPrimaryKey: true},
			{Name: "name", Type: "VARCHAR"},
			{Name: "gpa", Type: "FLOAT"},
		},
	}
	if _, err := cat.CreateTable(schema); err != nil {
		return fmt.Errorf("creating students table: %w", err)
	}

	insertTxn := txnMgr.Begin(txn.RepeatableRead)
	ctx := &exec.Context{Catalog: cat, Locks: lockMgr, Txn: insertTxn}

	student := func(id int64, name string, gpa float64) types.Row {
		row := types.NewRow()
		row.Set("id", id)
		row.Set("name", name)
		row.Set("gpa", gpa)
		return row
	}

	rows := []types.Row{
		student(1, "Ada Lovelace", 3.9),
		student(2, "Alan Turing", 4.0),
		student(3, "Grace Hopper", 3.8),
	}
	inserted := 0
	ins := exec.NewRawInsert(ctx, "students", rows)
	if err := ins.Init(); err != nil {
		return err
	}
	for {
		_, ok, err := ins.Next()
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if !ok {
			break
		}
		inserted++
	}
	if err := txnMgr.Commit(insertTxn); err != nil {
		return err
	}
	fmt.Printf("inserted %d rows into students\n", inserted)

	scanTxn := txnMgr.Begin(txn.RepeatableRead)
	scanCtx := &exec.Context{Catalog: cat, Locks: lockMgr, Txn: scanTxn}
	scan := exec.NewSeqScan(scanCtx, "students", nil)
	if err := scan.Init(); err != nil {
		return err
	}
	for {
		out, ok, err := scan.Next()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if !ok {
			break
		}
		fmt.Printf("row %v: %v\n", out.RID, out.Row.Values)
	}
	return txnMgr.Commit(scanTxn)
}
