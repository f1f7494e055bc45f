package hash

import (
	"fmt"
	"testing"

	"coredb/storage/buffer"
	"coredb/storage/disk"
	"coredb/types"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	dir := t.TempDir()
	diskMgr := disk.NewManager()
	pool := buffer.NewPool(64, diskMgr)

	fileID, err := diskMgr.OpenFile(dir + "/index.idx")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	table, err := New(pool, fileID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return table
}

func TestHashTable_InsertAndGet(t *testing.T) {
	table := newTestTable(t)

	rid := types.RID{PageID: 1, Slot: 0}
	ok, err := table.Insert(42, rid)
	if err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}

	values, err := table.Get(42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(values) != 1 || values[0] != rid {
		t.Fatalf("Get(42) = %v, want [%v]", values, rid)
	}

	missing, err := table.Get(999)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("Get(999) = %v, want empty", missing)
	}
}

// TestHashTable_SplitOnOverflow: inserting enough keys to
// overflow a single bucket forces the directory to double and a new
// bucket to split off, and every previously inserted key must still
// resolve correctly afterward.
func TestHashTable_SplitOnOverflow(t *testing.T) {
	table := newTestTable(t)

	n := BucketSize + 40
	for i := 0; i < n; i++ {
		rid := types.RID{PageID: uint32(i + 1), Slot: uint16(i % 65536)}
		ok, err := table.Insert(int64(i), rid)
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Insert(%d) rejected", i)
		}
	}

	depth, err := table.GlobalDepth()
	if err != nil {
		t.Fatalf("GlobalDepth: %v", err)
	}
	if depth == 0 {
		t.Fatalf("global depth still 0 after overflowing a bucket")
	}

	for i := 0; i < n; i++ {
		want := types.RID{PageID: uint32(i + 1), Slot: uint16(i % 65536)}
		values, err := table.Get(int64(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if len(values) != 1 || values[0] != want {
			t.Fatalf("Get(%d) = %v, want [%v]", i, values, want)
		}
	}

	stats, err := table.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) < 2 {
		t.Fatalf("expected at least 2 distinct buckets after split, got %d", len(stats))
	}
}

// TestHashTable_MergeShrinksDirectory: removing keys back
// down to emptiness merges sibling buckets and, when every slot's local
// depth allows it, shrinks the directory back down.
func TestHashTable_MergeShrinksDirectory(t *testing.T) {
	table := newTestTable(t)

	n := BucketSize + 40
	rids := make([]types.RID, n)
	for i := 0; i < n; i++ {
		rids[i] = types.RID{PageID: uint32(i + 1), Slot: uint16(i % 65536)}
		if _, err := table.Insert(int64(i), rids[i]); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	depthAfterSplit, err := table.GlobalDepth()
	if err != nil {
		t.Fatalf("GlobalDepth after split: %v", err)
	}
	if depthAfterSplit == 0 {
		t.Fatalf("expected directory to have grown past global depth 0")
	}

	for i := 0; i < n; i++ {
		ok, err := table.Remove(int64(i), rids[i])
		if err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Remove(%d) not found", i)
		}
	}

	depthAfterMerge, err := table.GlobalDepth()
	if err != nil {
		t.Fatalf("GlobalDepth after merge: %v", err)
	}
	if depthAfterMerge != 0 {
		t.Fatalf("global depth after draining every key = %d, want 0", depthAfterMerge)
	}

	for i := 0; i < n; i++ {
		values, err := table.Get(int64(i))
		if err != nil {
			t.Fatalf("Get(%d) after removal: %v", i, err)
		}
		if len(values) != 0 {
			t.Fatalf("Get(%d) after removal = %v, want empty", i, values)
		}
	}
}

// TestHashTable_DuplicatePairRejected: the exact same (key, value) pair
// cannot be inserted twice.
func TestHashTable_DuplicatePairRejected(t *testing.T) {
	table := newTestTable(t)
	rid := types.RID{PageID: 7, Slot: 3}

	ok, err := table.Insert(5, rid)
	if err != nil || !ok {
		t.Fatalf("first Insert: ok=%v err=%v", ok, err)
	}
	ok, err = table.Insert(5, rid)
	if err != nil {
		t.Fatalf("duplicate Insert: %v", err)
	}
	if ok {
		t.Fatalf("duplicate (key, value) pair was accepted")
	}

	values, err := table.Get(5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("Get(5) = %v, want exactly one entry", values)
	}
}

// TestHashTable_MultipleValuesPerKey exercises a hash index over a
// non-unique column: the same key can map to several distinct RIDs.
func TestHashTable_MultipleValuesPerKey(t *testing.T) {
	table := newTestTable(t)

	rids := []types.RID{{PageID: 1, Slot: 0}, {PageID: 1, Slot: 1}, {PageID: 2, Slot: 0}}
	for _, rid := range rids {
		if _, err := table.Insert(99, rid); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	values, err := table.Get(99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(values) != len(rids) {
		t.Fatalf("Get(99) returned %d values, want %d", len(values), len(rids))
	}

	seen := make(map[types.RID]bool)
	for _, v := range values {
		seen[v] = true
	}
	for _, rid := range rids {
		if !seen[rid] {
			t.Fatalf("missing expected value %v in %v", rid, values)
		}
	}
}

func TestHashTable_RemoveMissingPairReturnsFalse(t *testing.T) {
	table := newTestTable(t)
	if _, err := table.Insert(1, types.RID{PageID: 1, Slot: 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := table.Remove(1, types.RID{PageID: 99, Slot: 99})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok {
		t.Fatalf("Remove of an absent pair returned true")
	}
}

func TestHashTable_ManyKeysStressSplitAndMerge(t *testing.T) {
	table := newTestTable(t)
	const n = 500

	for i := 0; i < n; i++ {
		rid := types.RID{PageID: uint32(i + 1), Slot: 0}
		if _, err := table.Insert(int64(i), rid); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i += 2 {
		if _, err := table.Remove(int64(i), types.RID{PageID: uint32(i + 1), Slot: 0}); err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		values, err := table.Get(int64(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if i%2 == 0 {
			if len(values) != 0 {
				t.Fatalf("Get(%d) = %v after removal, want empty", i, values)
			}
		} else if len(values) != 1 {
			t.Fatalf(fmt.Sprintf("Get(%d) = %v, want exactly 1", i, values))
		}
	}
}
