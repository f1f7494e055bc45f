package hash

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"coredb/storage/buffer"
	"coredb/types"
)

// Table is a persistent extendible hash table over the buffer pool:
// directory page fanning out to bucket pages, splitting on overflow and
// merging back on emptiness.
//
// Concurrency: one table-level RW latch guards directory structural
// changes. Get holds it shared; Insert/Remove (and the split/merge they
// trigger) hold it exclusive. Per-bucket latching is not used — the
// coarser table latch is accepted in exchange for correctness under
// split/merge that retarget many directory slots at once.
type Table struct {
	latch     sync.RWMutex
	pool      *buffer.Pool
	fileID    uint32
	dirPageID uint32
}

// New creates a fresh extendible hash table: one directory page at
// global_depth 0 and one bucket page, both allocated from fileID.
func New(pool *buffer.Pool, fileID uint32) (*Table, error) {
	dirPg, err := pool.NewPage(fileID, pageTypeDirectory())
	if err != nil {
		return nil, fmt.Errorf("hash: allocating directory page: %w", err)
	}
	dir := newDirectory(dirPg)
	dir.globalDepth = 0

	bucketPg, err := pool.NewPage(fileID, pageTypeBucket())
	if err != nil {
		pool.UnpinPage(dirPg.ID, false)
		return nil, fmt.Errorf("hash: allocating first bucket page: %w", err)
	}
	loadBucket(bucketPg).store() // zero out a well-formed bucket
	dir.bucketPageIDs[0] = bucketPg.ID
	dir.localDepths[0] = 0
	dir.store()

	if err := pool.UnpinPage(bucketPg.ID, true); err != nil {
		return nil, err
	}
	if err := pool.UnpinPage(dirPg.ID, true); err != nil {
		return nil, err
	}

	return &Table{pool: pool, fileID: fileID, dirPageID: dirPg.ID}, nil
}

func hashKey(key int64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(key))
	return xxhash.Sum64(buf[:])
}

// Get returns every value stored under key.
func (t *Table) Get(key int64) ([]types.RID, error) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	dirPg, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return nil, err
	}
	dir := loadDirectory(dirPg)
	idx := dir.indexFor(hashKey(key))
	bucketPageID := dir.bucketPageID(idx)
	if err := t.pool.UnpinPage(dirPg.ID, false); err != nil {
		return nil, err
	}

	bucketPg, err := t.pool.FetchPage(bucketPageID)
	if err != nil {
		return nil, err
	}
	values := loadBucket(bucketPg).get(key)
	if err := t.pool.UnpinPage(bucketPg.ID, false); err != nil {
		return nil, err
	}
	return values, nil
}

// Insert adds (key, value), splitting buckets as necessary. Returns false
// on a duplicate (key, value) pair, or if the bucket is still full after
// one split (pathological hash collisions within a single bucket).
func (t *Table) Insert(key int64, value types.RID) (bool, error) {
	t.latch.Lock()
	defer t.latch.Unlock()

	return t.splitInsert(key, value, false)
}

// splitInsert implements the split-insert algorithm. alreadySplit
// guards step 3: if still full after one split, the insert fails outright
// rather than looping forever on pathological collisions.
func (t *Table) splitInsert(key int64, value types.RID, alreadySplit bool) (bool, error) {
	dirPg, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return false, err
	}
	dir := loadDirectory(dirPg)
	idx := dir.indexFor(hashKey(key))
	bucketPageID := dir.bucketPageID(idx)
	localDepth := dir.localDepth(idx)

	bucketPg, err := t.pool.FetchPage(bucketPageID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}
	bucket := loadBucket(bucketPg)

	if !bucket.IsFull() {
		ok := bucket.insert(key, value)
		if err := t.pool.UnpinPage(bucketPg.ID, ok); err != nil {
			t.pool.UnpinPage(dirPg.ID, false)
			return false, err
		}
		if err := t.pool.UnpinPage(dirPg.ID, false); err != nil {
			return false, err
		}
		return ok, nil
	}

	if alreadySplit {
		// Pathological collision: still full immediately after a split.
		t.pool.UnpinPage(bucketPg.ID, false)
		t.pool.UnpinPage(dirPg.ID, false)
		return false, nil
	}

	// Step 2a: double the directory if this bucket is already at global
	// depth.
	if localDepth == uint8(dir.globalDepth) {
		if err := dir.double(); err != nil {
			t.pool.UnpinPage(bucketPg.ID, false)
			t.pool.UnpinPage(dirPg.ID, false)
			return false, err
		}
		dir.store()
		// idx's sibling slot now exists at idx+oldSize pointing at the
		// same bucket; recompute idx/localDepth against the new depth (the
		// key may now address the twin slot; its local depth is the same).
		idx = dir.indexFor(hashKey(key))
		localDepth = dir.localDepth(idx)
	}

	// Step 2b: allocate the new bucket.
	newBucketPg, err := t.pool.NewPage(t.fileID, pageTypeBucket())
	if err != nil {
		t.pool.UnpinPage(bucketPg.ID, false)
		t.pool.UnpinPage(dirPg.ID, false)
		return false, fmt.Errorf("hash: allocating split bucket: %w", err)
	}
	newBucket := loadBucket(newBucketPg)
	newBucket.store()

	oldMask := uint64(1<<localDepth) - 1
	newMask := (oldMask << 1) | 1

	// Step 2c: redistribute.
	for _, e := range bucket.scan() {
		if hashKey(e.key)&oldMask != hashKey(e.key)&newMask {
			bucket.remove(e.key, e.value)
			newBucket.insert(e.key, e.value)
		}
	}

	newLocalDepth := localDepth + 1

	// Step 2d: walk the directory, retargeting every slot pointing at the
	// old bucket.
	size := dir.size()
	for i := 0; i < size; i++ {
		if dir.bucketPageID(uint32(i)) != bucketPageID {
			continue
		}
		dir.localDepths[i] = newLocalDepth
		// A slot whose low newLocalDepth bits match the new bucket's
		// address pattern (bit newLocalDepth-1 set, matching the part of
		// the key space the new bucket now owns) retargets to it.
		if uint32(i)&(1<<(newLocalDepth-1)) != 0 {
			dir.bucketPageIDs[i] = newBucketPg.ID
		}
	}
	dir.store()

	if err := t.pool.UnpinPage(bucketPg.ID, true); err != nil {
		t.pool.UnpinPage(newBucketPg.ID, true)
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}
	if err := t.pool.UnpinPage(newBucketPg.ID, true); err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}
	if err := t.pool.UnpinPage(dirPg.ID, false); err != nil {
		return false, err
	}

	// Step 2e: retry on whichever bucket the key now hashes to.
	return t.splitInsert(key, value, true)
}

// Remove deletes (key, value) and attempts a merge if the bucket became
// empty. Returns false if the pair was not present.
func (t *Table) Remove(key int64, value types.RID) (bool, error) {
	t.latch.Lock()
	defer t.latch.Unlock()

	dirPg, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return false, err
	}
	dir := loadDirectory(dirPg)
	idx := dir.indexFor(hashKey(key))
	bucketPageID := dir.bucketPageID(idx)

	bucketPg, err := t.pool.FetchPage(bucketPageID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}
	bucket := loadBucket(bucketPg)

	removed := bucket.remove(key, value)
	if !removed {
		t.pool.UnpinPage(bucketPg.ID, false)
		t.pool.UnpinPage(dirPg.ID, false)
		return false, nil
	}

	if bucket.IsEmpty() {
		if err := t.pool.UnpinPage(bucketPg.ID, true); err != nil {
			t.pool.UnpinPage(dirPg.ID, false)
			return false, err
		}
		if err := t.merge(dir, idx, bucketPageID); err != nil {
			t.pool.UnpinPage(dirPg.ID, true)
			return false, err
		}
		dir.store()
		if err := t.pool.UnpinPage(dirPg.ID, true); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := t.pool.UnpinPage(bucketPg.ID, true); err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}
	if err := t.pool.UnpinPage(dirPg.ID, false); err != nil {
		return false, err
	}
	return true, nil
}

// merge implements the remove-with-merge algorithm. dirPg's
// page is already pinned by the caller; merge only mutates the in-memory
// Directory view, leaving dirPg's store()/unpin to the caller.
func (t *Table) merge(dir *Directory, emptyIdx uint32, emptyBucketPageID uint32) error {
	localDepth := dir.localDepth(emptyIdx)
	if localDepth == 0 {
		return nil
	}

	siblingIdx := splitImage(emptyIdx, localDepth)
	if dir.localDepth(siblingIdx) != localDepth {
		return nil
	}
	siblingBucketPageID := dir.bucketPageID(siblingIdx)

	size := dir.size()
	for i := 0; i < size; i++ {
		if dir.bucketPageID(uint32(i)) == emptyBucketPageID {
			dir.bucketPageIDs[i] = siblingBucketPageID
			dir.localDepths[i] = localDepth - 1
		} else if dir.bucketPageID(uint32(i)) == siblingBucketPageID {
			dir.localDepths[i] = localDepth - 1
		}
	}

	if err := t.pool.DeletePage(emptyBucketPageID); err != nil {
		return fmt.Errorf("hash: deleting merged bucket %d: %w", emptyBucketPageID, err)
	}

	dir.shrink()
	return nil
}

// GlobalDepth reports the directory's current global depth, for tests and
// diagnostics.
func (t *Table) GlobalDepth() (uint32, error) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	dirPg, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return 0, err
	}
	depth := loadDirectory(dirPg).globalDepth
	if err := t.pool.UnpinPage(dirPg.ID, false); err != nil {
		return 0, err
	}
	return depth, nil
}

// Stats returns the distinct bucket page IDs currently referenced by the
// directory, for diagnostics and tests.
func (t *Table) Stats() (map[uint32]bool, error) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	dirPg, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return nil, err
	}
	dir := loadDirectory(dirPg)
	buckets := make(map[uint32]bool)
	for i := 0; i < dir.size(); i++ {
		buckets[dir.bucketPageID(uint32(i))] = true
	}
	if err := t.pool.UnpinPage(dirPg.ID, false); err != nil {
		return nil, err
	}
	return buckets, nil
}

func pageTypeDirectory() types.PageType { return types.PageTypeHashDirectory }
func pageTypeBucket() types.PageType    { return types.PageTypeHashBucket }
