// Package heap implements the table heap: an unordered, singly-linked
// chain of slotted pages holding a table's tuples. Grounded on
// storage_engine/access/heapfile_manager (page layout, InsertRecord/
// GetRecord/DeleteRecord/UpdateRecord naming and semantics) and on
// storage_engine/access/heapfile_manager/heapfile_manager.go's
// CreateHeapfile/LoadHeapFile split between a file-level manager and the
// per-table heap object it hands out.
package heap

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"coredb/storage/buffer"
	"coredb/storage/disk"
	"coredb/types"
)

// Heap is one table's tuple storage: a buffer pool, the file it lives in,
// and the page ID of the first page in its chain.
//
// A tuple-level read cache sits in front of GetTuple, keyed by RID — most
// scans re-fetch the same hot pages repeatedly, and ristretto's cost-aware
// admission means a handful of hot tables don't starve the rest of the
// cache.
type Heap struct {
	mu          sync.RWMutex
	pool        *buffer.Pool
	disk        *disk.Manager
	fileID      uint32
	firstPageID uint32
	schema      *types.TableSchema
	cache       *ristretto.Cache[uint64, types.Row]
}

// ridCacheKey packs a RID into the scalar key ristretto's generic Key
// constraint requires — RID itself (a struct) isn't an admissible key type.
func ridCacheKey(rid types.RID) uint64 {
	return uint64(rid.PageID)<<16 | uint64(rid.Slot)
}

// Create allocates a heap's first page and returns a Heap ready for
// InsertTuple/GetTuple.
func Create(pool *buffer.Pool, diskMgr *disk.Manager, fileID uint32, schema *types.TableSchema) (*Heap, error) {
	pg, err := pool.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		return nil, fmt.Errorf("heap: allocating first page: %w", err)
	}
	initPage(pg)
	if err := pool.UnpinPage(pg.ID, true); err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, types.Row]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("heap: constructing tuple cache: %w", err)
	}

	return &Heap{
		pool:        pool,
		disk:        diskMgr,
		fileID:      fileID,
		firstPageID: pg.ID,
		schema:      schema,
		cache:       cache,
	}, nil
}

// Open wraps an already-allocated heap's first page, for reopening a
// table whose catalog entry survived a process restart.
func Open(pool *buffer.Pool, diskMgr *disk.Manager, fileID uint32, firstPageID uint32, schema *types.TableSchema) (*Heap, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, types.Row]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("heap: constructing tuple cache: %w", err)
	}
	return &Heap{
		pool:        pool,
		disk:        diskMgr,
		fileID:      fileID,
		firstPageID: firstPageID,
		schema:      schema,
		cache:       cache,
	}, nil
}

// GetFirstPageID returns the page ID at the head of the heap's chain.
func (h *Heap) GetFirstPageID() uint32 {
	return h.firstPageID
}

// GetFirstTupleRID returns the first live tuple's RID, or ok=false if the
// heap is empty.
func (h *Heap) GetFirstTupleRID() (types.RID, bool, error) {
	pageID := h.firstPageID
	for pageID != 0 {
		pg, err := h.pool.FetchPage(pageID)
		if err != nil {
			return types.RID{}, false, err
		}
		pg.RLock()
		slotIdx, ok := firstTupleSlot(pg, 0)
		next := nextPageID(pg)
		pg.RUnlock()
		if err := h.pool.UnpinPage(pageID, false); err != nil {
			return types.RID{}, false, err
		}
		if ok {
			return types.RID{PageID: pageID, Slot: slotIdx}, true, nil
		}
		pageID = next
	}
	return types.RID{}, false, nil
}

// GetNextTupleRID returns the next live tuple after rid, walking onto
// subsequent pages in the chain as needed.
func (h *Heap) GetNextTupleRID(rid types.RID) (types.RID, bool, error) {
	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return types.RID{}, false, err
	}
	pg.RLock()
	slotIdx, ok := firstTupleSlot(pg, rid.Slot+1)
	next := nextPageID(pg)
	pg.RUnlock()
	if err := h.pool.UnpinPage(rid.PageID, false); err != nil {
		return types.RID{}, false, err
	}
	if ok {
		return types.RID{PageID: rid.PageID, Slot: slotIdx}, true, nil
	}

	for next != 0 {
		pageID := next
		pg, err := h.pool.FetchPage(pageID)
		if err != nil {
			return types.RID{}, false, err
		}
		pg.RLock()
		slotIdx, ok := firstTupleSlot(pg, 0)
		next = nextPageID(pg)
		pg.RUnlock()
		if err := h.pool.UnpinPage(pageID, false); err != nil {
			return types.RID{}, false, err
		}
		if ok {
			return types.RID{PageID: pageID, Slot: slotIdx}, true, nil
		}
	}
	return types.RID{}, false, nil
}

// InsertTuple appends row to the heap, allocating a new page at the tail
// of the chain if the last page has no room, and returns the RID it was
// stored at.
func (h *Heap) InsertTuple(row types.Row) (types.RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := EncodeRow(h.schema, row)
	if err != nil {
		return types.RID{}, err
	}

	pageID := h.firstPageID
	var lastPageID uint32
	for {
		pg, err := h.pool.FetchPage(pageID)
		if err != nil {
			return types.RID{}, err
		}
		pg.Lock()
		slotIdx, insErr := insertRecord(pg, data)
		next := nextPageID(pg)
		pg.Unlock()

		if insErr == nil {
			if err := h.pool.UnpinPage(pageID, true); err != nil {
				return types.RID{}, err
			}
			return types.RID{PageID: pageID, Slot: slotIdx}, nil
		}
		if err := h.pool.UnpinPage(pageID, false); err != nil {
			return types.RID{}, err
		}

		lastPageID = pageID
		if next == 0 {
			break
		}
		pageID = next
	}

	newPg, err := h.pool.NewPage(h.fileID, types.PageTypeHeapData)
	if err != nil {
		return types.RID{}, fmt.Errorf("heap: allocating overflow page: %w", err)
	}
	initPage(newPg)
	slotIdx, err := insertRecord(newPg, data)
	if err != nil {
		h.pool.UnpinPage(newPg.ID, false)
		return types.RID{}, fmt.Errorf("heap: record too large for an empty page: %w", err)
	}
	if err := h.pool.UnpinPage(newPg.ID, true); err != nil {
		return types.RID{}, err
	}

	lastPg, err := h.pool.FetchPage(lastPageID)
	if err != nil {
		return types.RID{}, err
	}
	lastPg.Lock()
	setNextPageID(lastPg, newPg.ID)
	lastPg.Unlock()
	if err := h.pool.UnpinPage(lastPageID, true); err != nil {
		return types.RID{}, err
	}

	return types.RID{PageID: newPg.ID, Slot: slotIdx}, nil
}

// GetTuple fetches rid's row, serving from the tuple cache when possible.
func (h *Heap) GetTuple(rid types.RID) (types.Row, bool, error) {
	if row, ok := h.cache.Get(ridCacheKey(rid)); ok {
		return row, true, nil
	}

	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return types.Row{}, false, err
	}
	pg.RLock()
	data, ok := getRecord(pg, rid.Slot)
	pg.RUnlock()
	if err := h.pool.UnpinPage(rid.PageID, false); err != nil {
		return types.Row{}, false, err
	}
	if !ok {
		return types.Row{}, false, nil
	}

	row, err := DecodeRow(h.schema, data)
	if err != nil {
		return types.Row{}, false, err
	}
	h.cache.Set(ridCacheKey(rid), row, 1)
	return row, true, nil
}

// MarkDelete tombstones rid's slot. The space is not reclaimed and the
// slot entry survives so any RID captured before the delete still
// resolves to "not found" rather than a different, reused tuple.
func (h *Heap) MarkDelete(rid types.RID) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	pg.Lock()
	ok := deleteRecord(pg, rid.Slot)
	pg.Unlock()
	if err := h.pool.UnpinPage(rid.PageID, ok); err != nil {
		return false, err
	}
	if ok {
		h.cache.Del(ridCacheKey(rid))
	}
	return ok, nil
}

// UpdateTuple replaces rid's row in place when the new encoding is no
// longer than the slot's current record, or tombstones the old slot and re-inserts
// elsewhere otherwise — in which case the tuple's RID changes and the
// caller is responsible for updating any index entries.
func (h *Heap) UpdateTuple(rid types.RID, row types.Row) (types.RID, bool, error) {
	h.mu.Lock()

	data, err := EncodeRow(h.schema, row)
	if err != nil {
		h.mu.Unlock()
		return types.RID{}, false, err
	}

	pg, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		h.mu.Unlock()
		return types.RID{}, false, err
	}
	pg.Lock()
	inPlace := updateRecordInPlace(pg, rid.Slot, data)
	pg.Unlock()
	if err := h.pool.UnpinPage(rid.PageID, inPlace); err != nil {
		h.mu.Unlock()
		return types.RID{}, false, err
	}

	if inPlace {
		h.cache.Set(ridCacheKey(rid), row, 1)
		h.mu.Unlock()
		return rid, true, nil
	}

	pg, err = h.pool.FetchPage(rid.PageID)
	if err != nil {
		h.mu.Unlock()
		return types.RID{}, false, err
	}
	pg.Lock()
	deleteRecord(pg, rid.Slot)
	pg.Unlock()
	if err := h.pool.UnpinPage(rid.PageID, true); err != nil {
		h.mu.Unlock()
		return types.RID{}, false, err
	}
	h.cache.Del(ridCacheKey(rid))
	h.mu.Unlock()

	newRID, err := h.InsertTuple(row)
	return newRID, false, err
}
