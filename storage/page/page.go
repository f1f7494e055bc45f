package page

import (
	"sync"

	"coredb/types"
)

// Size is the fixed byte size of every page the disk manager hands out.
// Both heap pages and extendible-hash directory/bucket pages are framed
// into this size; see storage/disk and index/hash for the concrete
// (de)serialization routines.
const Size = 4096

// Page is the in-memory shell the buffer pool moves in and out of frames.
// Grounded on storage_engine/page.Page, with the WAL-only LSN field
// dropped: write-ahead logging is out of scope for this core.
type Page struct {
	ID       uint32
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	mu       sync.RWMutex
}

func New(id, fileID uint32, pageType types.PageType) *Page {
	return &Page{
		ID:       id,
		FileID:   fileID,
		Data:     make([]byte, Size),
		PageType: pageType,
	}
}

func (p *Page) Lock() {
	p.mu.Lock()
}

func (p *Page) Unlock() {
	p.mu.Unlock()
}

func (p *Page) RLock() {
	p.mu.RLock()
}

func (p *Page) RUnlock() {
	p.mu.RUnlock()
}
