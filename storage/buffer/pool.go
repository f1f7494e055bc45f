// Package buffer implements the fixed-frame page buffer: a replacement
// policy (Replacer) and the pool manager that wraps it to serve the rest
// of the core (new_page/fetch_page/unpin_page/delete_page).
//
// Grounded on storage_engine/bufferpool.BufferPool, with eviction-policy
// bookkeeping (the ad hoc accessOrder slice storage_engine/bufferpool
// inlined) factored out into the Replacer component so the two concerns
// — page I/O vs. victim selection — stay separate and independently
// testable.
package buffer

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"coredb/storage/disk"
	"coredb/storage/page"
	"coredb/types"
)

// Pool is a fixed-size buffer pool: pageID -> frame. There are exactly as
// many frames as capacity; a frame's pin count governs whether the
// replacer may consider it for eviction.
type Pool struct {
	mu          sync.Mutex
	capacity    int
	frames      []*page.Page // frames[frameID] is the page currently loaded, or nil
	pageToFrame map[uint32]FrameID
	free        []FrameID // frames holding no page (never used, or emptied by DeletePage)
	replacer    *Replacer
	disk        *disk.Manager
}

func NewPool(capacity int, diskManager *disk.Manager) *Pool {
	free := make([]FrameID, capacity)
	for i := range free {
		free[i] = FrameID(i)
	}
	return &Pool{
		capacity:    capacity,
		frames:      make([]*page.Page, capacity),
		pageToFrame: make(map[uint32]FrameID),
		free:        free,
		replacer:    NewReplacer(capacity),
		disk:        diskManager,
	}
}

// grabFrame finds a frame to hold a newly-fetched or newly-allocated page:
// a free frame if one exists, otherwise the replacer's victim. Callers
// hold pool.mu.
func (p *Pool) grabFrame() (FrameID, error) {
	if len(p.free) > 0 {
		f := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		return f, nil
	}

	frameID, ok := p.replacer.Victim()
	if !ok {
		return 0, fmt.Errorf("buffer: pool exhausted, all %d frames pinned", p.capacity)
	}

	victim := p.frames[frameID]
	if victim != nil {
		if victim.IsDirty {
			if err := p.disk.WritePage(victim); err != nil {
				return 0, fmt.Errorf("buffer: flushing victim page %d: %w", victim.ID, err)
			}
		}
		delete(p.pageToFrame, victim.ID)
	}
	return frameID, nil
}

// NewPage allocates a fresh page on fileID, loads it into a frame pinned
// for the caller, and returns it.
func (p *Pool) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageID, err := p.disk.AllocatePage(fileID, pageType)
	if err != nil {
		return nil, err
	}

	frameID, err := p.grabFrame()
	if err != nil {
		return nil, err
	}

	pg := page.New(pageID, fileID, pageType)
	pg.IsDirty = true
	pg.PinCount = 1

	p.frames[frameID] = pg
	p.pageToFrame[pageID] = frameID
	p.replacer.Pin(frameID)

	return pg, nil
}

// FetchPage pins and returns pageID, loading it from disk if it is not
// already buffered.
func (p *Pool) FetchPage(pageID uint32) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameID, ok := p.pageToFrame[pageID]; ok {
		pg := p.frames[frameID]
		pg.PinCount++
		p.replacer.Pin(frameID)
		return pg, nil
	}

	pg, err := p.disk.ReadPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("buffer: fetch page %d: %w", pageID, err)
	}

	frameID, err := p.grabFrame()
	if err != nil {
		return nil, err
	}

	pg.PinCount = 1
	p.frames[frameID] = pg
	p.pageToFrame[pageID] = frameID
	p.replacer.Pin(frameID)

	return pg, nil
}

// UnpinPage decrements pageID's pin count; once it reaches zero the frame
// becomes eligible for eviction. isDirty is OR'd onto the page's dirty bit
// — a page is dirty exactly when its bytes were mutated on any pin/unpin
// round trip, so callers must never pass false to clear a true.
func (p *Pool) UnpinPage(pageID uint32, isDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageToFrame[pageID]
	if !ok {
		return fmt.Errorf("buffer: page %d not in pool", pageID)
	}

	pg := p.frames[frameID]
	if isDirty {
		pg.IsDirty = true
	}
	if pg.PinCount > 0 {
		pg.PinCount--
	}
	if pg.PinCount == 0 {
		p.replacer.Unpin(frameID)
	}
	return nil
}

// DeletePage removes pageID from the pool. Fails if the page is pinned.
func (p *Pool) DeletePage(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageToFrame[pageID]
	if !ok {
		return nil
	}

	pg := p.frames[frameID]
	if pg.PinCount > 0 {
		return fmt.Errorf("buffer: cannot delete pinned page %d", pageID)
	}

	p.replacer.Pin(frameID) // drop from replacer's candidate set without victimizing it
	p.frames[frameID] = nil
	delete(p.pageToFrame, pageID)
	p.free = append(p.free, frameID)

	return nil
}

// FlushPage writes pageID to disk if dirty.
func (p *Pool) FlushPage(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageToFrame[pageID]
	if !ok {
		return fmt.Errorf("buffer: page %d not in pool", pageID)
	}
	pg := p.frames[frameID]
	if !pg.IsDirty {
		return nil
	}
	if err := p.disk.WritePage(pg); err != nil {
		return err
	}
	return nil
}

// Stats reports a human-readable snapshot of pool occupancy, in the
// teacher's bracketed-tag logging idiom.
func (p *Pool) Stats() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	pinned, dirty := 0, 0
	for _, pg := range p.frames {
		if pg == nil {
			continue
		}
		if pg.PinCount > 0 {
			pinned++
		}
		if pg.IsDirty {
			dirty++
		}
	}
	bytesBuffered := uint64(len(p.pageToFrame)) * page.Size
	return fmt.Sprintf("[BufferPool] capacity=%d buffered=%d pinned=%d dirty=%d size=%s",
		p.capacity, len(p.pageToFrame), pinned, dirty, humanize.Bytes(bytesBuffered))
}
