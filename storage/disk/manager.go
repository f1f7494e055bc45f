// Package disk owns OS file handles and the global page ID space consumed
// by the buffer pool. Grounded on storage_engine/disk_manager, trimmed of
// the WAL-replay-only metadata helpers (root-ID persistence, LSN gating)
// since write-ahead logging is out of scope for this core.
package disk

import (
	"fmt"
	"os"
	"sync"

	"coredb/storage/page"
	"coredb/types"
)

// localBits reserves the low bits of a page ID for the local page number
// within a file and the high bits for the file ID, the same deterministic
// fileID<<N|localNum scheme storage_engine/disk_manager uses for its int64 globalPageID —
// narrowed to fit a uint32, which leaves room for about four thousand
// files of about a million (2^20) pages each.
const localBits = 20
const localMask = (1 << localBits) - 1

type fileDescriptor struct {
	fileID    uint32
	path      string
	file      *os.File
	nextLocal uint32
	mu        sync.RWMutex
}

// Manager manages all disk I/O and file handles, and owns the global page
// ID space: PageID = fileID<<localBits | localNum.
type Manager struct {
	mu         sync.RWMutex
	files      map[uint32]*fileDescriptor
	nextFileID uint32
}

func NewManager() *Manager {
	return &Manager{
		files:      make(map[uint32]*fileDescriptor),
		nextFileID: 1,
	}
}

// OpenFile opens or creates a file and returns the file ID assigned to it.
func (m *Manager) OpenFile(path string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, fd := range m.files {
		if fd.path == path {
			return id, nil
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("disk: open %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("disk: stat %s: %w", path, err)
	}

	fileID := m.nextFileID
	m.nextFileID++

	m.files[fileID] = &fileDescriptor{
		fileID:    fileID,
		path:      path,
		file:      f,
		nextLocal: uint32(stat.Size() / page.Size),
	}

	return fileID, nil
}

// AllocatePage reserves the next page ID for fileID. It does not write
// anything to disk; the buffer pool flushes the dirty page later.
func (m *Manager) AllocatePage(fileID uint32, pageType types.PageType) (uint32, error) {
	m.mu.RLock()
	fd, ok := m.files[fileID]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("disk: file %d not open", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	local := fd.nextLocal
	fd.nextLocal++

	return fileID<<localBits | local, nil
}

// ReadPage reads a page from disk.
func (m *Manager) ReadPage(pageID uint32) (*page.Page, error) {
	fileID := pageID >> localBits
	local := pageID & localMask

	m.mu.RLock()
	fd, ok := m.files[fileID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("disk: file %d not open", fileID)
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()

	pg := page.New(pageID, fileID, types.PageTypeUnknown)
	offset := int64(local) * page.Size
	n, err := fd.file.ReadAt(pg.Data, offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("disk: read page %d: %w", pageID, err)
	}
	if n > 0 {
		pg.PageType = types.PageType(pg.Data[0])
	}
	return pg, nil
}

// WritePage writes a page to disk.
func (m *Manager) WritePage(pg *page.Page) error {
	fileID := pg.ID >> localBits
	local := pg.ID & localMask

	m.mu.RLock()
	fd, ok := m.files[fileID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("disk: file %d not open", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if len(pg.Data) != page.Size {
		return fmt.Errorf("disk: page %d has size %d, want %d", pg.ID, len(pg.Data), page.Size)
	}
	pg.Data[0] = byte(pg.PageType)

	offset := int64(local) * page.Size
	if _, err := fd.file.WriteAt(pg.Data, offset); err != nil {
		return fmt.Errorf("disk: write page %d: %w", pg.ID, err)
	}
	if local >= fd.nextLocal {
		fd.nextLocal = local + 1
	}
	pg.IsDirty = false
	return nil
}

// Sync flushes all open files to disk.
func (m *Manager) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, fd := range m.files {
		fd.mu.Lock()
		err := fd.file.Sync()
		fd.mu.Unlock()
		if err != nil {
			return fmt.Errorf("disk: sync file %d: %w", fd.fileID, err)
		}
	}
	return nil
}

// CloseAll closes every open file.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for id, fd := range m.files {
		fd.mu.Lock()
		if err := fd.file.Close(); err != nil {
			lastErr = err
		}
		fd.mu.Unlock()
		delete(m.files, id)
	}
	return lastErr
}
