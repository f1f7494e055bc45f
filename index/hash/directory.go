// Package hash implements a persistent extendible hash index: a
// directory page fanning out to bucket pages, doubling on split and
// shrinking on merge. BusTub's extendible_hash_table.cpp implements the
// same split/merge algorithm but keeps its directory and buckets
// in-memory; the on-disk layouts here decode a page's bytes into a
// struct, mutate the struct, and store it back rather than reinterpreting
// the page buffer in place.
package hash

import (
	"encoding/binary"
	"fmt"

	"coredb/storage/page"
)

// MaxGlobalDepth bounds the directory at 2^9 = 512 slots, a typical
// compile-time ceiling for this kind of fixed-size directory.
const MaxGlobalDepth = 9
const maxSlots = 1 << MaxGlobalDepth

// directoryHeaderSize accounts for the page-type byte (written by
// storage/disk.Manager) and the global_depth field.
const directoryHeaderSize = 1 + 4

// Directory is the decoded in-memory view of a directory page's bytes.
// One directory page exists per table and is never destroyed.
type Directory struct {
	pg            *page.Page
	globalDepth   uint32
	localDepths   [maxSlots]uint8
	bucketPageIDs [maxSlots]uint32
}

func newDirectory(pg *page.Page) *Directory {
	return &Directory{pg: pg}
}

// loadDirectory decodes pg's bytes into a Directory view. The on-disk
// layout is { page_type: u8, global_depth: u32, local_depths: u8[512],
// bucket_page_ids: u32[512] }.
func loadDirectory(pg *page.Page) *Directory {
	d := newDirectory(pg)
	buf := pg.Data
	d.globalDepth = binary.LittleEndian.Uint32(buf[1:5])
	copy(d.localDepths[:], buf[directoryHeaderSize:directoryHeaderSize+maxSlots])
	off := directoryHeaderSize + maxSlots
	for i := 0; i < maxSlots; i++ {
		d.bucketPageIDs[i] = binary.LittleEndian.Uint32(buf[off+i*4 : off+i*4+4])
	}
	return d
}

// store writes the Directory's fields back into its page's bytes and
// marks the page dirty.
func (d *Directory) store() {
	buf := d.pg.Data
	binary.LittleEndian.PutUint32(buf[1:5], d.globalDepth)
	copy(buf[directoryHeaderSize:directoryHeaderSize+maxSlots], d.localDepths[:])
	off := directoryHeaderSize + maxSlots
	for i := 0; i < maxSlots; i++ {
		binary.LittleEndian.PutUint32(buf[off+i*4:off+i*4+4], d.bucketPageIDs[i])
	}
	d.pg.IsDirty = true
}

func (d *Directory) size() int {
	return 1 << d.globalDepth
}

// indexFor returns the directory slot a 64-bit hash addresses at the
// current global depth: the low global_depth bits.
func (d *Directory) indexFor(h uint64) uint32 {
	mask := uint32(d.size() - 1)
	return uint32(h) & mask
}

func (d *Directory) bucketPageID(idx uint32) uint32 {
	return d.bucketPageIDs[idx]
}

func (d *Directory) localDepth(idx uint32) uint8 {
	return d.localDepths[idx]
}

// splitImage is the directory slot that shares bucketIdx's bucket at
// local depth d-1 but diverges at bit d-1: the entry that would merge back
// with bucketIdx if its sibling bucket ever emptied out.
func splitImage(bucketIdx uint32, localDepth uint8) uint32 {
	return bucketIdx ^ (1 << (localDepth - 1))
}

// double doubles the directory: every slot i gets a twin at i+size with
// the same bucket and local depth, and global depth increases by one.
// Invariant C (slot-count per bucket) is preserved by construction since
// every slot is duplicated uniformly.
func (d *Directory) double() error {
	if d.globalDepth >= MaxGlobalDepth {
		return fmt.Errorf("hash: directory already at max global depth %d", MaxGlobalDepth)
	}
	size := d.size()
	for i := 0; i < size; i++ {
		d.bucketPageIDs[i+size] = d.bucketPageIDs[i]
		d.localDepths[i+size] = d.localDepths[i]
	}
	d.globalDepth++
	return nil
}

// shrink halves the directory while every slot's local depth is below the
// current global depth (invariant D), looping until no further shrink is
// possible — directory shrink is a side effect of bucket merges, which
// can cascade.
func (d *Directory) shrink() {
	for d.globalDepth > 0 {
		canShrink := true
		size := d.size()
		for i := 0; i < size; i++ {
			if uint32(d.localDepths[i]) >= d.globalDepth {
				canShrink = false
				break
			}
		}
		if !canShrink {
			return
		}
		d.globalDepth--
	}
}
