package hash

import (
	"encoding/binary"

	"coredb/storage/page"
	"coredb/types"
)

// BucketSize is the fixed number of (key, value) slots per bucket page.
// Chosen so occupied/readable bitmaps plus entries comfortably fit one
// 4KB page alongside the page-type byte.
const BucketSize = 128

const keyBytes = 8 // fixed 8-byte integer keys
const valueBytes = 6 // types.RID: 4-byte PageID + 2-byte Slot
const entrySize = keyBytes + valueBytes

// bitmapBytes is ceil(BucketSize/8).
const bitmapBytes = (BucketSize + 7) / 8

// bucketHeaderSize accounts for the page-type byte plus both bitmaps.
const bucketHeaderSize = 1 + bitmapBytes*2

func init() {
	if bucketHeaderSize+BucketSize*entrySize > page.Size {
		panic("hash: bucket layout exceeds page size")
	}
}

// entry is one decoded (key, value) slot.
type entry struct {
	key   int64
	value types.RID
}

// Bucket is the decoded in-memory view of a bucket page's bytes: a
// fixed-size slot array with per-slot occupied/readable bits, laid out as
// { occupied_bits, readable_bits, entries }.
type Bucket struct {
	pg       *page.Page
	occupied [BucketSize]bool
	readable [BucketSize]bool
	entries  [BucketSize]entry
}

func loadBucket(pg *page.Page) *Bucket {
	b := &Bucket{pg: pg}
	buf := pg.Data

	occOff := 1
	readOff := 1 + bitmapBytes
	for i := 0; i < BucketSize; i++ {
		b.occupied[i] = buf[occOff+i/8]&(1<<(i%8)) != 0
		b.readable[i] = buf[readOff+i/8]&(1<<(i%8)) != 0
	}

	entOff := bucketHeaderSize
	for i := 0; i < BucketSize; i++ {
		off := entOff + i*entrySize
		b.entries[i] = entry{
			key: int64(binary.LittleEndian.Uint64(buf[off : off+8])),
			value: types.RID{
				PageID: binary.LittleEndian.Uint32(buf[off+8 : off+12]),
				Slot:   binary.LittleEndian.Uint16(buf[off+12 : off+14]),
			},
		}
	}
	return b
}

func (b *Bucket) store() {
	buf := b.pg.Data

	occOff := 1
	readOff := 1 + bitmapBytes
	for i := occOff; i < occOff+2*bitmapBytes; i++ {
		buf[i] = 0
	}
	for i := 0; i < BucketSize; i++ {
		if b.occupied[i] {
			buf[occOff+i/8] |= 1 << (i % 8)
		}
		if b.readable[i] {
			buf[readOff+i/8] |= 1 << (i % 8)
		}
	}

	entOff := bucketHeaderSize
	for i := 0; i < BucketSize; i++ {
		off := entOff + i*entrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(b.entries[i].key))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], b.entries[i].value.PageID)
		binary.LittleEndian.PutUint16(buf[off+12:off+14], b.entries[i].value.Slot)
	}
	b.pg.IsDirty = true
}

// IsFull reports whether every slot is occupied.
func (b *Bucket) IsFull() bool {
	for i := 0; i < BucketSize; i++ {
		if !b.occupied[i] {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no slot is readable (a removed-but-not-yet
// cleared occupied slot does not count as occupying the bucket).
func (b *Bucket) IsEmpty() bool {
	for i := 0; i < BucketSize; i++ {
		if b.readable[i] {
			return false
		}
	}
	return true
}

// find returns the slot index holding (key, value), or -1.
func (b *Bucket) find(key int64, value types.RID) int {
	for i := 0; i < BucketSize; i++ {
		if b.readable[i] && b.entries[i].key == key && b.entries[i].value == value {
			return i
		}
	}
	return -1
}

// insert places (key, value) in the first free slot. Returns false if the
// bucket has no free slot, or if the exact (key, value) pair is already
// present (duplicate rejection).
func (b *Bucket) insert(key int64, value types.RID) bool {
	if b.find(key, value) >= 0 {
		return false
	}
	for i := 0; i < BucketSize; i++ {
		if !b.occupied[i] {
			b.occupied[i] = true
			b.readable[i] = true
			b.entries[i] = entry{key: key, value: value}
			b.store()
			return true
		}
	}
	return false
}

// remove deletes (key, value) if present, returning whether it was found.
func (b *Bucket) remove(key int64, value types.RID) bool {
	idx := b.find(key, value)
	if idx < 0 {
		return false
	}
	b.occupied[idx] = false
	b.readable[idx] = false
	b.store()
	return true
}

// get returns every value stored under key.
func (b *Bucket) get(key int64) []types.RID {
	var values []types.RID
	for i := 0; i < BucketSize; i++ {
		if b.readable[i] && b.entries[i].key == key {
			values = append(values, b.entries[i].value)
		}
	}
	return values
}

// scan returns every readable (key, value) pair, used by split to
// redistribute entries.
func (b *Bucket) scan() []entry {
	var out []entry
	for i := 0; i < BucketSize; i++ {
		if b.readable[i] {
			out = append(out, b.entries[i])
		}
	}
	return out
}
