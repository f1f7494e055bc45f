package heap

import (
	"encoding/binary"
	"fmt"

	"coredb/storage/page"
)

// Heap page binary layout (little-endian), byte 0 reserved for the
// page-type tag the disk manager stamps on flush (coredb/storage/disk):
//
//	offset  size  field
//	1       4     NextPageID  — 0 means end of chain
//	5       2     RecordEnd   — first free byte after the last record
//	7       2     SlotRegion  — first byte of the slot directory
//	9       2     SlotCount   — total slots, live + tombstoned
//	11      2     NumRows     — live (non-tombstoned) records
//
// Records grow forward from headerSize; the slot directory grows
// backward from the end of the page. A slot is 4 bytes: offset(2) +
// length(2), with length 0 marking a tombstone — grounded on
// storage_engine/access/heapfile_manager/heap_page.go's slotted layout,
// minus the LSN field (write-ahead logging is out of scope here).
const (
	offNextPageID  = 1
	offRecordEnd   = 5
	offSlotRegion  = 7
	offSlotCount   = 9
	offNumRows     = 11
	headerSize     = 13
	slotEntrySize  = 4
)

type slot struct {
	offset uint16
	length uint16
}

func initPage(pg *page.Page) {
	for i := 1; i < page.Size; i++ {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(pg.Data[offNextPageID:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offRecordEnd:], headerSize)
	binary.LittleEndian.PutUint16(pg.Data[offSlotRegion:], page.Size)
	binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offNumRows:], 0)
	pg.IsDirty = true
}

func nextPageID(pg *page.Page) uint32 { return binary.LittleEndian.Uint32(pg.Data[offNextPageID:]) }
func setNextPageID(pg *page.Page, id uint32) {
	binary.LittleEndian.PutUint32(pg.Data[offNextPageID:], id)
	pg.IsDirty = true
}

func recordEnd(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offRecordEnd:]) }
func setRecordEnd(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offRecordEnd:], v)
}

func slotRegion(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offSlotRegion:]) }
func setSlotRegion(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offSlotRegion:], v)
}

func slotCount(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offSlotCount:]) }
func setSlotCount(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], v)
}

func numRows(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offNumRows:]) }
func setNumRows(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offNumRows:], v)
}

func freeSpace(pg *page.Page) int {
	return int(slotRegion(pg)) - int(recordEnd(pg)) - slotEntrySize
}

func slotOffsetOf(i uint16) int {
	return page.Size - int(i+1)*slotEntrySize
}

func readSlot(pg *page.Page, i uint16) slot {
	off := slotOffsetOf(i)
	return slot{
		offset: binary.LittleEndian.Uint16(pg.Data[off:]),
		length: binary.LittleEndian.Uint16(pg.Data[off+2:]),
	}
}

func writeSlot(pg *page.Page, i uint16, s slot) {
	off := slotOffsetOf(i)
	binary.LittleEndian.PutUint16(pg.Data[off:], s.offset)
	binary.LittleEndian.PutUint16(pg.Data[off+2:], s.length)
	pg.IsDirty = true
}

// insertRecord appends data to the page in a new slot and returns the slot
// index. Tombstoned slots are never reused, so a RID captured before a
// delete cannot come to name a different tuple. Fails if there is not
// enough free space.
func insertRecord(pg *page.Page, data []byte) (uint16, error) {
	recLen := uint16(len(data))
	if recLen == 0 {
		return 0, fmt.Errorf("heap: cannot insert an empty record")
	}

	slotIdx := slotCount(pg)
	need := int(recLen) + slotEntrySize
	if freeSpace(pg) < need {
		return 0, fmt.Errorf("heap: page full, need %d bytes, have %d", need, freeSpace(pg))
	}

	off := recordEnd(pg)
	copy(pg.Data[off:], data)
	setRecordEnd(pg, off+recLen)
	writeSlot(pg, slotIdx, slot{offset: off, length: recLen})

	setSlotRegion(pg, slotRegion(pg)-slotEntrySize)
	setSlotCount(pg, slotCount(pg)+1)
	setNumRows(pg, numRows(pg)+1)
	pg.IsDirty = true
	return slotIdx, nil
}

// getRecord returns a copy of the record at slotIdx, or ok=false if the
// slot is out of range or tombstoned.
func getRecord(pg *page.Page, slotIdx uint16) ([]byte, bool) {
	if slotIdx >= slotCount(pg) {
		return nil, false
	}
	s := readSlot(pg, slotIdx)
	if s.length == 0 {
		return nil, false
	}
	out := make([]byte, s.length)
	copy(out, pg.Data[s.offset:int(s.offset)+int(s.length)])
	return out, true
}

// deleteRecord tombstones slotIdx: offset and length both zeroed, the slot
// entry itself kept so existing RIDs stay addressable. Space is not
// physically reclaimed; this core never compacts.
func deleteRecord(pg *page.Page, slotIdx uint16) bool {
	if slotIdx >= slotCount(pg) {
		return false
	}
	s := readSlot(pg, slotIdx)
	if s.length == 0 {
		return false
	}
	writeSlot(pg, slotIdx, slot{})
	setNumRows(pg, numRows(pg)-1)
	pg.IsDirty = true
	return true
}

// updateRecordInPlace overwrites slotIdx's bytes without moving the
// record, succeeding only if newData is no longer than the slot's current
// length. The slot's length is then set to len(newData), so a record that
// shrank cannot later grow back in place.
func updateRecordInPlace(pg *page.Page, slotIdx uint16, newData []byte) bool {
	if slotIdx >= slotCount(pg) {
		return false
	}
	s := readSlot(pg, slotIdx)
	if s.length == 0 || uint16(len(newData)) > s.length {
		return false
	}
	copy(pg.Data[s.offset:], newData)
	writeSlot(pg, slotIdx, slot{offset: s.offset, length: uint16(len(newData))})
	pg.IsDirty = true
	return true
}

// firstTupleSlot returns the first readable slot index at or after
// fromSlot.
func firstTupleSlot(pg *page.Page, fromSlot uint16) (uint16, bool) {
	for i := fromSlot; i < slotCount(pg); i++ {
		if s := readSlot(pg, i); s.length > 0 {
			return i, true
		}
	}
	return 0, false
}
