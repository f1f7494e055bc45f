// Package catalog is the table-name registry the executors resolve
// against: each table owns a heap (its row storage) and, when it has a
// primary key, an extendible hash index over that key. Grounded on
// storage_engine/catalog's schema-registration and JSON-persisted
// TableToFileId mapping, trimmed to what a single-process core needs —
// no cross-database namespacing, since this core serves a single storage
// instance.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"coredb/heap"
	"coredb/index/hash"
	"coredb/storage/buffer"
	"coredb/storage/disk"
	"coredb/types"
)

// TableInfo is everything the executors need to operate on one table.
type TableInfo struct {
	Schema      types.TableSchema
	HeapFileID  uint32
	IndexFileID uint32
	Heap        *heap.Heap
	Index       *hash.Table // nil if the table has no primary-key column
	pkColumn    string
}

// PrimaryKeyColumn returns the column name the table's hash index is
// keyed on, or "" if there is none.
func (ti *TableInfo) PrimaryKeyColumn() string { return ti.pkColumn }

// Catalog maps table names to their storage. One Catalog serves one
// buffer pool and one disk manager.
type Catalog struct {
	mu       sync.RWMutex
	dbRoot   string
	pool     *buffer.Pool
	disk     *disk.Manager
	nextFile uint32
	tables   map[string]*TableInfo
}

func New(dbRoot string, pool *buffer.Pool, diskMgr *disk.Manager) *Catalog {
	return &Catalog{
		dbRoot:   dbRoot,
		pool:     pool,
		disk:     diskMgr,
		nextFile: 1,
		tables:   make(map[string]*TableInfo),
	}
}

// IndexKey converts a primary-key column's value into the fixed int64 key
// the hash index stores.
func IndexKey(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("catalog: primary key value %v (%T) is not an integer", val, val)
}

func pkColumnOf(schema types.TableSchema) string {
	for _, c := range schema.Columns {
		if c.IsPrimaryKey {
			return c.Name
		}
	}
	return ""
}

// CreateTable registers a new table: allocates its heap file (and, if it
// has a primary key, its hash-index file), persists the schema to disk,
// and returns the live TableInfo.
func (c *Catalog) CreateTable(schema types.TableSchema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[schema.TableName]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", schema.TableName)
	}

	heapPath := filepath.Join(c.dbRoot, fmt.Sprintf("%s.heap", schema.TableName))
	heapFileID, err := c.disk.OpenFile(heapPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening heap file for %q: %w", schema.TableName, err)
	}
	h, err := heap.Create(c.pool, c.disk, heapFileID, &schema)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating heap for %q: %w", schema.TableName, err)
	}

	ti := &TableInfo{
		Schema:     schema,
		HeapFileID: heapFileID,
		Heap:       h,
		pkColumn:   pkColumnOf(schema),
	}

	if ti.pkColumn != "" {
		idxPath := filepath.Join(c.dbRoot, fmt.Sprintf("%s.idx", schema.TableName))
		indexFileID, err := c.disk.OpenFile(idxPath)
		if err != nil {
			return nil, fmt.Errorf("catalog: opening index file for %q: %w", schema.TableName, err)
		}
		idx, err := hash.New(c.pool, indexFileID)
		if err != nil {
			return nil, fmt.Errorf("catalog: creating index for %q: %w", schema.TableName, err)
		}
		ti.IndexFileID = indexFileID
		ti.Index = idx
	}

	if err := c.persistSchema(schema); err != nil {
		return nil, err
	}

	c.tables[schema.TableName] = ti
	return ti, nil
}

// GetTable returns the registered TableInfo for name, or ok=false.
func (c *Catalog) GetTable(name string) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ti, ok := c.tables[name]
	return ti, ok
}

// DropTable removes a table from the registry and deletes its persisted
// schema. It does not reclaim the heap/index files' disk pages — those
// stay allocated for the lifetime of the process, matching the
// no-physical-reclaim stance taken for tuple tombstones.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; !exists {
		return fmt.Errorf("catalog: table %q not found", name)
	}
	delete(c.tables, name)

	schemaPath := filepath.Join(c.dbRoot, "tables", name+"_schema.json")
	if err := os.Remove(schemaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("catalog: deleting schema for %q: %w", name, err)
	}
	return nil
}

func (c *Catalog) persistSchema(schema types.TableSchema) error {
	dir := filepath.Join(c.dbRoot, "tables")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("catalog: creating schema dir: %w", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshaling schema for %q: %w", schema.TableName, err)
	}
	path := filepath.Join(dir, schema.TableName+"_schema.json")
	return os.WriteFile(path, data, 0644)
}
