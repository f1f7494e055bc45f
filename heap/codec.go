package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"coredb/types"
)

// EncodeRow packs row's values into bytes ordered by schema's columns,
// grounded on storage_engine.SerializeRowFromMap's fixed-width/length-
// prefixed column codec.
func EncodeRow(schema *types.TableSchema, row types.Row) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, col := range schema.Columns {
		val, ok := row.Values[strings.ToLower(col.Name)]
		if !ok {
			return nil, fmt.Errorf("heap: missing value for column %q", col.Name)
		}
		b, err := valueToBytes(val, col.Type)
		if err != nil {
			return nil, fmt.Errorf("heap: column %q: %w", col.Name, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// DecodeRow unpacks data into a Row keyed by schema's column names.
func DecodeRow(schema *types.TableSchema, data []byte) (types.Row, error) {
	row := types.NewRow()
	offset := 0
	for _, col := range schema.Columns {
		if offset > len(data) {
			return row, fmt.Errorf("heap: column %q: short row", col.Name)
		}
		val, n, err := bytesToValue(data[offset:], col.Type)
		if err != nil {
			return row, fmt.Errorf("heap: column %q: %w", col.Name, err)
		}
		row.Set(col.Name, val)
		offset += n
	}
	return row, nil
}

func valueToBytes(val any, typ string) ([]byte, error) {
	buf := new(bytes.Buffer)
	switch strings.ToUpper(typ) {
	case "INT", "INTEGER", "BIGINT":
		i, err := toInt64(val)
		if err != nil {
			return nil, err
		}
		binary.Write(buf, binary.LittleEndian, i)
		return buf.Bytes(), nil

	case "FLOAT", "DOUBLE":
		f, err := toFloat64(val)
		if err != nil {
			return nil, err
		}
		binary.Write(buf, binary.LittleEndian, math.Float64bits(f))
		return buf.Bytes(), nil

	case "BOOL", "BOOLEAN":
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", val)
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return buf.Bytes(), nil

	case "VARCHAR", "TEXT", "STRING":
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", val)
		}
		if len(s) > 65535 {
			return nil, fmt.Errorf("varchar too long: %d bytes", len(s))
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(s)))
		buf.WriteString(s)
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported column type %q", typ)
}

func bytesToValue(b []byte, typ string) (any, int, error) {
	switch strings.ToUpper(typ) {
	case "INT", "INTEGER", "BIGINT":
		if len(b) < 8 {
			return nil, 0, fmt.Errorf("not enough bytes for int")
		}
		return int64(binary.LittleEndian.Uint64(b[:8])), 8, nil

	case "FLOAT", "DOUBLE":
		if len(b) < 8 {
			return nil, 0, fmt.Errorf("not enough bytes for float")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b[:8])), 8, nil

	case "BOOL", "BOOLEAN":
		if len(b) < 1 {
			return nil, 0, fmt.Errorf("not enough bytes for bool")
		}
		return b[0] != 0, 1, nil

	case "VARCHAR", "TEXT", "STRING":
		if len(b) < 2 {
			return nil, 0, fmt.Errorf("not enough bytes for varchar length")
		}
		strlen := int(binary.LittleEndian.Uint16(b[:2]))
		if len(b) < 2+strlen {
			return nil, 0, fmt.Errorf("varchar length exceeds row size")
		}
		return string(b[2 : 2+strlen]), 2 + strlen, nil
	}
	return nil, 0, fmt.Errorf("unsupported column type %q", typ)
}

func toInt64(val any) (int64, error) {
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
	return 0, fmt.Errorf("want int, got %T", val)
}

func toFloat64(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("want float, got %T", val)
}
