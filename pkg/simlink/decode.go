package simlink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeRow decodes one packed, little-endian row of raw bytes against a
// DataModel's variable list. Each variable's Kind determines its stride;
// there is no implicit padding, matching the vendor channel's wire layout.
// This replaces a reinterpret-cast of the payload with an explicit,
// schema-aware walk.
func DecodeRow(model DataModel, raw []byte) ([]any, error) {
	row := make([]any, len(model.Vars))
	offset := 0

	for i, v := range model.Vars {
		stride := v.Kind.Stride()
		if offset+stride > len(raw) {
			return nil, fmt.Errorf("decode row: variable %q needs %d bytes at offset %d, only %d available", v.Name, stride, offset, len(raw))
		}
		chunk := raw[offset : offset+stride]

		switch v.Kind {
		case VarInt32:
			row[i] = int64(int32(binary.LittleEndian.Uint32(chunk)))
		case VarInt64:
			row[i] = int64(binary.LittleEndian.Uint64(chunk))
		case VarFloat32:
			row[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case VarFloat64:
			row[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		case VarString8, VarString32, VarString64, VarString128, VarString256:
			if idx := bytes.IndexByte(chunk, 0); idx >= 0 {
				row[i] = string(chunk[:idx])
			} else {
				row[i] = string(chunk)
			}
		default:
			return nil, fmt.Errorf("decode row: unknown kind for variable %q", v.Name)
		}

		offset += stride
	}

	return row, nil
}

// RowFloat returns row[i] as a float64, accepting either a float or int
// value since Bool/Enum simvars are commonly declared as either kind.
func RowFloat(row []any, i int) float64 {
	switch v := row[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// RowInt returns row[i] as an int64.
func RowInt(row []any, i int) int64 {
	switch v := row[i].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// RowString returns row[i] as a string.
func RowString(row []any, i int) string {
	if s, ok := row[i].(string); ok {
		return s
	}
	return ""
}

// RowBool returns row[i] truthy as a bool (nonzero numeric).
func RowBool(row []any, i int) bool {
	return RowFloat(row, i) != 0
}
