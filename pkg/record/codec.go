package record

import (
	"bytes"
	"encoding/binary"
	"strings"

	"microdb/pkg/dberr"
	"microdb/pkg/storage/page"
)

// 整数按本机字节序存储，数据文件不要求可移植
var byteOrder = binary.NativeEndian

// Encode 把记录编码成一个占用中的槽位
// 记录必须按 schema 顺序为每个字段提供同类型的值
func Encode(schema *Schema, rec *Record) ([]byte, error) {
	buf := make([]byte, schema.SlotSize())
	if err := EncodeInto(schema, rec, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto 编码到 dst，dst 至少为 SlotSize 字节
func EncodeInto(schema *Schema, rec *Record, dst []byte) error {
	if rec == nil {
		return dberr.Encoding("encode", "nil record")
	}
	if len(rec.Fields) != len(schema.Fields) {
		return dberr.Encoding("encode", "record has %d fields, table has %d", len(rec.Fields), len(schema.Fields))
	}
	size := schema.SlotSize()
	if len(dst) < size {
		return dberr.Encoding("encode", "slot buffer is %d bytes, need %d", len(dst), size)
	}

	p := dst[:size]
	p[0] = page.SlotUsed
	off := page.SizeOfFlag
	for i, field := range schema.Fields {
		fd := rec.Fields[i]
		if fd.Name != "" && fd.Name != field.Name {
			return dberr.Encoding("encode", "field %d is %q, expected %q", i, fd.Name, field.Name)
		}
		if fd.Value == nil {
			return dberr.Encoding("encode", "missing value for field %q", field.Name)
		}
		if fd.Value.Type() != field.Type {
			return dberr.Encoding("encode", "field %q expects %s, got %s", field.Name, field.Type, fd.Value.Type())
		}

		switch v := fd.Value.(type) {
		case Int:
			byteOrder.PutUint32(p[off:], uint32(v))
		case Text:
			if strings.IndexByte(string(v), 0) >= 0 {
				return dberr.Encoding("encode", "field %q contains NUL", field.Name)
			}
			w := p[off : off+MaxString]
			clear(w)
			copy(w, truncateText(string(v)))
		}
		off += field.Type.Width()
	}
	return nil
}

// Decode 把占用中的槽位解码成记录
func Decode(schema *Schema, slot []byte) (Record, error) {
	size := schema.SlotSize()
	if len(slot) < size {
		return Record{}, dberr.Corrupt("decode", "slot is %d bytes, need %d", len(slot), size)
	}
	if slot[0] != page.SlotUsed {
		return Record{}, dberr.Corrupt("decode", "occupancy flag is %d", slot[0])
	}

	rec := Record{Fields: make([]FieldData, len(schema.Fields))}
	off := page.SizeOfFlag
	for i, field := range schema.Fields {
		var v Value
		switch field.Type {
		case TypeInteger:
			v = Int(int32(byteOrder.Uint32(slot[off:])))
		case TypeString:
			raw := slot[off : off+MaxString]
			if n := bytes.IndexByte(raw, 0); n >= 0 {
				raw = raw[:n]
			}
			v = Text(raw)
		default:
			return Record{}, dberr.Corrupt("decode", "field %q has unknown type %d", field.Name, field.Type)
		}
		rec.Fields[i] = FieldData{Name: field.Name, Value: v}
		off += field.Type.Width()
	}
	return rec, nil
}
