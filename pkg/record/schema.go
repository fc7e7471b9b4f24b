// Package record 定义表结构、记录值、定长槽位编解码以及过滤条件。
package record

import (
	"fmt"
	"strings"

	"microdb/pkg/dberr"
)

const (
	MaxFields    = 40 // 一条记录的字段数上限
	MaxFieldName = 20 // 字段名字节数上限
	MaxString    = 20 // string 字段的定长宽度
	SizeOfInt    = 4  // integer 字段宽度
)

// FieldType 字段类型，数值同时是 .def 文件中的类型编码
type FieldType int32

const (
	TypeUnknown FieldType = 0
	TypeInteger FieldType = 1
	TypeString  FieldType = 2
)

func (t FieldType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Width 返回该类型在槽位中占用的字节数；未知类型返回 0
func (t FieldType) Width() int {
	switch t {
	case TypeInteger:
		return SizeOfInt
	case TypeString:
		return MaxString
	default:
		return 0
	}
}

// ParseFieldType 识别 "integer" / "string"（不区分大小写）
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(s) {
	case "integer", "int":
		return TypeInteger, nil
	case "string":
		return TypeString, nil
	default:
		return TypeUnknown, dberr.Syntax("unknown data type %q", s)
	}
}

type Field struct {
	Name string
	Type FieldType
}

// Schema 是有序的字段列表，加载后不再修改
type Schema struct {
	Fields []Field
}

// NewSchema 创建并校验
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{Fields: fields}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate 检查字段数、字段名长度、重名和类型
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return dberr.Encoding("schema", "table needs at least one field")
	}
	if len(s.Fields) > MaxFields {
		return dberr.Encoding("schema", "too many fields: %d (max %d)", len(s.Fields), MaxFields)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return dberr.Encoding("schema", "empty field name")
		}
		if len(f.Name) > MaxFieldName {
			return dberr.Encoding("schema", "field name %q longer than %d bytes", f.Name, MaxFieldName)
		}
		if strings.IndexByte(f.Name, 0) >= 0 {
			return dberr.Encoding("schema", "field name %q contains NUL", f.Name)
		}
		if seen[f.Name] {
			return dberr.Encoding("schema", "duplicate field %q", f.Name)
		}
		if f.Type.Width() == 0 {
			return dberr.Encoding("schema", "field %q has unknown type %d", f.Name, f.Type)
		}
		seen[f.Name] = true
	}
	return nil
}

func (s *Schema) NumFields() int {
	return len(s.Fields)
}

// FieldIndex 返回字段位置，不存在返回 -1
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s *Schema) Field(name string) (Field, bool) {
	if i := s.FieldIndex(name); i >= 0 {
		return s.Fields[i], true
	}
	return Field{}, false
}

// Names 按顺序返回字段名
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// SlotSize = 1 字节占用标志 + 各字段宽度之和
func (s *Schema) SlotSize() int {
	total := 0
	for _, f := range s.Fields {
		total += f.Type.Width()
	}
	return total + 1
}

func (s *Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s %s", f.Name, f.Type)
	}
	return strings.Join(parts, ", ")
}
