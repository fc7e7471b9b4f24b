package record

import (
	"bytes"
	"strconv"
)

// Value 是字段值：Int 或 Text 之一，自带类型
type Value interface {
	Type() FieldType
	String() string
	isValue()
}

// Int 对应 integer 字段
type Int int32

// Text 对应 string 字段，编码时截断/补零到 MaxString 字节
type Text string

func (Int) Type() FieldType  { return TypeInteger }
func (Text) Type() FieldType { return TypeString }

func (v Int) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Text) String() string { return string(v) }

func (Int) isValue()  {}
func (Text) isValue() {}

// compareValues 同类型比较，返回 -1/0/1；类型不同时 ok 为 false
func compareValues(a, b Value) (int, bool) {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	case Text:
		y, ok := b.(Text)
		if !ok {
			return 0, false
		}
		return bytes.Compare([]byte(x), []byte(y)), true
	default:
		return 0, false
	}
}

// truncateText 截断到定长宽度
func truncateText(s string) Text {
	if len(s) > MaxString {
		s = s[:MaxString]
	}
	return Text(s)
}
