package record

import (
	"strconv"

	"microdb/pkg/dberr"
)

// Operator 比较运算符
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpLessThan
)

func (op Operator) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	default:
		return "?"
	}
}

// ParseOperator 识别 = != <> > <
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "=", "==":
		return OpEqual, nil
	case "!=", "<>":
		return OpNotEqual, nil
	case ">":
		return OpGreaterThan, nil
	case "<":
		return OpLessThan, nil
	default:
		return 0, dberr.Syntax("unknown comparison operator %q", s)
	}
}

// Condition 是过滤条件的表达式树
type Condition interface {
	Match(rec *Record) bool
	String() string
}

// Compare 字段与常量的比较
type Compare struct {
	Field string
	Op    Operator
	Value Value
}

// And / Or 组合两个子条件
type And struct {
	Left, Right Condition
}

type Or struct {
	Left, Right Condition
}

// NewCompare 根据 schema 确定比较类型并解析常量
// 字段不存在返回 NotFound；integer 字段的常量必须是 32 位整数
func NewCompare(schema *Schema, field string, op Operator, literal string) (*Compare, error) {
	f, ok := schema.Field(field)
	if !ok {
		return nil, dberr.NotFound("condition", "field %q does not exist", field)
	}

	var v Value
	switch f.Type {
	case TypeInteger:
		n, err := strconv.ParseInt(literal, 10, 32)
		if err != nil {
			return nil, dberr.Encoding("condition", "field %q expects an integer, got %q", field, literal)
		}
		v = Int(n)
	case TypeString:
		v = truncateText(literal)
	default:
		return nil, dberr.Corrupt("condition", "field %q has unknown type %d", field, f.Type)
	}
	return &Compare{Field: field, Op: op, Value: v}, nil
}

// Match 记录中没有该字段、或类型不一致时视为不满足
func (c *Compare) Match(rec *Record) bool {
	v, ok := rec.Get(c.Field)
	if !ok || v == nil {
		return false
	}
	cmp, ok := compareValues(v, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreaterThan:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	default:
		return false
	}
}

func (c *Compare) String() string {
	if _, ok := c.Value.(Text); ok {
		return c.Field + " " + c.Op.String() + " " + strconv.Quote(c.Value.String())
	}
	return c.Field + " " + c.Op.String() + " " + c.Value.String()
}

func (a *And) Match(rec *Record) bool {
	return a.Left.Match(rec) && a.Right.Match(rec)
}

func (a *And) String() string {
	return "(" + a.Left.String() + " && " + a.Right.String() + ")"
}

func (o *Or) Match(rec *Record) bool {
	return o.Left.Match(rec) || o.Right.Match(rec)
}

func (o *Or) String() string {
	return "(" + o.Left.String() + " || " + o.Right.String() + ")"
}

// Matches 对 nil 条件返回 true（不带 where 的语句）
func Matches(cond Condition, rec *Record) bool {
	if cond == nil {
		return true
	}
	return cond.Match(rec)
}
