package record

import "strings"

// FieldData 一个带名字的字段值
type FieldData struct {
	Name  string
	Value Value
}

// Record 是解码后的一条记录，字段按 schema 顺序排列
type Record struct {
	Fields []FieldData
}

// NewRecord 按 schema 顺序给字段命名
func NewRecord(schema *Schema, values ...Value) *Record {
	rec := &Record{Fields: make([]FieldData, len(values))}
	for i, v := range values {
		name := ""
		if i < len(schema.Fields) {
			name = schema.Fields[i].Name
		}
		rec.Fields[i] = FieldData{Name: name, Value: v}
	}
	return rec
}

// Get 按字段名取值
func (r *Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Values 以字符串形式返回所有字段值
func (r *Record) Values() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		if f.Value != nil {
			out[i] = f.Value.String()
		}
	}
	return out
}

func (r *Record) String() string {
	return "(" + strings.Join(r.Values(), ", ") + ")"
}

// RecordSet 是一次扫描的结果
// 顺序是物理发现顺序的逆序（最后匹配的 (页, 槽位) 在最前），不作为稳定的接口约定
type RecordSet struct {
	Records []Record
}

func (rs *RecordSet) Len() int {
	return len(rs.Records)
}

func (rs *RecordSet) Add(rec Record) {
	rs.Records = append(rs.Records, rec)
}

// Reverse 原地反转顺序
func (rs *RecordSet) Reverse() {
	for i, j := 0, len(rs.Records)-1; i < j; i, j = i+1, j-1 {
		rs.Records[i], rs.Records[j] = rs.Records[j], rs.Records[i]
	}
}
