package db

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"microdb/pkg/record"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderRecordSet 以 schema 的字段顺序为列
func renderRecordSet(schema *record.Schema, rs *record.RecordSet) string {
	t := newTable(schema.Names()...)
	for i := range rs.Records {
		t.Row(rs.Records[i].Values()...)
	}
	return t.String()
}

func renderSchema(name string, schema *record.Schema) string {
	t := newTable("Field", "Type", "Width")
	for _, f := range schema.Fields {
		t.Row(f.Name, f.Type.String(), strconv.Itoa(f.Type.Width()))
	}
	return fmt.Sprintf("Table %s (slot size %d bytes)\n%s", name, schema.SlotSize(), t.String())
}

func rowsAffected(n int) string {
	if n == 1 {
		return "Query OK, 1 row affected."
	}
	return fmt.Sprintf("Query OK, %d rows affected.", n)
}
