package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"microdb/pkg/buffer"
	"microdb/pkg/dberr"
	"microdb/pkg/record"
)

var studentFields = []record.Field{
	{Name: "id", Type: record.TypeInteger},
	{Name: "name", Type: record.TypeString},
}

func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bpm, err := buffer.NewBufferPool(buffer.DefaultPoolSize, buffer.WithLogger(logger))
	require.NoError(t, err)
	e, err := NewEngine(dir, bpm, logger)
	require.NoError(t, err)
	return e
}

func mustWhere(t *testing.T, e *Engine, table, field string, op record.Operator, lit string) record.Condition {
	t.Helper()
	schema, err := e.Schema(table)
	require.NoError(t, err)
	c, err := record.NewCompare(schema, field, op, lit)
	require.NoError(t, err)
	return c
}

func insertStudent(t *testing.T, e *Engine, id int32, name string) {
	t.Helper()
	schema, err := e.Schema("student")
	require.NoError(t, err)
	_, err = e.Insert("student", record.NewRecord(schema, record.Int(id), record.Text(name)))
	require.NoError(t, err)
}

func TestEngineInsertSelectDelete(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.CreateTable("student", studentFields))
	insertStudent(t, e, 1, "a")
	insertStudent(t, e, 2, "b")
	insertStudent(t, e, 3, "c")

	rs, err := e.Select("student", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Len())

	rs, err = e.Select("student", mustWhere(t, e, "student", "id", record.OpGreaterThan, "1"))
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())

	n, err := e.Delete("student", mustWhere(t, e, "student", "name", record.OpEqual, "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rs, err = e.Select("student", nil)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	for _, rec := range rs.Records {
		v, _ := rec.Get("name")
		assert.NotEqual(t, record.Text("b"), v)
	}
}

func TestEnginePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	require.NoError(t, e.CreateTable("student", studentFields))
	for i := int32(0); i < 500; i++ {
		insertStudent(t, e, i, "s")
	}
	require.NoError(t, e.Close())

	e2 := newTestEngine(t, dir)
	defer e2.Close()
	rs, err := e2.Select("student", nil)
	require.NoError(t, err)
	assert.Equal(t, 500, rs.Len())

	rs, err = e2.Select("student", mustWhere(t, e2, "student", "id", record.OpEqual, "499"))
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestEngineUnknownTable(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	_, err := e.Select("ghost", nil)
	assert.True(t, dberr.IsKind(err, dberr.KindNotFound))
	_, err = e.Delete("ghost", nil)
	assert.True(t, dberr.IsKind(err, dberr.KindNotFound))
	assert.True(t, dberr.IsKind(e.DropTable("ghost"), dberr.KindNotFound))
}

func TestEngineDropWithDirtyPages(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.CreateTable("student", studentFields))
	insertStudent(t, e, 1, "a")
	require.NoError(t, e.DropTable("student"))
	assert.Zero(t, e.BPM.Resident())

	// 同名表重新创建后是空的
	require.NoError(t, e.CreateTable("student", studentFields))
	rs, err := e.Select("student", nil)
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
}

func TestEngineCreateInvalidSchema(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	err := e.CreateTable("t", nil)
	assert.True(t, dberr.IsKind(err, dberr.KindEncoding), err)

	err = e.CreateTable("t", []record.Field{{Name: "a", Type: record.TypeInteger}, {Name: "a", Type: record.TypeString}})
	assert.Error(t, err)
	assert.False(t, e.Catalog.HasTable("t"))
}

func TestEngineClosed(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	require.NoError(t, e.CreateTable("student", studentFields))
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Select("student", nil)
	assert.ErrorIs(t, err, errEngineClosed)
	assert.ErrorIs(t, e.CreateTable("x", studentFields), errEngineClosed)
}

func TestEngineDescribe(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.CreateTable("student", studentFields))
	out, err := e.DescribeTable("student")
	require.NoError(t, err)
	assert.Contains(t, out, "student")
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "integer")
	assert.Contains(t, out, "string")
	assert.Contains(t, out, "25")
}
