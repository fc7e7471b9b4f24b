package db

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"microdb/pkg/buffer"
	"microdb/pkg/dberr"
	"microdb/pkg/record"
	"microdb/pkg/storage/disk"
	"microdb/pkg/storage/page"
)

const (
	DefFileExt  = ".def" // 表定义文件
	DataFileExt = ".dat" // 数据文件

	sizeOfCount = 4
	sizeOfType  = 4
)

var (
	reTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	ErrTableExists = errors.New("table already exists")
)

// Catalog 管理表定义：每张表一个 <name>.def 文件，第 0 页保存字段信息
//
//	+-----------+-----------------+-----------+----
//	| 字段数     | 字段名           | 类型编码   |
//	| (4 bytes) | (20 bytes, 补零) | (4 bytes) |
//	+-----------+-----------------+-----------+----
//
// 整数按本机字节序保存
type Catalog struct {
	Dir    string
	BPM    *buffer.BufferPool
	tables map[string]*record.Schema // 已加载的 schema
	mu     sync.RWMutex
}

func NewCatalog(bpm *buffer.BufferPool, dir string) *Catalog {
	return &Catalog{
		Dir:    dir,
		BPM:    bpm,
		tables: make(map[string]*record.Schema),
	}
}

// checkTableName 表名会拼进文件路径，只允许标识符
func checkTableName(name string) error {
	if !reTableName.MatchString(name) {
		return dberr.Syntax("invalid table name %q", name)
	}
	return nil
}

func (c *Catalog) DefPath(name string) string {
	return filepath.Join(c.Dir, name+DefFileExt)
}

func (c *Catalog) DataPath(name string) string {
	return filepath.Join(c.Dir, name+DataFileExt)
}

// CreateTable 写 .def 文件并创建空的 .dat 文件
func (c *Catalog) CreateTable(name string, schema *record.Schema) error {
	if err := checkTableName(name); err != nil {
		return err
	}
	if err := schema.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasTable(name) {
		return dberr.Conflict("create table", ErrTableExists, "table %q", name)
	}

	if err := c.writeDef(name, schema); err != nil {
		_ = disk.Delete(c.DefPath(name))
		return err
	}
	if err := disk.Create(c.DataPath(name)); err != nil {
		_ = disk.Delete(c.DefPath(name))
		return err
	}
	c.tables[name] = schema
	return nil
}

// LoadSchema 读取表定义，表不存在返回 NotFound
func (c *Catalog) LoadSchema(name string) (*record.Schema, error) {
	if err := checkTableName(name); err != nil {
		return nil, err
	}
	c.mu.RLock()
	schema, ok := c.tables[name]
	c.mu.RUnlock()
	if ok {
		return schema, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasTable(name) {
		return nil, dberr.NotFound("load schema", "table %q does not exist", name)
	}
	schema, err := c.readDef(name)
	if err != nil {
		return nil, err
	}
	c.tables[name] = schema
	return schema, nil
}

// DropTable 删除 .def 和 .dat；文件已不存在不算错误
func (c *Catalog) DropTable(name string) error {
	if err := checkTableName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasTable(name) {
		return dberr.NotFound("drop table", "table %q does not exist", name)
	}
	delete(c.tables, name)
	if err := disk.Delete(c.DefPath(name)); err != nil {
		return err
	}
	return disk.Delete(c.DataPath(name))
}

func (c *Catalog) HasTable(name string) bool {
	if checkTableName(name) != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasTable(name)
}

func (c *Catalog) hasTable(name string) bool {
	if _, ok := c.tables[name]; ok {
		return true
	}
	_, err := os.Stat(c.DefPath(name))
	return err == nil
}

// ListTables 按名字排序返回目录下所有表
func (c *Catalog) ListTables() ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, dberr.IO("list tables", err, "read dir %s", c.Dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), DefFileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), DefFileExt))
	}
	sort.Strings(names)
	return names, nil
}

func (c *Catalog) writeDef(name string, schema *record.Schema) error {
	path := c.DefPath(name)
	if err := disk.Create(path); err != nil {
		return err
	}
	f, err := disk.Open(path)
	if err != nil {
		return err
	}

	p := &page.Page{}
	marshalSchema(schema, p)
	if err := c.BPM.WritePage(f, 0, p); err != nil {
		c.BPM.Discard(f)
		_ = f.Close()
		return err
	}
	return c.BPM.CloseFile(f)
}

func (c *Catalog) readDef(name string) (*record.Schema, error) {
	f, err := disk.Open(c.DefPath(name))
	if err != nil {
		return nil, err
	}
	p := &page.Page{}
	if err := c.BPM.ReadPage(f, 0, p); err != nil {
		_ = c.BPM.CloseFile(f)
		return nil, err
	}
	if err := c.BPM.CloseFile(f); err != nil {
		return nil, err
	}
	return unmarshalSchema(p)
}

func marshalSchema(schema *record.Schema, p *page.Page) {
	p.Clear()
	buf := p.Data[:]
	binary.NativeEndian.PutUint32(buf, uint32(len(schema.Fields)))
	off := sizeOfCount
	for _, f := range schema.Fields {
		copy(buf[off:off+record.MaxFieldName], f.Name)
		off += record.MaxFieldName
		binary.NativeEndian.PutUint32(buf[off:], uint32(f.Type))
		off += sizeOfType
	}
}

func unmarshalSchema(p *page.Page) (*record.Schema, error) {
	buf := p.Data[:]
	n := int32(binary.NativeEndian.Uint32(buf))
	if n < 1 || n > record.MaxFields {
		return nil, dberr.Corrupt("load schema", "field count %d out of range", n)
	}

	fields := make([]record.Field, n)
	off := sizeOfCount
	for i := range fields {
		raw := buf[off : off+record.MaxFieldName]
		if end := bytes.IndexByte(raw, 0); end >= 0 {
			raw = raw[:end]
		}
		off += record.MaxFieldName
		fields[i] = record.Field{
			Name: string(raw),
			Type: record.FieldType(int32(binary.NativeEndian.Uint32(buf[off:]))),
		}
		off += sizeOfType
	}

	schema := &record.Schema{Fields: fields}
	if err := schema.Validate(); err != nil {
		return nil, dberr.Corrupt("load schema", "invalid table definition: %v", err)
	}
	return schema, nil
}
