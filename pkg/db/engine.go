package db

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"microdb/pkg/buffer"
	"microdb/pkg/dberr"
	"microdb/pkg/record"
	"microdb/pkg/storage/disk"
	"microdb/pkg/storage/heap"
)

// Engine 是进程级的上下文：缓冲池、Catalog 和已打开的数据文件
// 每个公开方法都持有 mu，保证缓冲池操作对其它会话是原子的
type Engine struct {
	BPM      *buffer.BufferPool
	Catalog  *Catalog
	DataRoot string
	Logger   *zap.Logger

	mu     sync.Mutex
	tables map[string]disk.Handle // 表名 -> 数据文件句柄
	closed bool
}

func NewEngine(dataRoot string, bpm *buffer.BufferPool, logger *zap.Logger) (*Engine, error) {
	if err := os.MkdirAll(dataRoot, 0755); err != nil {
		return nil, dberr.IO("new engine", err, "mkdir %s", dataRoot)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		BPM:      bpm,
		Catalog:  NewCatalog(bpm, dataRoot),
		DataRoot: dataRoot,
		Logger:   logger.Named("engine"),
		tables:   make(map[string]disk.Handle),
	}, nil
}

var errEngineClosed = errors.New("engine is closed")

// ---------------- 表操作 ----------------

func (e *Engine) CreateTable(name string, fields []record.Field) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}

	schema, err := record.NewSchema(fields...)
	if err != nil {
		return err
	}
	if err := e.Catalog.CreateTable(name, schema); err != nil {
		return err
	}
	e.Logger.Info("table created", zap.String("table", name), zap.Stringer("schema", schema))
	return nil
}

// DropTable 丢弃缓存页、关闭数据文件，然后删除表文件
func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}

	if h, ok := e.tables[name]; ok {
		e.BPM.Discard(h)
		if err := h.Close(); err != nil {
			e.Logger.Warn("close data file", zap.String("table", name), zap.Error(err))
		}
		delete(e.tables, name)
	}
	if err := e.Catalog.DropTable(name); err != nil {
		return err
	}
	e.Logger.Info("table dropped", zap.String("table", name))
	return nil
}

// Schema 返回表定义
func (e *Engine) Schema(name string) (*record.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errEngineClosed
	}
	return e.Catalog.LoadSchema(name)
}

func (e *Engine) Insert(name string, rec *record.Record) (heap.RID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.openTable(name)
	if err != nil {
		return heap.RID{}, err
	}
	return t.Insert(rec)
}

// Select 返回满足 cond 的记录；cond 为 nil 时返回全部
func (e *Engine) Select(name string, cond record.Condition) (*record.RecordSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.openTable(name)
	if err != nil {
		return nil, err
	}
	return t.Scan(cond)
}

// Delete 删除满足 cond 的记录，返回删除条数
func (e *Engine) Delete(name string, cond record.Condition) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.openTable(name)
	if err != nil {
		return 0, err
	}
	n, err := t.DeleteWhere(cond)
	if err != nil {
		return n, err
	}
	e.Logger.Debug("records deleted", zap.String("table", name), zap.Int("count", n))
	return n, nil
}

func (e *Engine) ListTables() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Catalog.ListTables()
}

// DescribeTable 返回表定义的文字描述
func (e *Engine) DescribeTable(name string) (string, error) {
	schema, err := e.Schema(name)
	if err != nil {
		return "", err
	}
	return renderSchema(name, schema), nil
}

// Close 刷盘并关闭所有数据文件；之后的调用都会失败
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := e.BPM.CloseFile(e.tables[name]); err != nil {
			e.Logger.Error("close table", zap.String("table", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(e.tables, name)
	}
	if err := e.BPM.FlushAllPages(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr == nil {
		e.closed = true
	}
	return firstErr
}

// openTable 调用方必须持有 mu
func (e *Engine) openTable(name string) (*heap.Table, error) {
	if e.closed {
		return nil, errEngineClosed
	}
	schema, err := e.Catalog.LoadSchema(name)
	if err != nil {
		return nil, err
	}

	h, ok := e.tables[name]
	if !ok {
		f, err := disk.Open(e.Catalog.DataPath(name))
		if err != nil {
			return nil, fmt.Errorf("open data file of %s: %w", name, err)
		}
		e.tables[name] = f
		h = f
		e.Logger.Debug("data file opened", zap.String("table", name), zap.Stringer("handle", f.ID()))
	}
	return heap.NewTable(e.BPM, h, schema, e.Logger)
}
