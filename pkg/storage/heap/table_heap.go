// Package heap 实现定长记录的堆文件：插入、全表扫描和按条件删除。
package heap

import (
	"go.uber.org/zap"

	"microdb/pkg/buffer"
	"microdb/pkg/record"
	"microdb/pkg/storage/disk"
	"microdb/pkg/storage/page"
)

// Table 是一张表的数据文件，所有页 I/O 都经过缓冲池
type Table struct {
	pool     *buffer.BufferPool
	file     disk.Handle
	schema   *record.Schema
	slotSize int
	logger   *zap.Logger
}

func NewTable(pool *buffer.BufferPool, file disk.Handle, schema *record.Schema, logger *zap.Logger) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		pool:     pool,
		file:     file,
		schema:   schema,
		slotSize: schema.SlotSize(),
		logger:   logger.Named("heap"),
	}, nil
}

func (t *Table) Schema() *record.Schema {
	return t.schema
}

// Insert 从第 0 页开始找第一个空闲槽位写入
// 所有页都满时在末尾追加一个新页，记录放在槽位 0
func (t *Table) Insert(rec *record.Record) (RID, error) {
	slot, err := record.Encode(t.schema, rec)
	if err != nil {
		return RID{}, err
	}

	numPages, err := t.pool.PageCount(t.file)
	if err != nil {
		return RID{}, err
	}

	var p page.Page
	sp := page.NewSlotPage(&p, t.slotSize)
	for i := 0; i < numPages; i++ {
		pageNum := page.PageNum(i)
		if err := t.pool.ReadPage(t.file, pageNum, &p); err != nil {
			return RID{}, err
		}
		if free := sp.FirstFree(); free >= 0 {
			sp.Put(free, slot)
			if err := t.pool.WritePage(t.file, pageNum, &p); err != nil {
				return RID{}, err
			}
			return RID{Page: pageNum, Slot: free}, nil
		}
	}

	// 文件中没有空位：追加一个全零的新页
	p.Clear()
	sp.Put(0, slot)
	pageNum := page.PageNum(numPages)
	if err := t.pool.WritePage(t.file, pageNum, &p); err != nil {
		return RID{}, err
	}
	t.logger.Debug("append page",
		zap.String("file", t.file.Name()),
		zap.Int32("page", int32(pageNum)))
	return RID{Page: pageNum, Slot: 0}, nil
}

// Scan 读出满足 cond 的所有记录；cond 为 nil 时返回全部
// 结果按发现顺序的逆序排列；任何解码失败都会中止整个扫描
func (t *Table) Scan(cond record.Condition) (*record.RecordSet, error) {
	it, err := newSlotIterator(t.pool, t.file, t.slotSize)
	if err != nil {
		return nil, err
	}

	rs := &record.RecordSet{}
	for it.Next() {
		rec, err := record.Decode(t.schema, it.Slot())
		if err != nil {
			t.logger.Warn("scan aborted",
				zap.String("file", t.file.Name()),
				zap.Int32("page", int32(it.RID().Page)),
				zap.Int("slot", it.RID().Slot),
				zap.Error(err))
			return nil, err
		}
		if record.Matches(cond, &rec) {
			rs.Add(rec)
		}
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	rs.Reverse()
	return rs, nil
}

// DeleteWhere 清除满足 cond 的槽位的占用标志，返回删除的条数
// 只有真正删除过记录的页才会被写回
func (t *Table) DeleteWhere(cond record.Condition) (int, error) {
	it, err := newSlotIterator(t.pool, t.file, t.slotSize)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for it.Next() {
		rec, err := record.Decode(t.schema, it.Slot())
		if err != nil {
			// 已经处理过的页保持一致，把当前页的修改写回后再返回
			if cerr := it.Close(); cerr != nil {
				t.logger.Warn("write back after failed delete", zap.Error(cerr))
			}
			return deleted, err
		}
		if record.Matches(cond, &rec) {
			it.Free()
			deleted++
		}
	}
	if err := it.Close(); err != nil {
		return deleted, err
	}
	return deleted, nil
}
