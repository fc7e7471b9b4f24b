package heap

import (
	"microdb/pkg/buffer"
	"microdb/pkg/storage/disk"
	"microdb/pkg/storage/page"
)

// RID 定位一条记录：(页号, 槽位号)
type RID struct {
	Page page.PageNum
	Slot int
}

// SlotIterator 按 (页, 槽位) 顺序遍历所有占用中的槽位
// 每页只通过缓冲池读一次；被 Free 过的页在离开时写回一次
type SlotIterator struct {
	pool     *buffer.BufferPool
	file     disk.Handle
	slotSize int
	numPages int

	pageNum  page.PageNum // 当前页，-1 表示尚未开始
	curr     page.Page    // 当前页的副本
	slots    *page.SlotPage
	slot     int
	modified bool
	err      error
}

func newSlotIterator(pool *buffer.BufferPool, file disk.Handle, slotSize int) (*SlotIterator, error) {
	n, err := pool.PageCount(file)
	if err != nil {
		return nil, err
	}
	it := &SlotIterator{
		pool:     pool,
		file:     file,
		slotSize: slotSize,
		numPages: n,
		pageNum:  page.InvalidPageNum,
	}
	it.slots = page.NewSlotPage(&it.curr, slotSize)
	return it, nil
}

// Next 移动到下一个占用中的槽位；结束或出错时返回 false，错误由 Close 返回
func (it *SlotIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.pageNum != page.InvalidPageNum {
			for it.slot++; it.slot < it.slots.NumSlots(); it.slot++ {
				if it.slots.IsUsed(it.slot) {
					return true
				}
			}
		}

		// 当前页结束，切换到下一页
		if err := it.flush(); err != nil {
			it.err = err
			return false
		}
		if int(it.pageNum)+1 >= it.numPages {
			return false
		}
		it.pageNum++
		if err := it.pool.ReadPage(it.file, it.pageNum, &it.curr); err != nil {
			it.err = err
			return false
		}
		it.slot = -1
	}
}

// Slot 返回当前槽位（与页副本共享内存）
func (it *SlotIterator) Slot() []byte {
	return it.slots.Slot(it.slot)
}

func (it *SlotIterator) RID() RID {
	return RID{Page: it.pageNum, Slot: it.slot}
}

// Free 清除当前槽位的占用标志，页在离开时写回
func (it *SlotIterator) Free() {
	it.slots.Free(it.slot)
	it.modified = true
}

// Close 写回尚未写回的修改
func (it *SlotIterator) Close() error {
	if err := it.flush(); err != nil {
		return err
	}
	return it.err
}

func (it *SlotIterator) flush() error {
	if !it.modified {
		return nil
	}
	if err := it.pool.WritePage(it.file, it.pageNum, &it.curr); err != nil {
		return err
	}
	it.modified = false
	return nil
}
