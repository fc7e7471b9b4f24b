package buffer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"microdb/pkg/dberr"
	"microdb/pkg/storage/disk"
	"microdb/pkg/storage/page"
)

// DefaultPoolSize 是缓冲区的默认页数
const DefaultPoolSize = 4

// pageKey 缓存键：(文件句柄, 页号)
type pageKey struct {
	file    disk.Handle
	pageNum page.PageNum
}

// frame 是一个缓冲区：一页的副本 + 它当前代表的 (文件, 页号) + 脏标志
// file == nil 表示尚未分配
type frame struct {
	file    disk.Handle
	pageNum page.PageNum
	dirty   bool
	data    page.Page
}

func (f *frame) assigned() bool {
	return f.file != nil
}

// BufferPool 固定容量的页缓存，LRU 淘汰 + 写回
// 上层的所有页 I/O 都经过这里
type BufferPool struct {
	mu        sync.Mutex
	frames    []frame          // 实际的内存池 (数组大小固定)
	replacer  *lruList         // LRU 顺序
	pageTable map[pageKey]int  // 映射表: (文件, 页号) -> FrameID
	scratch   page.Page        // 从磁盘加载时的临时页，加载成功后才替换 Frame 内容
	logger    *zap.Logger
	metrics   *poolMetrics
}

type Option func(*options)

type options struct {
	logger   *zap.Logger
	registry prometheus.Registerer
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer 把命中/未命中/淘汰/写回计数注册到 reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// NewBufferPool 初始化；所有 Frame 一次分配，之后不再扩容
func NewBufferPool(poolSize int, opts ...Option) (*BufferPool, error) {
	if poolSize < 1 {
		return nil, dberr.Capacity("new buffer pool", "pool size must be positive, got %d", poolSize)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	bp := &BufferPool{
		frames:    make([]frame, poolSize),
		replacer:  newLRUList(poolSize),
		pageTable: make(map[pageKey]int, poolSize),
		logger:    o.logger.Named("buffer"),
		metrics:   newPoolMetrics(o.registry),
	}
	for i := range bp.frames {
		bp.frames[i].pageNum = page.InvalidPageNum
	}
	return bp, nil
}

// Size 返回 Frame 总数
func (b *BufferPool) Size() int {
	return len(b.frames)
}

// ReadPage 把 (file, pageNum) 的内容拷贝到 dst
// 1. 如果在缓存中，直接拷贝
// 2. 如果不在，从磁盘读取到缓存（可能需要驱逐旧页）
func (b *BufferPool) ReadPage(file disk.Handle, pageNum page.PageNum, dst *page.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pageKey{file: file, pageNum: pageNum}

	// 缓存命中
	if frameID, ok := b.pageTable[key]; ok {
		b.metrics.hits.Inc()
		dst.CopyFrom(&b.frames[frameID].data)
		b.replacer.touch(frameID)
		return nil
	}

	b.metrics.misses.Inc()
	frameID, err := b.findVictimFrame()
	if err != nil {
		return err
	}

	// 先读到临时页，失败时 Frame 保持原状
	if err := file.ReadPage(pageNum, &b.scratch); err != nil {
		b.logger.Warn("page load failed",
			zap.String("file", file.Name()),
			zap.Int32("page", int32(pageNum)),
			zap.Error(err))
		return err
	}

	f := b.install(frameID, key)
	f.data.CopyFrom(&b.scratch)
	f.dirty = false

	dst.CopyFrom(&f.data)
	return nil
}

// WritePage 把 src 写入缓存并标记为脏，不会同步写盘
func (b *BufferPool) WritePage(file disk.Handle, pageNum page.PageNum, src *page.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pageNum < 0 {
		return dberr.IO("write page", nil, "invalid page number %d", pageNum)
	}

	key := pageKey{file: file, pageNum: pageNum}

	if frameID, ok := b.pageTable[key]; ok {
		b.metrics.hits.Inc()
		f := &b.frames[frameID]
		f.data.CopyFrom(src)
		f.dirty = true
		b.replacer.touch(frameID)
		return nil
	}

	b.metrics.misses.Inc()
	frameID, err := b.findVictimFrame()
	if err != nil {
		return err
	}

	f := b.install(frameID, key)
	f.data.CopyFrom(src)
	f.dirty = true
	return nil
}

// FlushAll 把 file 的所有脏页写盘
// 中途失败立即返回，尚未写出的页保持脏，不会丢数据
func (b *BufferPool) FlushAll(file disk.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushFile(file)
}

// CloseFile 先刷盘，再释放 file 占用的 Frame，最后关闭文件
// 刷盘失败时不关闭文件，调用方可以重试
func (b *BufferPool) CloseFile(file disk.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.flushFile(file); err != nil {
		return err
	}
	b.releaseFile(file)
	return file.Close()
}

// Discard 丢弃 file 的所有缓存页（不写回），用于删除文件之前
func (b *BufferPool) Discard(file disk.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseFile(file)
}

// PageCount 返回 file 的逻辑页数
// 追加的新页可能还只在缓存里，所以取磁盘页数和缓存中最大页号+1 的较大者
func (b *BufferPool) PageCount(file disk.Handle) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := file.NumPages()
	if err != nil {
		return -1, err
	}
	for key := range b.pageTable {
		if key.file == file && int(key.pageNum)+1 > n {
			n = int(key.pageNum) + 1
		}
	}
	return n, nil
}

// FlushAllPages 把所有文件的脏页写盘（关闭时调用）
// 遇到错误继续刷其余的页，返回第一个错误
func (b *BufferPool) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for i := range b.frames {
		f := &b.frames[i]
		if !f.assigned() || !f.dirty {
			continue
		}
		if err := b.writeBack(f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Resident 返回当前驻留的 (文件名, 页号) 数量
func (b *BufferPool) Resident() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pageTable)
}

// Contains 判断 (file, pageNum) 是否驻留
func (b *BufferPool) Contains(file disk.Handle, pageNum page.PageNum) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pageTable[pageKey{file: file, pageNum: pageNum}]
	return ok
}

// IsDirty 判断 (file, pageNum) 是否驻留且为脏
func (b *BufferPool) IsDirty(file disk.Handle, pageNum page.PageNum) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	frameID, ok := b.pageTable[pageKey{file: file, pageNum: pageNum}]
	return ok && b.frames[frameID].dirty
}

// findVictimFrame 寻找可用的 FrameID
// 顺序：未分配的 Frame > 最久未用的干净 Frame > LRU 尾部（先写回）
// 写回失败时不修改任何状态
func (b *BufferPool) findVictimFrame() (int, error) {
	tail := b.replacer.back()
	if tail == nilFrame {
		return -1, dberr.Capacity("find victim", "buffer pool has no frames")
	}

	for id := tail; id != nilFrame; id = b.replacer.older(id) {
		if !b.frames[id].assigned() {
			return id, nil
		}
	}

	for id := tail; id != nilFrame; id = b.replacer.older(id) {
		if !b.frames[id].dirty {
			return id, nil
		}
	}

	// 驱逐前必须写回到它当前所属的文件/页，否则原文件的数据会丢
	victim := &b.frames[tail]
	if err := b.writeBack(victim); err != nil {
		return -1, err
	}
	return tail, nil
}

// install 把 frameID 重新分配给 key 并标为最近使用
// 调用前所有可能失败的 I/O 必须已经完成
func (b *BufferPool) install(frameID int, key pageKey) *frame {
	f := &b.frames[frameID]
	if f.assigned() {
		b.metrics.evictions.Inc()
		b.logger.Debug("evict page",
			zap.String("file", f.file.Name()),
			zap.Stringer("handle", f.file.ID()),
			zap.Int32("page", int32(f.pageNum)),
			zap.Int("frame", frameID))
		delete(b.pageTable, pageKey{file: f.file, pageNum: f.pageNum})
	}
	f.file = key.file
	f.pageNum = key.pageNum
	b.pageTable[key] = frameID
	b.replacer.touch(frameID)
	return f
}

// writeBack 写盘成功后才清除脏标志
func (b *BufferPool) writeBack(f *frame) error {
	if err := f.file.WritePage(f.pageNum, &f.data); err != nil {
		b.logger.Warn("write-back failed",
			zap.String("file", f.file.Name()),
			zap.Int32("page", int32(f.pageNum)),
			zap.Error(err))
		return err
	}
	b.metrics.writebacks.Inc()
	b.logger.Debug("write back page",
		zap.String("file", f.file.Name()),
		zap.Stringer("handle", f.file.ID()),
		zap.Int32("page", int32(f.pageNum)))
	f.dirty = false
	return nil
}

func (b *BufferPool) flushFile(file disk.Handle) error {
	for i := range b.frames {
		f := &b.frames[i]
		if f.file != file || !f.dirty {
			continue
		}
		if err := b.writeBack(f); err != nil {
			return err
		}
	}
	return nil
}

// releaseFile 把 file 的 Frame 置为未分配并移到 LRU 尾部
func (b *BufferPool) releaseFile(file disk.Handle) {
	for i := range b.frames {
		f := &b.frames[i]
		if f.file != file {
			continue
		}
		delete(b.pageTable, pageKey{file: f.file, pageNum: f.pageNum})
		f.file = nil
		f.pageNum = page.InvalidPageNum
		f.dirty = false
		b.replacer.demote(i)
	}
}
