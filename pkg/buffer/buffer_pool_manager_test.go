package buffer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"microdb/pkg/dberr"
	"microdb/pkg/storage/disk"
	"microdb/pkg/storage/page"
)

// memFile 是内存中的 Handle，记录读写次数并可注入故障
type memFile struct {
	id        uuid.UUID
	name      string
	pages     map[page.PageNum]page.Page
	reads     int
	writes    int
	failRead  bool
	failWrite bool
	closed    bool
}

func newMemFile(name string) *memFile {
	return &memFile{id: uuid.New(), name: name, pages: map[page.PageNum]page.Page{}}
}

func (m *memFile) ID() uuid.UUID { return m.id }
func (m *memFile) Name() string  { return m.name }

func (m *memFile) ReadPage(n page.PageNum, p *page.Page) error {
	if m.failRead {
		return dberr.IO("read page", errors.New("injected"), "page %d", n)
	}
	src, ok := m.pages[n]
	if !ok {
		return dberr.IO("read page", nil, "page %d beyond end", n)
	}
	m.reads++
	p.CopyFrom(&src)
	return nil
}

func (m *memFile) WritePage(n page.PageNum, p *page.Page) error {
	if m.failWrite {
		return dberr.IO("write page", errors.New("injected"), "page %d", n)
	}
	m.writes++
	m.pages[n] = *p
	return nil
}

func (m *memFile) NumPages() (int, error) {
	n := 0
	for k := range m.pages {
		if int(k)+1 > n {
			n = int(k) + 1
		}
	}
	return n, nil
}

func (m *memFile) Close() error {
	m.closed = true
	return nil
}

func pageWith(s string) *page.Page {
	p := &page.Page{}
	copy(p.Data[:], s)
	return p
}

func newPool(t *testing.T, size int) *BufferPool {
	t.Helper()
	bp, err := NewBufferPool(size, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return bp
}

// checkInvariant 驻留键无重复且不超过容量
func checkInvariant(t *testing.T, bp *BufferPool) {
	t.Helper()
	seen := map[pageKey]bool{}
	for i := range bp.frames {
		f := &bp.frames[i]
		if !f.assigned() {
			continue
		}
		key := pageKey{file: f.file, pageNum: f.pageNum}
		assert.False(t, seen[key], "duplicate resident key %v", key.pageNum)
		seen[key] = true
		assert.Equal(t, i, bp.pageTable[key])
	}
	assert.Equal(t, len(seen), len(bp.pageTable))
	assert.LessOrEqual(t, len(bp.pageTable), bp.Size())
	assert.Len(t, bp.replacer.order(), bp.Size())
}

func TestNewBufferPoolRejectsEmptyPool(t *testing.T) {
	_, err := NewBufferPool(0)
	assert.True(t, dberr.IsKind(err, dberr.KindCapacity))
}

func TestEvictionWritesBack(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 4)

	// 写 5 个不同的页，第 5 次写入会驱逐 Page 0 并写回
	for i := 0; i < 5; i++ {
		require.NoError(t, bp.WritePage(f, page.PageNum(i), pageWith(string(rune('A'+i))+" page")))
		checkInvariant(t, bp)
	}
	assert.Equal(t, 1, f.writes)
	assert.False(t, bp.Contains(f, 0))
	{
		stored := f.pages[0]
		assert.Equal(t, "A page", string(stored.Data[:6]))
	}

	// 再次读取 Page 0 -> 必须从磁盘读回来
	got := &page.Page{}
	require.NoError(t, bp.ReadPage(f, 0, got))
	assert.Equal(t, 1, f.reads)
	assert.Equal(t, "A page", string(got.Data[:6]))
	assert.True(t, bp.Contains(f, 0))
	checkInvariant(t, bp)
}

func TestEvictionWithRealFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "t.dat")
	require.NoError(t, disk.Create(name))
	f, err := disk.Open(name)
	require.NoError(t, err)

	bp := newPool(t, 4)
	for i := 0; i < 5; i++ {
		require.NoError(t, bp.WritePage(f, page.PageNum(i), pageWith("Page Data "+string(rune('0'+i)))))
	}

	n, err := disk.PageCount(name)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the evicted page reaches disk")

	n, err = bp.PageCount(f)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got := &page.Page{}
	require.NoError(t, bp.ReadPage(f, 0, got))
	assert.Equal(t, "Page Data 0", string(got.Data[:11]))

	require.NoError(t, bp.CloseFile(f))
	n, err = disk.PageCount(name)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, bp.Resident())
}

func TestCacheTransparency(t *testing.T) {
	a := newMemFile("a.dat")
	b := newMemFile("b.dat")
	bp := newPool(t, 2)

	require.NoError(t, bp.WritePage(a, 3, pageWith("a3")))
	// 其他页的操作导致 a3 被驱逐
	require.NoError(t, bp.WritePage(b, 0, pageWith("b0")))
	require.NoError(t, bp.WritePage(b, 1, pageWith("b1")))
	require.NoError(t, bp.WritePage(a, 0, pageWith("a0")))

	got := &page.Page{}
	require.NoError(t, bp.ReadPage(a, 3, got))
	assert.Equal(t, "a3", string(got.Data[:2]))

	require.NoError(t, bp.ReadPage(b, 0, got))
	assert.Equal(t, "b0", string(got.Data[:2]))
	checkInvariant(t, bp)
}

func TestReadReturnsCopy(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 4)
	require.NoError(t, bp.WritePage(f, 0, pageWith("original")))

	got := &page.Page{}
	require.NoError(t, bp.ReadPage(f, 0, got))
	copy(got.Data[:], "changed!")

	again := &page.Page{}
	require.NoError(t, bp.ReadPage(f, 0, again))
	assert.Equal(t, "original", string(again.Data[:8]))
}

func TestHandleIsCacheIdentity(t *testing.T) {
	a := newMemFile("same.dat")
	b := newMemFile("same.dat")
	bp := newPool(t, 4)

	require.NoError(t, bp.WritePage(a, 0, pageWith("from a")))
	require.NoError(t, bp.WritePage(b, 0, pageWith("from b")))
	assert.Equal(t, 2, bp.Resident())

	got := &page.Page{}
	require.NoError(t, bp.ReadPage(a, 0, got))
	assert.Equal(t, "from a", string(got.Data[:6]))
}

func TestCleanFramePreferredOverDirtyLRU(t *testing.T) {
	f := newMemFile("t.dat")
	for i := 0; i < 3; i++ {
		f.pages[page.PageNum(i)] = *pageWith("disk")
	}
	bp := newPool(t, 2)

	// 页 0 脏（最久未用），页 1 干净
	require.NoError(t, bp.WritePage(f, 0, pageWith("dirty")))
	require.NoError(t, bp.ReadPage(f, 1, &page.Page{}))

	// 读页 2 时应复用干净的页 1，而不是写回页 0
	require.NoError(t, bp.ReadPage(f, 2, &page.Page{}))
	assert.Equal(t, 0, f.writes)
	assert.True(t, bp.Contains(f, 0))
	assert.False(t, bp.Contains(f, 1))
	assert.True(t, bp.IsDirty(f, 0))
	checkInvariant(t, bp)
}

func TestLRUOrderFollowsAccess(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, bp.WritePage(f, page.PageNum(i), pageWith("x")))
	}
	// 访问页 0，使页 1 成为最久未用
	require.NoError(t, bp.ReadPage(f, 0, &page.Page{}))
	require.NoError(t, bp.WritePage(f, 3, pageWith("y")))

	assert.True(t, bp.Contains(f, 0))
	assert.False(t, bp.Contains(f, 1))
	{
		stored := f.pages[1]
		assert.Equal(t, "x", string(stored.Data[:1]))
	}
}

func TestWriteBackFailureKeepsState(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 2)

	require.NoError(t, bp.WritePage(f, 0, pageWith("p0")))
	require.NoError(t, bp.WritePage(f, 1, pageWith("p1")))

	f.failWrite = true
	err := bp.WritePage(f, 2, pageWith("p2"))
	assert.True(t, dberr.IsKind(err, dberr.KindIO))

	// 失败后缓存不变：页 0、1 仍驻留且为脏
	assert.True(t, bp.IsDirty(f, 0))
	assert.True(t, bp.IsDirty(f, 1))
	assert.False(t, bp.Contains(f, 2))
	checkInvariant(t, bp)

	f.failWrite = false
	require.NoError(t, bp.WritePage(f, 2, pageWith("p2")))
	{
		stored := f.pages[0]
		assert.Equal(t, "p0", string(stored.Data[:2]))
	}
}

func TestLoadFailureKeepsState(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 1)
	require.NoError(t, bp.WritePage(f, 0, pageWith("p0")))

	// 页 5 不存在：页 0 已被写回，但仍保持映射
	err := bp.ReadPage(f, 5, &page.Page{})
	assert.True(t, dberr.IsKind(err, dberr.KindIO))
	assert.True(t, bp.Contains(f, 0))
	assert.False(t, bp.IsDirty(f, 0))
	assert.Equal(t, 1, f.writes)
	checkInvariant(t, bp)

	got := &page.Page{}
	require.NoError(t, bp.ReadPage(f, 0, got))
	assert.Equal(t, "p0", string(got.Data[:2]))
}

func TestFlushAllOnlyTouchesOwner(t *testing.T) {
	a := newMemFile("a.dat")
	b := newMemFile("b.dat")
	bp := newPool(t, 4)

	require.NoError(t, bp.WritePage(a, 0, pageWith("a0")))
	require.NoError(t, bp.WritePage(a, 1, pageWith("a1")))
	require.NoError(t, bp.WritePage(b, 0, pageWith("b0")))

	require.NoError(t, bp.FlushAll(a))
	assert.Equal(t, 2, a.writes)
	assert.Equal(t, 0, b.writes)
	assert.False(t, bp.IsDirty(a, 0))
	assert.True(t, bp.IsDirty(b, 0))

	// 干净的页不会重复写
	require.NoError(t, bp.FlushAll(a))
	assert.Equal(t, 2, a.writes)
}

func TestCloseFileAbortsOnFlushFailure(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 4)
	require.NoError(t, bp.WritePage(f, 0, pageWith("p0")))

	f.failWrite = true
	assert.Error(t, bp.CloseFile(f))
	assert.False(t, f.closed)
	assert.True(t, bp.IsDirty(f, 0))

	f.failWrite = false
	require.NoError(t, bp.CloseFile(f))
	assert.True(t, f.closed)
	assert.False(t, bp.Contains(f, 0))
	{
		stored := f.pages[0]
		assert.Equal(t, "p0", string(stored.Data[:2]))
	}
	checkInvariant(t, bp)
}

func TestDiscardDropsWithoutWriting(t *testing.T) {
	f := newMemFile("t.dat")
	bp := newPool(t, 2)
	require.NoError(t, bp.WritePage(f, 0, pageWith("p0")))

	bp.Discard(f)
	assert.Equal(t, 0, f.writes)
	assert.Equal(t, 0, bp.Resident())
	// 释放的 Frame 在尾部，下次最先被复用
	assert.Equal(t, 1, bp.replacer.back())
	checkInvariant(t, bp)
}

func TestFlushAllPages(t *testing.T) {
	a := newMemFile("a.dat")
	b := newMemFile("b.dat")
	bp := newPool(t, 4)
	require.NoError(t, bp.WritePage(a, 0, pageWith("a0")))
	require.NoError(t, bp.WritePage(b, 0, pageWith("b0")))

	require.NoError(t, bp.FlushAllPages())
	assert.Equal(t, 1, a.writes)
	assert.Equal(t, 1, b.writes)
}

func TestPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	bp, err := NewBufferPool(1, WithRegisterer(reg))
	require.NoError(t, err)
	f := newMemFile("t.dat")

	require.NoError(t, bp.WritePage(f, 0, pageWith("p0"))) // miss
	require.NoError(t, bp.ReadPage(f, 0, &page.Page{}))     // hit
	require.NoError(t, bp.WritePage(f, 1, pageWith("p1"))) // miss, 驱逐并写回页 0

	assert.Equal(t, 1.0, testutil.ToFloat64(bp.metrics.hits))
	assert.Equal(t, 2.0, testutil.ToFloat64(bp.metrics.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(bp.metrics.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(bp.metrics.writebacks))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
