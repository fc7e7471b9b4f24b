package disk

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"microdb/pkg/dberr"
	"microdb/pkg/storage/page"
)

// Handle 是一个已打开的页文件
// 缓冲池以 Handle 本身作为文件身份：同一个文件的两个 Handle 是不同的缓存键
type Handle interface {
	ID() uuid.UUID
	Name() string
	ReadPage(pageNum page.PageNum, p *page.Page) error
	WritePage(pageNum page.PageNum, p *page.Page) error
	NumPages() (int, error)
	Close() error
}

// File 是 Handle 的操作系统文件实现
type File struct {
	id       uuid.UUID
	dbFile   *os.File
	fileName string
}

var _ Handle = (*File)(nil)

// Create 创建一个空文件，目录不存在时一并创建
func Create(name string) error {
	dir := filepath.Dir(name)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return dberr.IO("create", err, "mkdir %s", dir)
		}
	}

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return dberr.IO("create", err, "create %s", name)
	}
	if err := f.Close(); err != nil {
		return dberr.IO("create", err, "close %s", name)
	}
	return nil
}

// Delete 删除文件；文件不存在不算错误
func Delete(name string) error {
	err := os.Remove(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return dberr.IO("delete", err, "remove %s", name)
	}
	return nil
}

// Open 以读写方式打开已存在的文件
func Open(name string) (*File, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, dberr.IO("open", err, "open %s", name)
	}
	return &File{
		id:       uuid.New(),
		dbFile:   f,
		fileName: name,
	}, nil
}

// PageCount 用文件大小计算页数
func PageCount(name string) (int, error) {
	info, err := os.Stat(name)
	if err != nil {
		return -1, dberr.IO("page count", err, "stat %s", name)
	}
	return int(info.Size() / page.PageSize), nil
}

func (d *File) ID() uuid.UUID {
	return d.id
}

func (d *File) Name() string {
	return d.fileName
}

// NumPages 用已打开的句柄计算页数
func (d *File) NumPages() (int, error) {
	info, err := d.dbFile.Stat()
	if err != nil {
		return -1, dberr.IO("page count", err, "stat %s", d.fileName)
	}
	return int(info.Size() / page.PageSize), nil
}

// ReadPage 从磁盘读取指定页的数据到内存中
func (d *File) ReadPage(pageNum page.PageNum, p *page.Page) error {
	if pageNum < 0 {
		return dberr.IO("read page", nil, "invalid page number %d", pageNum)
	}

	n, err := d.dbFile.ReadAt(p.Data[:], pageNum.Offset())
	if err != nil {
		if errors.Is(err, io.EOF) {
			// 读到文件末尾意味着页不存在（或文件被截断）
			return dberr.IO("read page", err, "page %d of %s: short read (%d bytes)", pageNum, d.fileName, n)
		}
		return dberr.IO("read page", err, "page %d of %s", pageNum, d.fileName)
	}
	return nil
}

// WritePage 将内存中的页数据写入磁盘
func (d *File) WritePage(pageNum page.PageNum, p *page.Page) error {
	if pageNum < 0 {
		return dberr.IO("write page", nil, "invalid page number %d", pageNum)
	}

	if _, err := d.dbFile.WriteAt(p.Data[:], pageNum.Offset()); err != nil {
		return dberr.IO("write page", err, "page %d of %s", pageNum, d.fileName)
	}

	// 不调用 Sync，持久化时机交给操作系统
	return nil
}

// Close 只释放文件描述符；缓存中的脏页应先通过缓冲池刷盘
func (d *File) Close() error {
	if err := d.dbFile.Close(); err != nil {
		return dberr.IO("close", err, "close %s", d.fileName)
	}
	return nil
}
