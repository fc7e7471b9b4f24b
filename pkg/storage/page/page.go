package page

// PageSize 定义一页的大小为 4KB (4096 bytes)
// 页是文件 I/O 和缓冲区驻留的最小单位
const PageSize = 4096

// PageNum 是页在文件内从 0 开始的编号
// -1 表示缓冲区尚未分配给任何页
type PageNum int32

const (
	InvalidPageNum PageNum = -1
)

// Page 是一页的原始字节
type Page struct {
	Data [PageSize]byte
}

// Offset 返回该页在文件中的起始字节位置
func (n PageNum) Offset() int64 {
	return int64(n) * PageSize
}

// Clear 将页面数据清空（追加新页时调用）
func (p *Page) Clear() {
	p.Data = [PageSize]byte{}
}

// CopyFrom 用 src 的内容覆盖当前页
func (p *Page) CopyFrom(src *Page) {
	p.Data = src.Data
}
