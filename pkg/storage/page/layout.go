package page

const (
	// SlotFree / SlotUsed 是槽位首字节的占用标志
	SlotFree byte = 0
	SlotUsed byte = 1

	SizeOfFlag = 1
)

// SlotPage 按固定槽位大小解释一页
// 槽位 i 占据 [i*slotSize, (i+1)*slotSize)，最后不足一个槽位的字节不使用
type SlotPage struct {
	Data     []byte
	slotSize int
}

func NewSlotPage(p *Page, slotSize int) *SlotPage {
	return &SlotPage{Data: p.Data[:], slotSize: slotSize}
}

// SlotsPerPage 每页能放下的完整槽位数
func SlotsPerPage(slotSize int) int {
	if slotSize <= 0 {
		return 0
	}
	return PageSize / slotSize
}

func (p *SlotPage) SlotSize() int {
	return p.slotSize
}

func (p *SlotPage) NumSlots() int {
	return SlotsPerPage(p.slotSize)
}

func (p *SlotPage) slotOffset(i int) int {
	return i * p.slotSize
}

// Slot 返回槽位 i 的字节切片（与页共享底层数组）
func (p *SlotPage) Slot(i int) []byte {
	off := p.slotOffset(i)
	return p.Data[off : off+p.slotSize]
}

func (p *SlotPage) IsUsed(i int) bool {
	return p.Data[p.slotOffset(i)] != SlotFree
}

// Free 只清除占用标志，槽位中的旧数据保持不变
func (p *SlotPage) Free(i int) {
	p.Data[p.slotOffset(i)] = SlotFree
}

// Put 将编码好的槽位写入位置 i
func (p *SlotPage) Put(i int, slot []byte) {
	copy(p.Slot(i), slot)
}

// FirstFree 返回第一个空闲槽位，没有则返回 -1
func (p *SlotPage) FirstFree() int {
	n := p.NumSlots()
	for i := 0; i < n; i++ {
		if !p.IsUsed(i) {
			return i
		}
	}
	return -1
}
