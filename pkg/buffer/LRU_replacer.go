package buffer

// lruList 是按 FrameID 索引的双向链表
// 头部是最近使用，尾部是最久未用；每个 Frame 始终恰好在链表中出现一次
type lruList struct {
	prev []int
	next []int
	head int
	tail int
}

const nilFrame = -1

// newLRUList 按 0..n-1 的顺序串起所有 Frame，0 在头部
func newLRUList(n int) *lruList {
	l := &lruList{
		prev: make([]int, n),
		next: make([]int, n),
		head: nilFrame,
		tail: nilFrame,
	}
	for i := n - 1; i >= 0; i-- {
		l.prev[i] = nilFrame
		l.next[i] = nilFrame
		l.pushFront(i)
	}
	return l
}

func (l *lruList) pushFront(frameID int) {
	l.prev[frameID] = nilFrame
	l.next[frameID] = l.head
	if l.head != nilFrame {
		l.prev[l.head] = frameID
	}
	l.head = frameID
	if l.tail == nilFrame {
		l.tail = frameID
	}
}

func (l *lruList) pushBack(frameID int) {
	l.next[frameID] = nilFrame
	l.prev[frameID] = l.tail
	if l.tail != nilFrame {
		l.next[l.tail] = frameID
	}
	l.tail = frameID
	if l.head == nilFrame {
		l.head = frameID
	}
}

func (l *lruList) remove(frameID int) {
	p, n := l.prev[frameID], l.next[frameID]
	if p != nilFrame {
		l.next[p] = n
	} else {
		l.head = n
	}
	if n != nilFrame {
		l.prev[n] = p
	} else {
		l.tail = p
	}
	l.prev[frameID] = nilFrame
	l.next[frameID] = nilFrame
}

// touch 标记为最近使用
func (l *lruList) touch(frameID int) {
	if l.head == frameID {
		return
	}
	l.remove(frameID)
	l.pushFront(frameID)
}

// demote 移到尾部，下次最先被复用
func (l *lruList) demote(frameID int) {
	if l.tail == frameID {
		return
	}
	l.remove(frameID)
	l.pushBack(frameID)
}

// back 返回最久未使用的 FrameID
func (l *lruList) back() int {
	return l.tail
}

// older 返回比 frameID 更久未使用的下一个 Frame
func (l *lruList) older(frameID int) int {
	return l.prev[frameID]
}

// order 从头到尾列出 FrameID，测试用
func (l *lruList) order() []int {
	out := make([]int, 0, len(l.next))
	for f := l.head; f != nilFrame; f = l.next[f] {
		out = append(out, f)
	}
	return out
}
