package buffer

import "fisio-telemetry/internal/models"

// DefaultCapacity 实时反馈只保留最近 50 个采样
const DefaultCapacity = 50

// Window 固定容量滑动窗口，按插入序保存最近 K 个采样。
// FIFO 淘汰，环形存储，内存上界 O(K)。
// 窗口归属会话的工作协程独占，跨协程读取必须走 Snapshot 的只读拷贝。
type Window struct {
	items []models.Sample
	head  int
	size  int
}

// New 创建容量为 capacity 的窗口，capacity <= 0 时使用默认容量
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{items: make([]models.Sample, capacity)}
}

// Push 追加采样；窗口已满时淘汰最旧的一个
func (w *Window) Push(s models.Sample) {
	tail := (w.head + w.size) % len(w.items)
	w.items[tail] = s
	if w.size < len(w.items) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.items)
	}
}

// Snapshot 返回从旧到新排列的只读拷贝，不改变窗口内容
func (w *Window) Snapshot() []models.Sample {
	out := make([]models.Sample, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.items[(w.head+i)%len(w.items)]
	}
	return out
}

// Len 当前窗口内采样数
func (w *Window) Len() int {
	return w.size
}

// Cap 窗口容量
func (w *Window) Cap() int {
	return len(w.items)
}
