package stream

import (
	"container/heap"
	"sync"

	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/vec"
)

// WorkItem атомарная непрерываемая единица отложенной генерации контента.
type WorkItem struct {
	ID            string      // Стабильный ID внутри чанка: "<kind>_<feature-id>"
	ChunkKey      vec.Vec2    // Чанк-владелец
	Kind          gen.Kind    // Какой генератор потребляет элемент
	Payload       gen.Payload // Фичи + контейнер-приёмник
	Priority      float64     // Меньше = раньше (расстояние + поправка типа)
	EstimatedCost float64     // Средняя стоимость типа, мс (fallback учёта бюджета)

	seq       uint64 // Монотонный счётчик постановки: FIFO при равном приоритете
	heapIndex int
}

// WorkQueue приоритетная очередь элементов работы с вторичным индексом
// по чанку: отмена чанка выполняется за O(элементов этого чанка).
// Очередь владеет элементом от постановки до извлечения либо отмены.
type WorkQueue struct {
	mu      sync.Mutex
	heap    itemHeap
	byChunk map[vec.Vec2]map[string]*WorkItem
	nextSeq uint64
}

// NewWorkQueue создаёт пустую очередь.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		byChunk: make(map[vec.Vec2]map[string]*WorkItem),
	}
}

// Enqueue ставит элемент в очередь. Элемент с тем же ID в том же чанке
// замещается (идемпотентная повторная активация). Возвращает true,
// если произошло замещение.
func (q *WorkQueue) Enqueue(item *WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	replaced := false
	chunkItems, ok := q.byChunk[item.ChunkKey]
	if !ok {
		chunkItems = make(map[string]*WorkItem)
		q.byChunk[item.ChunkKey] = chunkItems
	} else if old, exists := chunkItems[item.ID]; exists {
		heap.Remove(&q.heap, old.heapIndex)
		replaced = true
	}

	item.seq = q.nextSeq
	q.nextSeq++

	chunkItems[item.ID] = item
	heap.Push(&q.heap, item)
	return replaced
}

// PopNext извлекает элемент с минимальным (Priority, seq).
// Извлечённый элемент очереди больше не принадлежит и не может быть
// извлечён повторно.
func (q *WorkQueue) PopNext() (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil, false
	}

	item := heap.Pop(&q.heap).(*WorkItem)
	q.removeFromIndex(item)
	return item, true
}

// CancelChunk удаляет все элементы чанка; возвращает число удалённых.
// Вызов для чанка без элементов — no-op.
func (q *WorkQueue) CancelChunk(key vec.Vec2) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	chunkItems, ok := q.byChunk[key]
	if !ok {
		return 0
	}

	for _, item := range chunkItems {
		heap.Remove(&q.heap, item.heapIndex)
	}
	delete(q.byChunk, key)
	return len(chunkItems)
}

// Len возвращает число элементов в очереди.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// PerKindCounts возвращает число элементов очереди по типам.
func (q *WorkQueue) PerKindCounts() map[gen.Kind]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[gen.Kind]int)
	for _, item := range q.heap {
		counts[item.Kind]++
	}
	return counts
}

// removeFromIndex вычищает элемент из вторичного индекса (под мьютексом).
func (q *WorkQueue) removeFromIndex(item *WorkItem) {
	chunkItems, ok := q.byChunk[item.ChunkKey]
	if !ok {
		return
	}
	delete(chunkItems, item.ID)
	if len(chunkItems) == 0 {
		delete(q.byChunk, item.ChunkKey)
	}
}

//================ container/heap implementation =================//

type itemHeap []*WorkItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(*WorkItem)
	item.heapIndex = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*h = old[:n-1]
	return item
}
