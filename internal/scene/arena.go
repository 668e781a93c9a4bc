package scene

import (
	"fmt"
	"sync"
)

// NodeID устойчивый хэндл узла сцены внутри арены.
type NodeID uint64

// Node узел сцены: результат работы одного генератора либо его часть.
// Payload хранит то, что построил генератор (меш, батч дорог и т.п.);
// арена им не интересуется, она отвечает только за владение.
type Node struct {
	ID      NodeID
	Parent  NodeID
	Label   string
	Payload interface{}
}

// Arena владеет всеми узлами сцены через таблицу хэндлов.
// Владение "чанк владеет своими фичами" выражено контейнерами:
// уничтожение контейнера рекурсивно освобождает все его узлы.
// Алиасинг узлов между контейнерами невозможен — узел создаётся
// только через контейнер и остаётся в его поддереве.
type Arena struct {
	mu       sync.RWMutex
	nodes    map[NodeID]*Node
	children map[NodeID][]NodeID
	nextID   NodeID
}

// NewArena создаёт пустую арену.
func NewArena() *Arena {
	return &Arena{
		nodes:    make(map[NodeID]*Node),
		children: make(map[NodeID][]NodeID),
		nextID:   1,
	}
}

// TotalNodes возвращает общее число живых узлов арены.
func (a *Arena) TotalNodes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}

// NewContainer создаёт контейнер с корневым узлом.
func (a *Arena) NewContainer(label string) *Container {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	a.nodes[id] = &Node{ID: id, Label: label}

	return &Container{arena: a, root: id}
}

// allocNode создаёт узел под уже взятым write-lock.
func (a *Arena) allocNode(parent NodeID, label string, payload interface{}) NodeID {
	id := a.nextID
	a.nextID++
	a.nodes[id] = &Node{ID: id, Parent: parent, Label: label, Payload: payload}
	a.children[parent] = append(a.children[parent], id)
	return id
}

// freeSubtree рекурсивно удаляет узел и его потомков; возвращает число удалённых.
func (a *Arena) freeSubtree(id NodeID) int {
	freed := 0
	for _, child := range a.children[id] {
		freed += a.freeSubtree(child)
	}
	delete(a.children, id)
	if _, ok := a.nodes[id]; ok {
		delete(a.nodes, id)
		freed++
	}
	return freed
}

// Container эксклюзивно владеет поддеревом сцены одного чанка
// (или синтетическим глобальным поддеревом для дальних фич).
type Container struct {
	arena     *Arena
	root      NodeID
	mu        sync.Mutex
	destroyed bool
}

// Root возвращает хэндл корневого узла контейнера.
func (c *Container) Root() NodeID { return c.root }

// AddNode создаёт узел-ребёнок корня. После Destroy возвращает ошибку:
// генераторы, переживающие отмену чанка, не могут записать результат.
func (c *Container) AddNode(label string, payload interface{}) (NodeID, error) {
	return c.AddChild(c.root, label, payload)
}

// AddChild создаёт узел под указанным родителем внутри контейнера.
func (c *Container) AddChild(parent NodeID, label string, payload interface{}) (NodeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return 0, fmt.Errorf("контейнер %q уничтожен", c.label())
	}

	c.arena.mu.Lock()
	defer c.arena.mu.Unlock()

	if _, ok := c.arena.nodes[parent]; !ok {
		return 0, fmt.Errorf("родительский узел %d не существует", parent)
	}

	return c.arena.allocNode(parent, label, payload), nil
}

// NodeCount возвращает число узлов в поддереве контейнера (без корня).
func (c *Container) NodeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return 0
	}

	c.arena.mu.RLock()
	defer c.arena.mu.RUnlock()
	return c.arena.countSubtree(c.root) - 1
}

// countSubtree считает узлы поддерева под read-lock.
func (a *Arena) countSubtree(id NodeID) int {
	count := 1
	for _, child := range a.children[id] {
		count += a.countSubtree(child)
	}
	return count
}

// Destroy освобождает всё поддерево контейнера; возвращает число
// удалённых узлов (включая корень). Повторный вызов — no-op.
func (c *Container) Destroy() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return 0
	}
	c.destroyed = true

	c.arena.mu.Lock()
	defer c.arena.mu.Unlock()
	return c.arena.freeSubtree(c.root)
}

// Destroyed сообщает, был ли контейнер уничтожен.
func (c *Container) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Container) label() string {
	c.arena.mu.RLock()
	defer c.arena.mu.RUnlock()
	if n, ok := c.arena.nodes[c.root]; ok {
		return n.Label
	}
	return fmt.Sprintf("node-%d", c.root)
}
