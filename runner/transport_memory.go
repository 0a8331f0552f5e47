package runner

import (
	"fmt"
	"sync"

	"github.com/zeu5/rl-frame/types"
)

// MemoryBoard is an in-process parameter board for local runs and tests.
type MemoryBoard struct {
	lock   *sync.Mutex
	latest types.Blob
	ok     bool
}

var _ ParameterBoard = &MemoryBoard{}

func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{lock: new(sync.Mutex)}
}

func (b *MemoryBoard) Publish(blob types.Blob) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	cp := make(types.Blob, len(blob))
	copy(cp, blob)
	b.latest = cp
	b.ok = true
	return nil
}

func (b *MemoryBoard) Latest() (types.Blob, bool, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.ok {
		return nil, false, nil
	}
	cp := make(types.Blob, len(b.latest))
	copy(cp, b.latest)
	return cp, true, nil
}

// MemoryQueue is an in-process experience queue with a hard bound. Pushing
// past the bound fails rather than silently dropping samples.
type MemoryQueue struct {
	lock     *sync.Mutex
	payloads [][]byte
	capacity int
}

var _ ExperienceQueue = &MemoryQueue{}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1 << 16
	}
	return &MemoryQueue{lock: new(sync.Mutex), capacity: capacity}
}

func (q *MemoryQueue) Push(payload []byte) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.payloads) >= q.capacity {
		return fmt.Errorf("experience queue full (%d payloads)", q.capacity)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	q.payloads = append(q.payloads, cp)
	return nil
}

func (q *MemoryQueue) Pop(max int) ([][]byte, error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if max <= 0 || max > len(q.payloads) {
		max = len(q.payloads)
	}
	out := q.payloads[:max]
	q.payloads = q.payloads[max:]
	return out, nil
}

func (q *MemoryQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.payloads)
}
