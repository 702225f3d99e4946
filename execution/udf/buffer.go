package udf

import (
	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/octosql"
)

// pendingEntry is a record submitted to the runner whose result hasn't arrived yet.
type pendingEntry struct {
	forwarded  []octosql.Value
	changeKind execution.ChangeKind
}

// pendingBuffer is a FIFO queue of pending entries, backed by a growable ring.
// It is not safe for concurrent use.
type pendingBuffer struct {
	entries []pendingEntry
	head    int
	size    int
}

func (b *pendingBuffer) Push(entry pendingEntry) {
	if b.size == len(b.entries) {
		b.grow()
	}
	b.entries[(b.head+b.size)%len(b.entries)] = entry
	b.size++
}

func (b *pendingBuffer) PopOldest() (pendingEntry, error) {
	if b.size == 0 {
		return pendingEntry{}, ErrBufferUnderflow
	}
	entry := b.entries[b.head]
	b.entries[b.head] = pendingEntry{}
	b.head = (b.head + 1) % len(b.entries)
	b.size--
	return entry, nil
}

func (b *pendingBuffer) Len() int {
	return b.size
}

// Reset drops all entries.
func (b *pendingBuffer) Reset() {
	b.entries = nil
	b.head = 0
	b.size = 0
}

func (b *pendingBuffer) grow() {
	newCap := len(b.entries) * 2
	if newCap == 0 {
		newCap = 16
	}
	entries := make([]pendingEntry, newCap)
	for i := 0; i < b.size; i++ {
		entries[i] = b.entries[(b.head+i)%len(b.entries)]
	}
	b.entries = entries
	b.head = 0
}
