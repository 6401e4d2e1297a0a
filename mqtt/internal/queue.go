// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import "sync"

// Queue is a concurrency-safe, bounded, generic circular queue.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	maxSize int // Enqueue refuses items beyond this size
	size    int
	enter   int // Points to the next position for entering
	leave   int // Points to the next item that is leaving
}

// NewQueue creates a new Queue holding at most maxSize items.
func NewQueue[T any](maxSize int) *Queue[T] {
	return &Queue[T]{maxSize: maxSize}
}

// Size returns the number of items in the queue.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Enqueue adds an item to the end of the queue. It reports false, leaving the
// queue unchanged, if the queue is full.
func (q *Queue[T]) Enqueue(value T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == q.maxSize {
		return false
	}

	if len(q.items) == q.size {
		q.resize()
	}

	q.items[q.enter] = value
	q.enter = q.move(q.enter)
	q.size++
	return true
}

// Dequeue removes and returns the item at the front of the queue.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeue()
}

// Drain removes up to n items from the front of the queue, in order. A
// negative n drains everything.
func (q *Queue[T]) Drain(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n < 0 || n > q.size {
		n = q.size
	}
	out := make([]T, 0, n)
	for range n {
		item, _ := q.dequeue()
		out = append(out, item)
	}
	return out
}

func (q *Queue[T]) dequeue() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.items[q.leave]
	q.items[q.leave] = zero
	q.leave = q.move(q.leave)
	q.size--
	return item, true
}

// resize grows the backing slice, keeping it no larger than maxSize.
func (q *Queue[T]) resize() {
	oldSize := len(q.items)
	newSize := min(oldSize*2+1, q.maxSize)

	// [4,5,1,2,3] => [4,5,(1),(2),(3),_,_,_,1,2,3]
	// q.enter = 2, q.leave = 2
	// oldSize = 5, newSize = 11
	// oldLeave = 2, newLeave = 11 - (5 - 2) = 8
	oldLeave := q.leave
	newLeave := newSize - (oldSize - oldLeave)
	if oldSize == 0 {
		newLeave = 0
	}

	q.items = append(q.items, make([]T, newSize-oldSize)...)
	copy(q.items[newLeave:], q.items[oldLeave:oldSize])
	q.leave = newLeave
}

// move increments the index circularly.
func (q *Queue[T]) move(index int) int {
	return (index + 1) % len(q.items)
}
