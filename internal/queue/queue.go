// Package queue provides a FIFO queue.
package queue

import "errors"

// Queue is a FIFO queue. The zero value is an empty queue.
type Queue[E any] struct {
	elements []E
	head     int
}

func (q *Queue[E]) Push(e E) {
	q.elements = append(q.elements, e)
}

func (q *Queue[E]) Empty() bool {
	return q.head == len(q.elements)
}

func (q *Queue[E]) Len() int {
	return len(q.elements) - q.head
}

var ErrEmpty = errors.New("queue is empty")

// Pop removes and returns the oldest element. It panics with ErrEmpty if the
// queue is empty.
func (q *Queue[E]) Pop() E {
	if q.Empty() {
		panic(ErrEmpty)
	}

	var zero E
	e := q.elements[q.head]
	q.elements[q.head] = zero
	q.head++
	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 32 && q.head*2 >= len(q.elements) {
		n := copy(q.elements, q.elements[q.head:])
		clear(q.elements[n:])
		q.elements = q.elements[:n]
		q.head = 0
	}
	return e
}
