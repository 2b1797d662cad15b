package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	var q Queue[int]
	assert.True(t, q.Empty())

	q.Push(1)
	assert.False(t, q.Empty())
	assert.Equal(t, 1, q.Pop())
	assert.True(t, q.Empty())

	q.Push(2)
	q.Push(3)
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, 2, q.Pop())
	assert.Equal(t, 3, q.Pop())
	assert.True(t, q.Empty())

	assert.PanicsWithValue(t, ErrEmpty, func() { q.Pop() })
}

func TestQueue_Compaction(t *testing.T) {
	var q Queue[int]
	for i := range 100 {
		q.Push(i)
	}
	for i := range 80 {
		assert.Equal(t, i, q.Pop())
	}
	for i := 100; i < 150; i++ {
		q.Push(i)
	}
	assert.Equal(t, 70, q.Len())
	for i := 80; i < 150; i++ {
		assert.Equal(t, i, q.Pop())
	}
	assert.True(t, q.Empty())
}
