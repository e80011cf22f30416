package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadyQueueFIFO(t *testing.T) {
	q := newReadyQueue()
	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.pop())

	a := &Fiber{id: 1}
	b := &Fiber{id: 2}
	c := &Fiber{id: 3}
	q.push(a)
	q.push(b)
	q.push(c)
	assert.Equal(t, 3, q.len())

	assert.Same(t, a, q.pop())
	assert.Same(t, b, q.pop())
	assert.Same(t, c, q.pop())
	assert.Nil(t, q.pop())
}
