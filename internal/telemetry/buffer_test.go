package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularBuffer_KeepsInsertionOrder(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")

	assert.Equal(t, []string{"query1", "query2", "query3"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_EvictsOldestWhenFull(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"query1", "query2", "query3", "query4", "query5"} {
		buf.Add(q)
	}

	assert.Equal(t, []string{"query3", "query4", "query5"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_EmptyAndClear(t *testing.T) {
	buf := NewCircularBuffer[int](0)
	assert.Empty(t, buf.Items())

	buf.Add(1)
	buf.Add(2)
	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())

	buf.Add(3)
	assert.Equal(t, []int{3}, buf.Items())
}
