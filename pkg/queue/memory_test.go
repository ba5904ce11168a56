package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	mq := NewMemoryQueue(2)

	require.NoError(t, mq.Enqueue(&Task{ItemID: "a"}))
	require.NoError(t, mq.Enqueue(&Task{ItemID: "b"}))

	task, err := mq.Dequeue()
	require.NoError(t, err)
	require.Equal(t, "a", task.ItemID)

	task, err = mq.Dequeue()
	require.NoError(t, err)
	require.Equal(t, "b", task.ItemID)
}

func TestMemoryQueue_Full(t *testing.T) {
	mq := NewMemoryQueue(1)

	require.NoError(t, mq.Enqueue(&Task{ItemID: "a"}))
	require.Error(t, mq.Enqueue(&Task{ItemID: "b"}))
}

func TestMemoryQueue_NackRequeue(t *testing.T) {
	mq := NewMemoryQueue(2)
	task := &Task{ItemID: "a"}

	require.NoError(t, mq.Enqueue(task))
	got, err := mq.Dequeue()
	require.NoError(t, err)

	require.NoError(t, mq.Ack(got))

	// requeue 后还能再取到
	require.NoError(t, mq.Nack(got, true))
	again, err := mq.Dequeue()
	require.NoError(t, err)
	require.Equal(t, "a", again.ItemID)
}

func TestMemoryQueue_Closed(t *testing.T) {
	mq := NewMemoryQueue(1)
	require.NoError(t, mq.Close())

	_, err := mq.Dequeue()
	require.Error(t, err)
}
