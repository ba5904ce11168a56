package queue

import (
	"fmt"
	"sync"
)

// MemoryQueue 基于 Channel 的内存队列实现
type MemoryQueue struct {
	queue     chan *Task
	closeOnce sync.Once
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		queue: make(chan *Task, bufferSize),
	}
}

// Enqueue 将任务加入队列，队列满时立即返回错误
func (mq *MemoryQueue) Enqueue(task *Task) error {
	select {
	case mq.queue <- task:
		return nil
	default:
		return fmt.Errorf("队列已满")
	}
}

// Dequeue 从队列取出任务（阻塞等待）
func (mq *MemoryQueue) Dequeue() (*Task, error) {
	task, ok := <-mq.queue
	if !ok {
		return nil, fmt.Errorf("队列已关闭")
	}
	return task, nil
}

// Ack 内存队列取出即消费，无需确认
func (mq *MemoryQueue) Ack(task *Task) error {
	return nil
}

// Nack 拒绝任务，requeue 时重新入队
func (mq *MemoryQueue) Nack(task *Task, requeue bool) error {
	if !requeue {
		return nil
	}
	return mq.Enqueue(task)
}

// Close 关闭队列
func (mq *MemoryQueue) Close() error {
	mq.closeOnce.Do(func() {
		close(mq.queue)
	})
	return nil
}
