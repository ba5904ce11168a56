package queue

// Task 一次转录任务投递
// 只携带条目 ID：可变状态都在存储里，过期消息在认领时被识别
type Task struct {
	ItemID string `json:"item_id"`

	// RabbitMQ 投递信息（不序列化）
	deliveryTag uint64
	acker       acker
}

type acker interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
}

// Queue 任务队列接口
// 使用接口抽象，方便在内存队列和 RabbitMQ 之间切换
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(task *Task) error

	// Dequeue 从队列取出任务（阻塞）
	Dequeue() (*Task, error)

	// Ack 确认消息（任务已到达终态）
	Ack(task *Task) error

	// Nack 拒绝消息
	// requeue: 是否重新入队
	Nack(task *Task, requeue bool) error

	// Close 关闭队列
	Close() error
}
