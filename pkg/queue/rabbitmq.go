package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQQueue RabbitMQ 队列实现
// 1. 单一 Consumer，所有 Worker 共享投递 Channel
// 2. 通过 QoS prefetch 控制在途任务数
// 3. 手动 Ack/Nack 保证消息可靠性
type RabbitMQQueue struct {
	url       string
	queueName string
	prefetch  int
	closed    chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	// 发布消息用的连接和通道
	publishConn    *amqp.Connection
	publishChannel *amqp.Channel
	publishMutex   sync.Mutex

	// 消费消息用的连接和通道
	consumeConn    *amqp.Connection
	consumeChannel *amqp.Channel
	deliveries     <-chan amqp.Delivery

	// RabbitMQ Channel 不是并发安全的，Ack/Nack 需要加锁
	ackMutex sync.Mutex
}

// NewRabbitMQQueue 创建 RabbitMQ 队列
func NewRabbitMQQueue(url, queueName string, prefetch int) (*RabbitMQQueue, error) {
	if prefetch <= 0 {
		prefetch = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RabbitMQQueue{
		url:       url,
		queueName: queueName,
		prefetch:  prefetch,
		closed:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := rq.setupPublisher(); err != nil {
		cancel()
		return nil, fmt.Errorf("初始化发布者失败: %w", err)
	}

	if err := rq.setupConsumer(); err != nil {
		cancel()
		rq.closePublisher()
		return nil, fmt.Errorf("初始化消费者失败: %w", err)
	}

	log.Printf("✓ RabbitMQ 队列初始化成功 (队列: %s)", queueName)

	return rq, nil
}

// setupPublisher 建立发布连接并声明持久化队列（幂等）
func (rq *RabbitMQQueue) setupPublisher() error {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建 RabbitMQ Channel 失败: %w", err)
	}

	_, err = ch.QueueDeclare(
		rq.queueName, // name
		true,         // durable
		false,        // autoDelete
		false,        // exclusive
		false,        // noWait
		nil,          // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("声明队列失败: %w", err)
	}

	rq.publishConn = conn
	rq.publishChannel = ch
	return nil
}

// setupConsumer 建立消费连接，prefetch 等于 Worker 数，让每个 Worker 各拿一条
func (rq *RabbitMQQueue) setupConsumer() error {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建 RabbitMQ Channel 失败: %w", err)
	}

	if err := ch.Qos(rq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("设置 QoS 失败: %w", err)
	}

	deliveries, err := ch.Consume(
		rq.queueName,         // queue
		"audioscribe-worker", // consumer tag
		false,                // autoAck: 手动确认
		false,                // exclusive
		false,                // noLocal
		false,                // noWait
		nil,                  // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("启动消费失败: %w", err)
	}

	rq.consumeConn = conn
	rq.consumeChannel = ch
	rq.deliveries = deliveries
	return nil
}

// Enqueue 将任务发布到队列（持久化消息）
func (rq *RabbitMQQueue) Enqueue(task *Task) error {
	rq.publishMutex.Lock()
	defer rq.publishMutex.Unlock()

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(rq.ctx, 5*time.Second)
	defer cancel()

	err = rq.publishChannel.PublishWithContext(
		ctx,
		"",           // exchange: 默认
		rq.queueName, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}

	return nil
}

// Dequeue 从共享投递 Channel 取出任务（阻塞）
func (rq *RabbitMQQueue) Dequeue() (*Task, error) {
	select {
	case <-rq.closed:
		return nil, fmt.Errorf("队列已关闭")
	case <-rq.ctx.Done():
		return nil, fmt.Errorf("队列已关闭")
	case delivery, ok := <-rq.deliveries:
		if !ok {
			return nil, fmt.Errorf("消费通道已关闭")
		}

		var task Task
		if err := json.Unmarshal(delivery.Body, &task); err != nil {
			// 坏消息直接拒绝，不重新入队
			rq.nackInternal(delivery.DeliveryTag, false)
			return nil, fmt.Errorf("反序列化任务失败: %w", err)
		}

		task.deliveryTag = delivery.DeliveryTag
		task.acker = rq.consumeChannel

		return &task, nil
	}
}

// Ack 确认消息
func (rq *RabbitMQQueue) Ack(task *Task) error {
	if task.acker == nil {
		return nil // 不是 RabbitMQ 消息
	}
	return rq.ackInternal(task.deliveryTag)
}

// Nack 拒绝消息
func (rq *RabbitMQQueue) Nack(task *Task, requeue bool) error {
	if task.acker == nil {
		return nil
	}
	return rq.nackInternal(task.deliveryTag, requeue)
}

func (rq *RabbitMQQueue) ackInternal(deliveryTag uint64) error {
	rq.ackMutex.Lock()
	defer rq.ackMutex.Unlock()
	return rq.consumeChannel.Ack(deliveryTag, false)
}

func (rq *RabbitMQQueue) nackInternal(deliveryTag uint64, requeue bool) error {
	rq.ackMutex.Lock()
	defer rq.ackMutex.Unlock()
	return rq.consumeChannel.Nack(deliveryTag, false, requeue)
}

func (rq *RabbitMQQueue) closePublisher() {
	if rq.publishChannel != nil {
		rq.publishChannel.Close()
	}
	if rq.publishConn != nil {
		rq.publishConn.Close()
	}
}

func (rq *RabbitMQQueue) closeConsumer() {
	if rq.consumeChannel != nil {
		rq.consumeChannel.Close()
	}
	if rq.consumeConn != nil {
		rq.consumeConn.Close()
	}
}

// Close 关闭队列，重复调用是安全的
func (rq *RabbitMQQueue) Close() error {
	rq.closeOnce.Do(func() {
		close(rq.closed)
		rq.cancel()
		rq.closePublisher()
		rq.closeConsumer()
		log.Println("✓ RabbitMQ 队列已关闭")
	})
	return nil
}
