package events

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/warp/attendance-engine/attendance"
)

// Task types on the queue.
const (
	TaskAttendanceCreated = "attendance:created"
	TaskAttendanceUpdated = "attendance:updated"
)

// DefaultQueue is the asynq queue events go to.
const DefaultQueue = "attendance-events"

// enqueuer is the part of *asynq.Client the publisher uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqPublisher enqueues one task per write event.
type AsynqPublisher struct {
	client enqueuer
	queue  string
	now    func() time.Time
}

// NewAsynqPublisher connects to Redis at addr.
func NewAsynqPublisher(addr string) *AsynqPublisher {
	return &AsynqPublisher{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}),
		queue:  DefaultQueue,
		now:    time.Now,
	}
}

// NewTask builds the asynq task for an event.
func NewTask(e Event) (*asynq.Task, error) {
	payload, err := e.Encode()
	if err != nil {
		return nil, err
	}
	typ := TaskAttendanceUpdated
	if e.Type == TypeAttendanceCreated {
		typ = TaskAttendanceCreated
	}
	return asynq.NewTask(typ, payload), nil
}

func (p *AsynqPublisher) PublishOutcome(ctx context.Context, actor string, o attendance.Outcome) error {
	task, err := NewTask(FromOutcome(actor, o, p.now()))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(p.queue), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}
