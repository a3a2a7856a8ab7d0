package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueueAugmentDataset(ctx context.Context, payload AugmentDatasetPayload) (*asynq.TaskInfo, error) {
	task, err := NewAugmentDatasetTask(payload)
	if err != nil {
		return nil, err
	}
	// Shard runs are heavier than a single-image transform; give every
	// attempt a generous deadline.
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
