package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/augflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeAugmentDataset = "augment:dataset"

type AugmentDatasetPayload struct {
	JobID       string                  `json:"job_id"`
	UserID      string                  `json:"user_id,omitempty"`
	ShardKey    string                  `json:"shard_key"`
	WebhookURL  string                  `json:"webhook_url,omitempty"`
	Spec        domain.AugmentationSpec `json:"spec"`
	RequestedAt time.Time               `json:"requested_at"`
}

func NewAugmentDatasetTask(payload AugmentDatasetPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal augment payload: %w", err)
	}
	return asynq.NewTask(TypeAugmentDataset, body), nil
}

func ParseAugmentDatasetPayload(task *asynq.Task) (AugmentDatasetPayload, error) {
	var payload AugmentDatasetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AugmentDatasetPayload{}, fmt.Errorf("unmarshal augment payload: %w", err)
	}
	return payload, nil
}
