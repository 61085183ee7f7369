package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault/core"
)

// TaskTypeProcessPost runs one post through the ingestion pipeline.
const TaskTypeProcessPost = "post:process"

// DefaultQueue is the asynq queue pipeline tasks are placed on.
const DefaultQueue = "media"

// ProcessPostPayload is the body of a TaskTypeProcessPost task.
type ProcessPostPayload struct {
	PostID core.ID `json:"post_id"`
}

// NewProcessPostTask builds the task for postID.
func NewProcessPostTask(postID core.ID) (*asynq.Task, error) {
	if postID == 0 {
		return nil, fmt.Errorf("%w: post id is required", ErrInvalidPayload)
	}
	payload, err := json.Marshal(ProcessPostPayload{PostID: postID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcessPost, payload), nil
}

func decodeProcessPost(task *asynq.Task) (ProcessPostPayload, error) {
	var payload ProcessPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if payload.PostID == 0 {
		return payload, fmt.Errorf("%w: post id is required", ErrInvalidPayload)
	}
	return payload, nil
}
