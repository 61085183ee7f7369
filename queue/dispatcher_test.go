package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/poiesic/voicevault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: DefaultQueue, Type: task.Type()}, nil
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) any {
	for _, opt := range opts {
		if opt.Type() == typ {
			return opt.Value()
		}
	}
	return nil
}

func TestNewDispatcher(t *testing.T) {
	_, err := NewDispatcher(nil)
	assert.ErrorIs(t, err, ErrClientRequired)

	_, err = NewDispatcher(&fakeEnqueuer{}, WithQueue(""))
	assert.Error(t, err)

	_, err = NewDispatcher(&fakeEnqueuer{}, WithMaxRetry(-1))
	assert.Error(t, err)

	_, err = NewDispatcher(&fakeEnqueuer{}, WithTaskTimeout(0))
	assert.Error(t, err)

	d, err := NewDispatcher(&fakeEnqueuer{}, WithDispatcherLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultQueue, d.queue)
}

func TestDispatch(t *testing.T) {
	client := &fakeEnqueuer{}
	d, err := NewDispatcher(client, WithQueue("audio"), WithMaxRetry(5), WithTaskTimeout(time.Minute))
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), 42))
	require.Len(t, client.tasks, 1)

	task := client.tasks[0]
	assert.Equal(t, TaskTypeProcessPost, task.Type())
	var payload ProcessPostPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, core.ID(42), payload.PostID)

	opts := client.opts[0]
	assert.Equal(t, "audio", optionValue(opts, asynq.QueueOpt))
	assert.Equal(t, 5, optionValue(opts, asynq.MaxRetryOpt))
	assert.Equal(t, time.Minute, optionValue(opts, asynq.TimeoutOpt))
}

func TestDispatch_Errors(t *testing.T) {
	boom := errors.New("redis unavailable")
	d, err := NewDispatcher(&fakeEnqueuer{err: boom})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), 7)
	assert.ErrorIs(t, err, boom)

	err = d.Dispatch(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
