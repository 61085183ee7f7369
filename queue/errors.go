package queue

import "errors"

var (
	// ErrClientRequired is returned when a Dispatcher has no queue client.
	ErrClientRequired = errors.New("queue client required")

	// ErrProcessorRequired is returned when a Worker has nothing to run tasks with.
	ErrProcessorRequired = errors.New("post processor required")

	// ErrInvalidPayload is returned for tasks whose payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid task payload")
)
