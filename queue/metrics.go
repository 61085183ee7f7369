package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicevault_queue_tasks_enqueued_total",
		Help: "Process-post tasks placed on the queue.",
	})

	tasksHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicevault_queue_tasks_handled_total",
		Help: "Process-post tasks handled by workers, by outcome.",
	}, []string{"outcome"})
)

const (
	outcomeDone    = "done"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
	outcomeRetry   = "retry"
)
