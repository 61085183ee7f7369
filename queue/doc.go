// Package queue hands pipeline runs to worker processes through a
// Redis-backed asynq task queue.
//
// The API process enqueues a process-post task per upload or reprocess
// request with a Dispatcher. Worker processes serve those tasks with a
// Worker, which runs the post through the ingestion pipeline. The post's
// status guards against duplicate deliveries, so a task for a post that is
// already processing or ready is acknowledged without work.
package queue
