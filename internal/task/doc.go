// Package task runs documentation jobs. A job lists the units of a
// repository, generates documentation for each unit on a bounded worker pool,
// then generates the repository overview and marks the job terminal.
// CompletionWaiter lets callers block until a job finishes.
package task
