// Package store defines the persistence contracts of the job orchestrator:
// the job status store and the document store. Implementations live under
// internal/platform and must be safe for concurrent use by many workers.
package store
