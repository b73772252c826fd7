// Package memory provides an in-process implementation of the job status
// and document stores. It is used by tests and by single-process
// deployments configured with the "memory" database driver.
package memory
