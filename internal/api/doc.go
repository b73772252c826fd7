// Package api serves the HTTP read path of the documentation generator:
// job submission, job and unit status, waiting for completion, document
// reads and deletion. Handlers translate HTTP requests to service calls and
// map service errors to status codes without leaking internal details.
package api
