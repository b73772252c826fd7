// Package service contains the caller-facing use cases of the documentation
// generator: submitting a job, reading job and unit status, waiting for a
// job to finish, and reading the generated document.
//
// The service layer depends on store interfaces and on the task package's
// runner and waiter through small interfaces of its own, so delivery
// mechanisms (the HTTP API, the CLI) never touch infrastructure directly.
package service
