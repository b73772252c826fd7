// Package domain contains the core entities of the documentation generator:
// job status records, per-unit status, and the document aggregate built from
// generated unit results. It is independent of storage engines and transports.
package domain
