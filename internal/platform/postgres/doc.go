// Package postgres implements the store interfaces on PostgreSQL. Job status
// and documents live in two tables keyed by repository; per-unit maps are
// JSONB objects keyed by escaped unit keys. Status changes are announced with
// NOTIFY and picked up by Listener.
package postgres
