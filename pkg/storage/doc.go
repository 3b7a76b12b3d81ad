/*
Package storage provides persistent state management for the Chorus
coordinator.

The package defines the Store interface used by the lifecycle manager,
registry, consensus engine, and audit pipeline, and implements it on SQLite
(pure-Go driver, WAL mode). Five tables hold the durable state: tasks (with
JSON columns for assignments and worker responses), worker_status,
auditor_reports, worker_consensus, and audit_evaluations. Every row carries
created_at/updated_at; task mutations commit in a single transaction.

Schema changes are embedded SQL migrations applied on open via golang-migrate.
*/
package storage
