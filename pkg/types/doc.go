/*
Package types defines the core data structures used throughout Chorus.

This package contains all fundamental types that represent the Chorus domain
model: tasks and their lifecycle, worker status, auditor reports, consensus
records, and audit evaluations. These types are used by all other packages for
state management, API communication, and scheduling logic.

# Task lifecycle

A task moves through the following states:

	Pending ──▶ Assigned ──▶ InProgress ──▶ Completed ──▶ Done
	    ▲           │             │              │
	    │           └─────────────┴──────┬───────┘
	    │                                ▼
	    └──────── redistribute ◀────── Failed

Completed means the task has received at least its minimum number of worker
responses; Done means at least one auditor has recorded an evaluation for it.
Failed tasks may be redistributed (back to Pending) up to a bounded number of
times. Cancelled is terminal.

# Worker status

Worker records track current load against capacity, a performance score in
[0,1], and per-task-type specialization statistics. A worker is available when
it is serving and has spare capacity. The authoritative view of a worker is
the consensus record reconciled from independent auditor reports, not any
single report.
*/
package types
