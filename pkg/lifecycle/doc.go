/*
Package lifecycle owns every task state transition in the coordinator.

All mutations to a single task are serialized by a mutex keyed on task ID.
The lock covers status transitions, response appending, and assignment
creation; it is never held across blob fetches or executor runs. The state
machine is:

	Pending ──▶ Assigned ──▶ InProgress ──▶ Completed ──▶ Done
	    ▲           │             │              │
	    │           └─────────────┴──────┬───────┘
	    │                                ▼
	    └──────── redistribute ◀────── Failed

Transitions are atomic and idempotent. Duplicate assignments and duplicate
responses are logged no-ops, never errors; a missing task ID is a hard error.
*/
package lifecycle
