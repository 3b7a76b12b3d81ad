/*
Package worker implements the worker control loop.

A worker is an eventually-consistent puller: every poll interval it fetches
its unanswered assignments from the coordinator, filters out task IDs it has
already processed or is currently processing, runs each survivor through its
local Executor, and posts the response back. The two dedup sets are bounded
LRUs so a long-lived worker cannot grow without bound; the coordinator's
response idempotency is the backstop when an entry ages out.

# Control loop

	┌─────────────────────────── every POLL_INTERVAL ───────────────────────────┐
	│                                                                            │
	│  probe backend ──► not serving? skip pull, report is_serving=false        │
	│        │                                                                   │
	│  GET /workers/{me}/tasks?status=assigned                                  │
	│        │                                                                   │
	│  filter: drop IDs in processed_set or in_flight_set                       │
	│        │                                                                   │
	│  per task: in_flight_set.add ─► fetch blob ─► Executor.Run ─►             │
	│            POST /workers/response ─► processed_set.add                    │
	│            (in_flight_set.remove always, even on failure)                 │
	│                                                                            │
	└────────────────────────────────────────────────────────────────────────────┘

Broken or empty inputs produce a structured broken-file response rather than
a loud failure, so the task lifecycle keeps moving. Executor errors produce
an error response for the same reason.
*/
package worker
