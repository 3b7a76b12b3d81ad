/*
Package api implements the coordinator's HTTP API.

The api package is the gateway between the coordinator and every other process
in the network: submitters create tasks, workers pull assignments and post
responses, and auditors ingest worker-status reports and audit evaluations.
All routes are JSON over HTTP except the submission and response endpoints,
which accept multipart forms so audio and document payloads can ride along.

# Architecture

	┌──────── SUBMITTER ────────┐  ┌──────── WORKER ────────┐  ┌──────── AUDITOR ────────┐
	│ POST /tasks/{kind}        │  │ GET  /workers/{id}/tasks│  │ POST /auditors/worker-  │
	│ GET  /tasks/{task_id}     │  │ POST /workers/response  │  │      status             │
	│ POST /tasks/{id}/cancel   │  │ POST /workers/register  │  │ POST /auditors/         │
	└─────────────┬─────────────┘  └───────────┬────────────┘  │      evaluation         │
	              │                            │                └───────────┬────────────┘
	              │                            │                            │
	┌─────────────▼────────────────────────────▼────────────────────────────▼────────────┐
	│                              HTTP Server (pkg/api)                                  │
	│  chi router · request logging · prometheus middleware · /health · /metrics         │
	└─────────────────────────────────────┬──────────────────────────────────────────────┘
	                                      │
	                          ┌───────────▼───────────┐
	                          │      Coordinator       │
	                          │ lifecycle · registry   │
	                          │ consensus · blobs      │
	          	          └───────────────────────┘

# Error mapping

Validation failures map to 400, unknown resources to 404, duplicate audit
evaluations to 200 with a "duplicate" marker (the operation is an idempotent
no-op), and everything else to 500. Handlers never leak internal error chains
to clients; full errors go to the log.
*/
package api
