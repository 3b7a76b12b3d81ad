/*
Package auditor implements the audit and scoring pipeline.

An auditor wakes every AUDIT_INTERVAL blocks of the trust substrate and runs
one audit cycle over the coordinator's completed tasks:

	collect ─► dedup ─► extract input ─► re-execute ─► score ─► accumulate ─► emit ─► mark audited

The auditor re-runs each task through its own Executor and scores every
worker response against that reference output. Scores accumulate per worker
across the cycle, capped at 500 per task, and the cycle ends with a sparse
normalized weight vector pushed through IdentityAndEmit.SetWeights. Tasks
whose reference execution fails are skipped and retried next cycle; tasks
with implausibly small inputs are marked audited with zero scores so they
are never re-examined.

Deduplication is two-layered: the coordinator's per-auditor audited-task set
is authoritative, and a bounded in-memory LRU keeps the auditor from
re-auditing even when the coordinator is briefly unreachable.

Independently of audit cycles, the auditor forwards worker-status
observations from a pluggable StatusSource to the coordinator's consensus
engine, stamped with the current block as the epoch.
*/
package auditor
