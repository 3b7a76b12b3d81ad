/*
Package consensus reconciles conflicting worker-health reports from
independent auditors into a single authoritative view per worker.

No single auditor is trusted. Each incoming report is scored for confidence
based on completeness, recency, and detail; reports inside the consensus
window are then reconciled field by field:

  - numeric fields take the confidence-weighted mean
  - boolean and string fields take a weighted majority at a 60% threshold,
    falling back to the first-seen value (with a conflict flag) below it
  - everything else takes the value from the most confident report, ties
    broken by recency

A consensus record is only published once reports from a minimum number of
distinct auditors are available. Published records land in the registry, the
store, and a short-TTL cache; the cache is strictly an optimization and may
be cleared at any time.
*/
package consensus
