/*
Package metrics provides Prometheus instrumentation and health endpoints for
the Chorus coordinator.

Collectors are package-level and registered at init. Gauges for task, worker,
and consensus populations are refreshed by a periodic Collector; counters and
histograms are updated inline by the API middleware, the distributor, and the
janitor. The health checker aggregates per-component status for /health and
/ready.
*/
package metrics
