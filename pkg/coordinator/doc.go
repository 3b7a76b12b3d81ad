/*
Package coordinator wires the coordinator process together: the persistent
store, the task lifecycle manager, the worker registry, the consensus engine,
the blob gateway, and the event broker.

The Coordinator is the single facade the HTTP layer talks to. Ingress
validation lives here: a malformed submission is rejected before it ever
reaches the state machine, so no task row is created for invalid input.
*/
package coordinator
