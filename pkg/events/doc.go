/*
Package events provides an in-memory event broker for Chorus pub/sub
messaging.

The broker broadcasts coordinator state changes (task lifecycle transitions,
worker registrations, consensus updates) to interested subscribers with
non-blocking delivery over buffered channels. Slow subscribers drop events
rather than stalling publishers; the broker is an observability aid, never a
correctness dependency.
*/
package events
