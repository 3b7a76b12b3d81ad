/*
Package distributor matches pending tasks to eligible workers.

Every cycle the distributor reads a bounded batch of Pending tasks in
priority order, filters the worker population down to those that are
available and consensus-healthy, ranks candidates by an availability score
(performance weighted by spare capacity, stake as tiebreak), and claims the
task for the selected workers through the lifecycle manager.

The claim is the safety point: claim_for_distribution takes the per-task
lock and only succeeds from Pending, so two distributor passes racing on the
same task produce exactly one winner. The loser's selected workers are never
charged load.
*/
package distributor
