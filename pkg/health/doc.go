/*
Package health provides probe helpers for external endpoints.

Workers probe their inference backend before advertising themselves as
serving; processes probe the trust substrate at startup. Two checker types
cover both cases:

  - HTTPChecker: GET (or any method) against an endpoint, healthy when the
    status lands in a configured range.
  - TCPChecker: connect-only probe for backends without an HTTP surface.

Status folds consecutive results into a single healthy/unhealthy verdict with
a retry threshold and an optional startup grace period, so one slow response
does not flip a worker out of serving.

	checker := health.NewHTTPChecker("http://backend:9000/health")
	status := health.NewStatus()
	status.Update(checker.Check(ctx), health.DefaultConfig())
	if status.Healthy { ... }
*/
package health
