/*
Package observability turns engine lifecycle events into logs and Prometheus metrics.

Both LoggingHooks and Metrics.Hooks return domain.LifecycleHooks, so they can be
combined with LifecycleHooks.Merge and passed to the engine as one value.
*/
package observability
