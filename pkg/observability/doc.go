/*
Package observability exposes engine activity as Prometheus metrics.

Metrics implements domain.LifecycleHooks, so it plugs into the router and the conversation
machine like any other hook set:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	engine := formweave.New(loader, formweave.WithLifecycleHooks(metrics.Hooks()))
*/
package observability
