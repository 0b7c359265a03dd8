// Package metrics exports firefly queue, protocol and transport counters to
// Prometheus.
//
// A Collector implements eventqueue.Observer, protocol.Metrics and
// transport.Metrics, so one instance can be handed to the event queue and
// the UDP port:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(metrics.WithRegistry(reg))
//	q := eventqueue.New[protocol.Event](protocol.Dispatch, eventqueue.WithObserver(m))
//	cfg := transport.DefaultPortConfig()
//	cfg.Metrics = m
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics
