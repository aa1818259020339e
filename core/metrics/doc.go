// Package metrics defines the sinks that record schedule executions for
// observability. Implementations live in infra/metrics (Prometheus and
// InfluxDB) and are instantiated by name through the factory registry.
// When several sinks are configured NewMetricsSink returns a MultiSink.
package metrics
