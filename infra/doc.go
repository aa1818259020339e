// Package infra contains technical adapters such as the MQTT brand adapter,
// credential encryption, the SQLite schedule store and metrics exporters.
// These packages should depend only on the interfaces defined in the core
// packages.
package infra
