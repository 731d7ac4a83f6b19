// Package infra groups the adapters to the outside world: Home Assistant,
// MQTT, evcc, the optimizer HTTP client and the metrics exporters. Adapters
// implement interfaces owned by the core packages.
package infra
