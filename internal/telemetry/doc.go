// Package telemetry exports Prometheus metrics for a cell.
package telemetry
