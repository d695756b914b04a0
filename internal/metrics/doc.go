// Package metrics exposes Prometheus collectors for capture, recording and
// HTTP API activity.
package metrics
