// Package server implements the optional HTTP status API of the recorder:
// session state, the metadata log, effective configuration and Prometheus
// metrics.
package server
