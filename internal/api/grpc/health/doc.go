// Package health serves the standard gRPC health checking protocol for the watcher.
//
// The empty service name reflects whether the last cycle managed to fetch the
// region list. Every region is published as "region/<key>" and reflects the
// outcome of its last processing.
package health
