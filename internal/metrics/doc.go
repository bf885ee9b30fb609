// Package metrics records Prometheus metrics for a single audit run and
// writes them as a node_exporter textfile next to the run's other artifacts.
//
// Every run gets its own registry, so metrics describe one run only and
// tests can create recorders in parallel.
package metrics
