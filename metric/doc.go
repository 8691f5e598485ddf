// Package metric provides a shared Prometheus registry and HTTP scrape
// endpoint for robotlink components. Components register their collectors
// under a component/name key so duplicate registrations are caught at
// startup rather than at scrape time.
package metric
