// Package dispatch implements the master side of the queue-mediated RPC
// protocol: matching inbound requests against the configured mapping table,
// submitting jobs to the target queue, awaiting completion under a bounded
// timeout, and assembling the response.
//
// Every request resolves at a single top-level boundary: any failure in the
// match/submit/await/hook sequence becomes an error response carrying the
// failure's status code (default 500); elapsed time is attached on both
// success and failure paths.
//
// The package also hosts the health aggregator, which fans one synthetic
// HEALTH probe out to every distinct queue the mapping table references and
// aggregates per-queue outcomes into one status.
package dispatch
