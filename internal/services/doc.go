// Package services contains the facade between the HTTP transport and the
// entitlement engine: payload validation, concurrent-call coalescing, and
// status snapshots.
package services
