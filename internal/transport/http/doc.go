// Package http exposes the entitlement engine to the host UI over a
// loopback HTTP API: status snapshots, activation, trial start,
// deactivation, revalidation, health, metrics, and the access-change
// websocket.
package http
