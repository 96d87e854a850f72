// Package middleware provides the chi middleware chain for the local
// entitlement daemon: request IDs, structured request logging, panic
// recovery, and rate limiting on the sensitive routes.
package middleware
