// Package licenseapi implements the client side of the single-seat license
// verification protocol.
//
// The remote API tracks a uses counter per license key. Claiming a seat is
// the only call with a server-side effect (increment); releasing it is the
// compensating decrement. The entitlement engine composes these into a
// two-phase optimistic claim: a read-only preflight, the claim itself, and
// a post-claim check that compensates when a concurrent device won the race.
package licenseapi
