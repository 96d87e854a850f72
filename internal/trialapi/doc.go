// Package trialapi implements the client side of the server-authoritative
// trial protocol. The service keys trials on a device fingerprint and an
// account hash; the raw email address is never transmitted. Date fields
// tolerate the three formats the service has emitted over time, see
// FlexTime.
package trialapi
