// Package entitlement decides whether the application may operate in full.
//
// The engine reconciles three sources of truth: the remote license
// verification API (one seat per key), the optional server-authoritative
// trial service, and triple-redundant local persistence that survives
// partial tampering or partial data loss. Consumers read one boolean,
// HasAccess, and call a handful of entry points; the records themselves
// never leave this package.
package entitlement
