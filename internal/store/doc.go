// Package store implements the triple-redundant local persistence layer
// for entitlement state.
//
// Three independent stores hold overlapping copies of the same records: an
// encrypted file standing in for the OS keystore (SecureStore), an ordinary
// SQLite settings database (SettingsStore), and a bare marker file whose
// existence alone means "trial consumed" (TrialMarker). None of them is
// treated as a source of truth on its own; they exist for redundancy, not
// performance.
//
// Reads go through the Reconciler, which combines values permissively
// (logical OR for booleans, prefer-non-null-then-newest for timestamps) and
// immediately repairs any store found missing the reconciled value. This is
// what makes the trial-consumed flag survive the loss or tampering of any
// two of the three locations.
package store
