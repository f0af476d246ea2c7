// Package ota implements the versioned update catalog and binary store.
//
// The catalog is append-only: publishing a new version never deletes or
// supersedes prior entries in place. "Latest applicable" is resolved at
// query time as the most recently published entry of the requested kind
// whose version is strictly greater than the device's current version.
//
// Versions are compared numerically per dotted component ("10.0.0" is
// newer than "9.0.0"). Components that are not numeric on both sides
// fall back to string comparison for that component.
package ota
