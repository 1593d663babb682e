// Package ir provides the canonical value layer used for audit fingerprints
// and stored tick records.
//
// This package contains value types and their canonical serialization only.
// Every other internal package may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in canonical values. Reals are carried as fixed-point
//     micro-units (see Micro) so that a fingerprint never depends on float
//     formatting.
//   - Object keys are emitted in RFC 8785 order (UTF-16 code units).
//   - Strings are NFC normalized at the serialization boundary.
package ir
