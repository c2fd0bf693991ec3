// Package ident computes content-addressed identities for pledgeflow.
//
// Every identity is SHA-256 over RFC 8785 canonical JSON with a versioned
// domain prefix, so the same logical value hashes identically across
// processes, restarts and replays.
//
// Key constraints:
//   - Integers only; floats and null are rejected by the canonical encoder
//   - Object keys are ordered by UTF-16 code units
//   - Strings are NFC normalized before encoding
//   - Arrays keep their order (a delegation chain is a sequence, not a set)
//
// ident imports nothing internal.
package ident
