// Package ir holds the scalar vocabulary shared by the query compiler and the
// schema model: semantic type tags for expressions, and the constrained value
// tree used for canonical encoding and hashing.
//
// ir imports nothing internal. Every other internal package may import it.
//
// Key constraints:
//   - Canonical encoding follows RFC 8785 and rejects floats and nulls
//   - Type tags carry the referenced table for identifier types so that
//     comparisons across unrelated tables are rejected
package ir
